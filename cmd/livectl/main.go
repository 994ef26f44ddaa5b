package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"realtime/internal/bus"
	"realtime/internal/config"
	"realtime/pkg/realtime"
)

const statsInterval = 30 * time.Second

type session struct {
	token    string
	identity realtime.Identity
}

func (s session) AccessToken() string { return s.token }

func (s session) CurrentUser() (realtime.Identity, bool) {
	return s.identity, !s.identity.ID.IsZero()
}

func main() {
	if err := run(); err != nil {
		logs.Errorf("livectl: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "YAML config file (optional)")
	urlFlag := flag.String("url", "", "realtime endpoint, overrides config")
	userFlag := flag.String("user-id", "", "user id to authenticate as")
	nameFlag := flag.String("username", "", "username to authenticate as")
	tokenFlag := flag.String("token", os.Getenv("REALTIME_TOKEN"), "bearer token")
	roomFlag := flag.String("room", "", "room to join after authentication")
	sayFlag := flag.String("say", "", "message to post to the room once joined")
	profileFlag := flag.String("pyroscope", "", "pyroscope server address (optional)")
	flag.Parse()

	userID := strings.TrimSpace(*userFlag)
	if userID == "" {
		return errors.New("missing user; use -user-id")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if *urlFlag != "" {
		cfg.SocketURL = *urlFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if *profileFlag != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "realtime.livectl",
			ServerAddress:   *profileFlag,
			Tags: map[string]string{
				"user": userID,
			},
			Logger: profileLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	notices := bus.NewQueue(64)
	client, err := realtime.New(session{
		token:    *tokenFlag,
		identity: realtime.Identity{ID: realtime.ID(userID), Username: *nameFlag},
	}, realtime.Option{Config: &cfg, Notifier: notices})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notices.Run(ctx, func(n bus.Notice) {
		logs.Infof("[%s] %s", n.Level, n.Message)
	})

	watch(client)
	if *roomFlag != "" {
		joinOnAuth(client, *roomFlag, *sayFlag)
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}
	logs.Infof("livectl: connecting to %s as %s", cfg.URL(), userID)

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sys.Shutdown():
			logs.Infof("livectl: shutting down")
			client.Disconnect()
			notices.Close()
			return nil
		case <-ticker.C:
			stats := client.Stats()
			logs.Infof("livectl: state: %s, room: %s, online: %d, frames: %d, dropped sends: %d, reconnects: %d",
				client.State(), client.CurrentRoom(), client.OnlineCount(), stats.FramesIn, stats.SendsDropped, stats.Reconnects)
			if client.State() == realtime.StateFailed {
				return errors.New("connection failed permanently")
			}
		}
	}
}

func watch(client *realtime.Client) {
	printEvent := func(env realtime.Envelope) error {
		logs.Infof("event %s: %s", env.Type, env.Data)
		return nil
	}
	for _, event := range []string{
		realtime.EventNewContent,
		realtime.EventNotification,
		realtime.EventTyping,
		realtime.EventRoomPresence,
		realtime.EventState,
	} {
		client.Subscribe(event, printEvent)
	}
}

// joinOnAuth moves into room after every successful authentication, so the
// room survives reconnects.
func joinOnAuth(client *realtime.Client, room, message string) {
	client.Subscribe(realtime.EventAuthenticated, func(realtime.Envelope) error {
		if !client.JoinRoom(room) {
			return fmt.Errorf("join room %s", room)
		}
		if message != "" && !client.SendMessage(room, message) {
			return fmt.Errorf("send message to %s", room)
		}
		return nil
	})
}

type profileLogger struct{}

func (profileLogger) Infof(format string, args ...interface{})  { logs.Debugf(format, args...) }
func (profileLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profileLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
