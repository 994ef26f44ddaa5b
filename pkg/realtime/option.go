package realtime

import (
	"realtime/internal/config"
	"realtime/internal/obs"
	"realtime/internal/presence"
	"realtime/internal/schedule"
	"realtime/pkg/websocket"
)

type Option struct {
	// Config holds endpoint, retry, typing and transport settings.
	//
	// Optional; default config.Default()
	Config *config.Config
	// Dialer opens the physical connections.
	//
	// Optional; default websocket.NewDialer built from Config
	Dialer websocket.Dialer
	// Notifier receives user-visible notices.
	//
	// Optional; default notices are logged
	Notifier presence.Notifier
	// Scheduler runs retry and sweep timers.
	//
	// Optional; default schedule.System
	Scheduler schedule.Scheduler
	// Metrics collects client counters.
	//
	// Optional; default a fresh obs.Metrics
	Metrics *obs.Metrics
}

func (opt *Option) init() {
	if opt.Config == nil {
		cfg := config.Default()
		opt.Config = &cfg
	}
	if opt.Dialer == nil {
		readTimeout := opt.Config.PingInterval * 2
		opt.Dialer = websocket.NewDialer(websocket.DialerOption{
			HandshakeTimeout: opt.Config.HandshakeTimeout,
			WriteTimeout:     opt.Config.WriteTimeout,
			ReadTimeout:      readTimeout,
		})
	}
	if opt.Notifier == nil {
		opt.Notifier = logNotifier{}
	}
	if opt.Scheduler == nil {
		opt.Scheduler = schedule.System()
	}
	if opt.Metrics == nil {
		opt.Metrics = obs.NewMetrics()
	}
}
