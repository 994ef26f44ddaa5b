package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"realtime/internal/devserver"
	"realtime/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	token := flag.String("token", "", "required bearer token (optional)")
	announce := flag.Duration("announce", 0, "broadcast a system message at this interval when >0")
	flag.Parse()

	var opt devserver.Option
	if *token != "" {
		expected := *token
		opt.Authorize = func(got string) bool { return got == expected }
	}
	srv := devserver.New(opt)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logs.Infof("devserver: listening on ws://%s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	var tick <-chan time.Time
	if *announce > 0 {
		ticker := time.NewTicker(*announce)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-sys.Shutdown():
			srv.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = httpServer.Shutdown(ctx)
			cancel()
			return
		case <-tick:
			srv.Broadcast(protocol.TypeSystemMessage, protocol.MessageData{Message: "server heartbeat, online: " + strconv.Itoa(srv.OnlineCount())})
		}
	}
}
