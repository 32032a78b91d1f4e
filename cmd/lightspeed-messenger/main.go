package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/messaging"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/presence"
	"github.com/tcriess/lightspeed-messenger/room"
	"github.com/tcriess/lightspeed-messenger/ws"
)

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	var mirror presence.Mirror
	redisMirror, err := presence.NewRedisMirror(ctx, globalConfig.RedisConfig)
	if err != nil {
		panic(err)
	}
	if redisMirror != nil {
		defer redisMirror.Close()
		mirror = redisMirror
	}

	registry := presence.NewRegistry(mirror)
	svc, err := messaging.NewService(globalConfig, persister, registry, room.NewRouter(registry))
	if err != nil {
		panic(err)
	}
	hub := ws.NewHub(globalConfig, svc)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	server := &http.Server{Addr: globalConfig.Addr, Handler: ws.NewRouter(hub)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	globals.AppLogger.Info("listening", "addr", globalConfig.Addr, "tls", globalConfig.SSLCert != "")
	// start HTTP server
	if globalConfig.SSLCert != "" && globalConfig.SSLKey != "" {
		err = server.ListenAndServeTLS(globalConfig.SSLCert, globalConfig.SSLKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Error("stopped listening", "error", err)
		stop()
	}
	<-hubDone
}
