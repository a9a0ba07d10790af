package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sanctuary-client/internal/auth"
	"sanctuary-client/internal/config"
	"sanctuary-client/internal/logging"
	"sanctuary-client/internal/permission"
	"sanctuary-client/internal/rest"
	"sanctuary-client/internal/rooms"
	"sanctuary-client/internal/socketio"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	sources := []auth.TokenSource{}
	if cfg.TokenFile != "" {
		sources = append(sources, auth.NewFileSource(cfg.TokenFile))
	}
	sources = append(sources, auth.NewEnvSource("SANCTUARY_TOKEN"))
	creds := auth.NewStore(sources...)
	if !creds.HasToken() {
		log.Fatal("no credential found: set SANCTUARY_TOKEN or SANCTUARY_TOKEN_FILE")
	}

	api, err := rest.NewClient(cfg.ServerURL, creds, logger)
	if err != nil {
		log.Fatal(err)
	}

	socket, err := socketio.NewClient(socketio.Options{
		URL:  cfg.ServerURL,
		Path: cfg.SocketPath,
		Auth: func() map[string]any {
			token, _ := creds.Token()
			return map[string]any{"token": token, "sessionId": cfg.SessionID}
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctrl := rooms.NewController(rooms.Config{
		SessionID:     cfg.SessionID,
		API:           api,
		Socket:        socket,
		Creds:         creds,
		Resolver:      permission.NewResolver(creds),
		Logger:        logger,
		JoinTimeout:   cfg.JoinTimeout,
		CreateTimeout: cfg.EmitTimeout,
	})
	ctrl.Bind()

	socket.OnConnect = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ctrl.Resync(ctx)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = socket.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("connected", "server", cfg.ServerURL, "session", cfg.SessionID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctrl.Close()
	_ = socket.Close()
}
