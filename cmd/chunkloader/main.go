package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkloader/internal/config"
	"chunkloader/internal/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to chunk loader configuration file (JSON or YAML)")
	flag.Parse()

	if wrote, err := writeConfigFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config: %v", err)
	} else if wrote {
		log.Printf("wrote orchestrator-provided configuration to %s", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("initialise chunk loader: %v", err)
	}
	srv.SpawnSimulated()

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server exited with error: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
