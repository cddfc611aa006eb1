package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/config"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Server.BasePath, "base", cfg.Server.BasePath, "Base path of the channel endpoints")
	flag.StringVar(&cfg.Server.StaticDir, "static", cfg.Server.StaticDir, "Directory of static files to serve")
	flag.StringVar(&cfg.Terminal.Command, "command", cfg.Terminal.Command, "Command each session runs")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	var opts []server.Option
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
		logger, err := logging.NewDevelopment(cfg.Logging.Output...)
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		opts = append(opts, server.WithLogger(logger))
	}

	srv, err := server.NewServer(cfg, opts...)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}
