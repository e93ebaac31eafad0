package main

import (
	"context"
	"flag"
	"log"

	"briefsmith/internal/config"
	"briefsmith/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	development := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
	}); err != nil {
		log.Fatalf("briefsmithd: %v", err)
	}
}
