package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/HamzaShahid59/Smart-Genk/internal/chatbot"
	"github.com/HamzaShahid59/Smart-Genk/internal/config"
	"github.com/HamzaShahid59/Smart-Genk/internal/telemetry"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to TOML config file")
		endpoint    = flag.String("endpoint", "", "WebSocket URL of the answer service (overrides config)")
		readTimeout = flag.Int("read-timeout", -1, "Seconds to wait for each frame, 0 for no limit (overrides config)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *readTimeout >= 0 {
		cfg.ReadTimeoutSecs = *readTimeout
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	tracer, meter, cleanup, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	bot := chatbot.NewChatBot(cfg, logger, tracer, meter)
	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
