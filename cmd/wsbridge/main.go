package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wsbridge/pkg/bridge"
	"wsbridge/pkg/config"
	"wsbridge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Config file path (optional)")
	tcpHost := flag.String("tcp-host", "", "TCP device host")
	tcpPort := flag.Int("tcp-port", 0, "TCP device port")
	wsHost := flag.String("ws-host", "", "WebSocket listen host")
	wsPort := flag.Int("ws-port", 0, "WebSocket listen port")
	bufferSize := flag.Int("buffer-size", 0, "TCP read chunk size")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override file and environment.
	if *tcpHost != "" {
		cfg.TCP.Host = *tcpHost
	}
	if *tcpPort != 0 {
		cfg.TCP.Port = *tcpPort
	}
	if *wsHost != "" {
		cfg.WS.Host = *wsHost
	}
	if *wsPort != 0 {
		cfg.WS.Port = *wsPort
	}
	if *bufferSize != 0 {
		cfg.BufferSize = *bufferSize
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()
	log.InfoWith("starting", "config", cfg.String())

	b, err := bridge.New(cfg)
	if err != nil {
		log.ErrorWithErr("bridge setup failed", err)
		os.Exit(1)
	}

	if err := b.Start(); err != nil {
		log.ErrorWithErr("bridge start failed", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if err := b.Stop(); err != nil {
		log.ErrorWithErr("bridge stop failed", err)
		os.Exit(1)
	}
}
