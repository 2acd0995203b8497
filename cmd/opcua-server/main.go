package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/balsa02/opcua/internal/logger"
	"github.com/balsa02/opcua/internal/opcua/audit"
	"github.com/balsa02/opcua/internal/opcua/nodeset"
	srv "github.com/balsa02/opcua/internal/opcua/server"
	"github.com/balsa02/opcua/internal/opcua/transport"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	registry := prometheus.NewRegistry()
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics listening", "addr", cfg.metricsAddr)
	}

	var auditManager *audit.Manager
	if cfg.auditStdioFormat != "" || cfg.auditWebhookURL != "" {
		auditCfg := audit.DefaultConfig()
		auditCfg.StdioFormat = cfg.auditStdioFormat
		auditManager = audit.NewManager(auditCfg, log.With("component", "audit"))
		if cfg.auditWebhookURL != "" {
			hook := audit.NewWebhookHook("cli-webhook", cfg.auditWebhookURL, 10*time.Second)
			for _, evt := range []audit.EventType{
				audit.EventConnectionAccept, audit.EventConnectionClose, audit.EventHelloTimeout,
				audit.EventSecureChannelOpen, audit.EventSecureChannelRenew, audit.EventSecureChannelClose,
				audit.EventSequenceViolation,
			} {
				_ = auditManager.RegisterHook(evt, hook)
			}
		}
	}

	handler := nodeset.New()
	server := srv.New(srv.Config{
		ListenAddr:           cfg.listenAddr,
		SecureChannelMaxLife: cfg.secureChannelMaxLife,
		MetricsRegisterer:    registry,
		LogLevel:             cfg.logLevel,
		TransportOptions: transport.Options{
			ReceiveBufferSize:    uint32(cfg.receiveBufferSize),
			SendBufferSize:       uint32(cfg.sendBufferSize),
			MaxMessageSize:       uint32(cfg.maxMessageSize),
			MaxChunkCount:        uint32(cfg.maxChunkCount),
			HelloTimeout:         cfg.helloTimeout,
			SubscriptionTickRate: cfg.subscriptionTickRate,
			SecureChannelMaxLife: cfg.secureChannelMaxLife,
			Handler:              handler,
			DecodeRequest:        nodeset.DecodeRequest,
			EncodeResponse:       nodeset.EncodeResponse,
			MakePublishResp:      nodeset.MakePublishResponse,
			Audit:                auditManager,
		},
	})
	if auditManager != nil {
		defer auditManager.Close()
	}

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("server started", "addr", server.Addr().String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}
