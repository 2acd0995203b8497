package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// server.Config so main.go can validate and map.
type cliConfig struct {
	listenAddr           string
	logLevel             string
	receiveBufferSize    uint
	sendBufferSize       uint
	maxMessageSize       uint
	maxChunkCount        uint
	helloTimeout         time.Duration
	subscriptionTickRate time.Duration
	secureChannelMaxLife time.Duration
	metricsAddr          string
	auditStdioFormat     string
	auditWebhookURL      string
	showVersion          bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("opcua-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.listenAddr, "listen", ":4840", "TCP listen address (e.g. :4840 or 0.0.0.0:4840)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.UintVar(&cfg.receiveBufferSize, "receive-buffer-size", 65536, "Negotiated receive buffer size advertised in ACK")
	fs.UintVar(&cfg.sendBufferSize, "send-buffer-size", 65536, "Negotiated send buffer size advertised in ACK")
	fs.UintVar(&cfg.maxMessageSize, "max-message-size", 4*1024*1024, "Maximum reassembled message size in bytes")
	fs.UintVar(&cfg.maxChunkCount, "max-chunk-count", 64, "Maximum chunks per reassembled message")
	fs.DurationVar(&cfg.helloTimeout, "hello-timeout", 5*time.Second, "Time allowed for a client to send HELLO before disconnect")
	fs.DurationVar(&cfg.subscriptionTickRate, "subscription-tick-rate", 500*time.Millisecond, "Interval at which subscriptions are checked for due publishes")
	fs.DurationVar(&cfg.secureChannelMaxLife, "secure-channel-max-life", time.Hour, "Maximum lifetime a secure channel token may be issued for")
	fs.StringVar(&cfg.metricsAddr, "metrics-listen", "", "Address to serve Prometheus /metrics on (empty disables metrics)")
	fs.StringVar(&cfg.auditStdioFormat, "audit-stdio-format", "", "Enable structured audit output to stderr: json|env (empty=disabled)")
	fs.StringVar(&cfg.auditWebhookURL, "audit-webhook", "", "POST audit events to this URL (empty disables)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.receiveBufferSize < 8192 || cfg.sendBufferSize < 8192 {
		return nil, errors.New("buffer sizes must be at least 8192 bytes (protocol minimum)")
	}
	if cfg.maxChunkCount == 0 {
		return nil, errors.New("max-chunk-count must be positive")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.auditStdioFormat != "" && cfg.auditStdioFormat != "json" && cfg.auditStdioFormat != "env" {
		return nil, fmt.Errorf("invalid audit-stdio-format %q, must be 'json' or 'env'", cfg.auditStdioFormat)
	}

	return cfg, nil
}
