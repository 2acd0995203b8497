package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StdioHook writes event data to stderr in either JSON or env-assignment
// format, for operators piping audit output into log aggregators.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook builds a StdioHook writing to stderr in the given format.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

func (h *StdioHook) Execute(_ context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format %q", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "OPCUA_AUDIT_EVENT: %s\n", data)
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# OPC UA audit event: " + string(event.Type),
		fmt.Sprintf("OPCUA_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("OPCUA_TIMESTAMP=%d", event.Timestamp),
	}
	if event.ConnID != "" {
		lines = append(lines, "OPCUA_CONN_ID="+event.ConnID)
	}
	if event.ChannelID != 0 {
		lines = append(lines, fmt.Sprintf("OPCUA_CHANNEL_ID=%d", event.ChannelID))
	}
	for key, value := range event.Data {
		lines = append(lines, fmt.Sprintf("OPCUA_%s=%v", strings.ToUpper(key), value))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
		}
	}
	return nil
}
