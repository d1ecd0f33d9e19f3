// Package audit records security-sensitive sandbox events to a rotating file.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bnema/sandboxer/internal/domain"
)

// Config holds the configuration for the audit trail.
type Config struct {
	// Path is the audit log file.
	Path string
	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int
	// MaxBackups is the number of old audit files to retain.
	MaxBackups int
	// MaxAge is the maximum number of days to retain old audit files.
	MaxAge int
}

// Record is one line of the audit trail.
type Record struct {
	Time        time.Time `json:"time"`
	EventID     string    `json:"event_id"`
	Event       string    `json:"event"`
	Sandbox     string    `json:"sandbox"`
	ContainerID string    `json:"container_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Handler implements out.EventHandler for privilege grants, engine socket
// exposure and sandbox replacement or removal.
type Handler struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewHandler creates an audit handler writing JSON lines to config.Path.
func NewHandler(config Config) (*Handler, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &Handler{
		writer: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   true,
		},
	}, nil
}

// CanHandle reports whether eventType belongs in the audit trail.
func (h *Handler) CanHandle(eventType domain.EventType) bool {
	switch eventType {
	case domain.EventSandboxReplaced, domain.EventSandboxRemoved, domain.EventSandboxFailed:
		return true
	}
	return strings.HasPrefix(string(eventType), "security.")
}

// Handle appends one record for event.
func (h *Handler) Handle(ctx context.Context, event domain.Event) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "audit",
		zerowrap.FieldAction:  "Handle",
		zerowrap.FieldEvent:   string(event.Type),
		"sandbox":             event.Sandbox,
	})
	log := zerowrap.FromCtx(ctx)

	record := Record{
		Time:        event.Timestamp.UTC(),
		EventID:     event.ID,
		Event:       string(event.Type),
		Sandbox:     event.Sandbox,
		ContainerID: event.ContainerID,
	}
	switch p := event.Data.(type) {
	case domain.SecurityEventPayload:
		record.Detail = p.Detail
	case domain.SandboxEventPayload:
		record.Detail = string(p.Action)
		record.Phase = string(p.Phase)
		record.Error = p.Error
	}

	line, err := json.Marshal(record)
	if err != nil {
		return log.WrapErr(err, "failed to encode audit record")
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.writer.Write(line); err != nil {
		return log.WrapErr(err, "failed to write audit record")
	}

	if strings.HasPrefix(record.Event, "security.") {
		log.Warn().Str("detail", record.Detail).Str("container_id", record.ContainerID).Msg("security-sensitive grant recorded")
	}
	return nil
}

// Close flushes and closes the audit file.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writer.Close()
}
