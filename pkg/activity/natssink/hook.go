// Package natssink publishes configuration events on a NATS subject so an
// external debugger or dashboard can follow what the core creates.
package natssink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity"
	"github.com/nats-io/nats.go"
)

const logPrefix = "activity:natssink"

// DefaultSubject prefixes every published subject.
const DefaultSubject = "geoview.config.events"

// Publisher is the part of *nats.Conn the hook needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Option configures a Hook.
type Option func(*Hook)

// WithSubject overrides the subject prefix.
func WithSubject(subject string) Option {
	return func(h *Hook) {
		if s := strings.Trim(strings.TrimSpace(subject), "."); s != "" {
			h.subject = s
		}
	}
}

// WithLogger sets the publish failure logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hook) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Hook publishes each event as JSON on "<subject>.<verb>".
type Hook struct {
	conn    Publisher
	subject string
	logger  *slog.Logger
}

// New builds a hook publishing through conn.
func New(conn Publisher, opts ...Option) *Hook {
	h := &Hook{conn: conn, subject: DefaultSubject, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Message is the wire form of an event.
type Message struct {
	Verb       string         `json:"verb"`
	ObjectType string         `json:"objectType"`
	ObjectID   string         `json:"objectId"`
	Channel    string         `json:"channel,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Subject returns the subject an event with verb is published on.
func (h *Hook) Subject(verb string) string {
	return h.subject + "." + verb
}

// Notify implements activity.ActivityHook.
func (h *Hook) Notify(_ context.Context, event activity.Event) error {
	if h == nil || h.conn == nil {
		return nil
	}
	normalized := activity.NormalizeEvent(event)
	if !normalized.Valid() {
		return nil
	}
	data, err := json.Marshal(Message{
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		ActorID:    normalized.ActorID,
		Metadata:   normalized.Metadata,
		OccurredAt: normalized.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s: %w", logPrefix, normalized.Verb, err)
	}
	subject := h.Subject(normalized.Verb)
	if err := h.conn.Publish(subject, data); err != nil {
		h.logger.Error(fmt.Sprintf("%s - failed to publish to %s: %v", logPrefix, subject, err))
		return err
	}
	h.logger.Debug(fmt.Sprintf("%s - published %s for %s", logPrefix, normalized.Verb, normalized.ObjectID))
	return nil
}

// Connect dials NATS with reconnect logging.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(fmt.Sprintf("%s - disconnected: %v", logPrefix, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(fmt.Sprintf("%s - reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to %s: %w", logPrefix, url, err)
	}
	return nc, nil
}
