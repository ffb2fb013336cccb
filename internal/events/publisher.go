package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
)

// DefaultSubjectPrefix roots every change-feed subject.
const DefaultSubjectPrefix = "agency.events"

// Config describes the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Envelope is the wire form of a change-feed event.
type Envelope struct {
	Origin      string         `json:"origin"`
	Stream      string         `json:"stream"`
	Event       string         `json:"event"`
	UserID      string         `json:"user_id"`
	Data        any            `json:"data,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
}

// Publisher mirrors per-user change events onto NATS so other instances can relay them.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	origin string
	owned  bool
	log    *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS and returns a Publisher that owns the connection.
func Connect(cfg Config) (*Publisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 5
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = time.Second
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
	}
	if name := strings.TrimSpace(cfg.Name); name != "" {
		opts = append(opts, nats.Name(name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", url, err)
	}

	publisher, err := NewPublisher(nc, cfg.SubjectPrefix)
	if err != nil {
		nc.Close()
		return nil, err
	}
	publisher.owned = true
	return publisher, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string) (*Publisher, error) {
	if nc == nil {
		return nil, errors.New("events: nats connection is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		nc:     nc,
		prefix: prefix,
		origin: uuid.NewString(),
		log:    logger.WithModule("events"),
	}, nil
}

// Subject returns the subject events for a user on a stream are published to.
func (p *Publisher) Subject(stream, userID string) string {
	return p.prefix + "." + token(stream) + "." + token(userID)
}

// BroadcastToUser implements realtime.Broadcaster. Publish failures are logged.
func (p *Publisher) BroadcastToUser(stream, userID string, message realtime.Message) {
	if strings.TrimSpace(stream) == "" || strings.TrimSpace(userID) == "" {
		return
	}
	data, err := json.Marshal(Envelope{
		Origin:      p.origin,
		Stream:      stream,
		Event:       message.Event,
		UserID:      userID,
		Data:        message.Data,
		Meta:        message.Meta,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		p.log.Warn("encode event failed", zap.String("event", message.Event), zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.Subject(stream, userID), data); err != nil {
		p.log.Warn("publish event failed", zap.String("event", message.Event), zap.Error(err))
	}
}

// Relay forwards events published by other instances to target.
func (p *Publisher) Relay(target realtime.Broadcaster) error {
	if target == nil {
		return errors.New("events: relay target is required")
	}
	sub, err := p.nc.Subscribe(p.prefix+".>", func(msg *nats.Msg) {
		var envelope Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			p.log.Debug("discarding malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if envelope.Origin == p.origin {
			return
		}
		target.BroadcastToUser(envelope.Stream, envelope.UserID, realtime.Message{
			Stream: envelope.Stream,
			Event:  envelope.Event,
			Data:   envelope.Data,
			Meta:   envelope.Meta,
		})
	})
	if err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()
	return nil
}

// Connected reports whether the NATS connection is currently up.
func (p *Publisher) Connected() bool {
	return p.nc.IsConnected()
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close stops relays and, when the publisher dialled it, drains the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if p.owned {
		return p.nc.Drain()
	}
	return nil
}

func token(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, value)
}
