package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/OpenProfiler/internal/logger"
)

// Feed subscribes to a capture producer over WebSocket and persists the
// exchanges it streams. The analysis engine never reads the feed directly;
// it only ever sees materialized snapshots from the store.
type Feed struct {
	store  Store
	dialer *websocket.Dialer
	dedup  *Deduplicator
	log    *logger.Logger

	headers http.Header
}

// FeedConfig holds feed configuration.
type FeedConfig struct {
	HandshakeTimeout time.Duration
	EstimatedItems   int
	Headers          map[string]string
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		HandshakeTimeout: 10 * time.Second,
		EstimatedItems:   100000,
	}
}

// NewFeed creates a feed writing into the given store.
func NewFeed(store Store, cfg FeedConfig, log *logger.Logger) *Feed {
	if log == nil {
		log = logger.Global()
	}
	headers := make(http.Header)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	return &Feed{
		store: store,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		dedup:   NewDeduplicator(cfg.EstimatedItems),
		log:     log.WithComponent("feed"),
		headers: headers,
	}
}

// Run connects to the producer and ingests exchanges until the context is
// cancelled or the connection drops. Returns the number ingested.
func (f *Feed) Run(ctx context.Context, feedURL string) (int, error) {
	conn, _, err := f.dialer.DialContext(ctx, feedURL, f.headers)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to capture feed: %w", err)
	}
	defer conn.Close()

	f.log.Infof("connected to capture feed %s", feedURL)

	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ingested := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ingested, nil
			}
			return ingested, fmt.Errorf("capture feed read failed: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var ex Exchange
		if err := json.Unmarshal(data, &ex); err != nil {
			f.log.WithError(err).Warn("dropping undecodable feed message")
			continue
		}
		if ex.Request.ID == "" || ex.Request.Host == "" {
			f.log.Warn("dropping feed message without id or host")
			continue
		}
		if f.dedup.HasSeen(ex.Request.ID) {
			continue
		}

		if err := f.store.SaveExchange(ex); err != nil {
			f.log.WithError(err).Error("failed to persist exchange")
			continue
		}
		f.dedup.Add(ex.Request.ID)
		ingested++
	}
}

// Ingested returns the number of unique exchanges seen so far.
func (f *Feed) Ingested() int {
	return f.dedup.Count()
}
