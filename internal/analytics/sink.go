package analytics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"neighborsos/internal/client"
	"neighborsos/internal/ratelimit"
	"neighborsos/internal/util"
)

const (
	ddl = `
CREATE TABLE IF NOT EXISTS abuse_events (
    event_time  DateTime,
    event_type  LowCardinality(String),
    path        String,
    client_hash UInt64,
    detail      String
) ENGINE = MergeTree()
ORDER BY (event_type, event_time)
TTL event_time + INTERVAL 90 DAY`

	insertQuery = "INSERT INTO abuse_events (event_time, event_type, path, client_hash, detail)"
)

// Sink records gate denials and rate-limit rejections for offline
// abuse analysis. Client IPs are hashed before they leave the process;
// the raw address is never stored. Every write is best effort: an
// analytics outage must not affect request handling, so failures are
// logged and swallowed.
type Sink struct {
	ch *client.ClickHouseClient
}

// NewSink creates the events table when missing and returns the sink.
func NewSink(ctx context.Context, ch *client.ClickHouseClient) (*Sink, error) {
	if err := ch.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create abuse_events table: %w", err)
	}
	return &Sink{ch: ch}, nil
}

// GateDenied records one holding-page redirect.
func (s *Sink) GateDenied(r *http.Request, reason string) {
	s.write("gate_denied", r.URL.Path, ratelimit.ClientKey(r), reason)
}

// RateLimited records one 429.
func (s *Sink) RateLimited(r *http.Request, limiterName string) {
	s.write("rate_limited", r.URL.Path, ratelimit.ClientKey(r), limiterName)
}

func (s *Sink) write(eventType, path, clientKey, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	row := []interface{}{
		time.Now().UTC(),
		eventType,
		path,
		hashClient(clientKey),
		detail,
	}
	if err := s.ch.BatchInsert(ctx, insertQuery, [][]interface{}{row}); err != nil {
		util.Warn("Failed to record abuse event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func hashClient(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}

// NopSink is used when no analytics store is configured.
type NopSink struct{}

func (NopSink) GateDenied(_ *http.Request, _ string)  {}
func (NopSink) RateLimited(_ *http.Request, _ string) {}
