// Package session groups exchanges into heuristic client sessions and
// matches them against known multi-step flow templates.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sync"
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

// DefaultIdleWindow is how long a session may stay inactive before being
// purged.
const DefaultIdleWindow = 30 * time.Minute

// Session is one heuristically identified client's activity over time.
// Only the Correlator mutates sessions.
type Session struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	ExchangeIDs  []string  `json:"exchange_ids"`
}

// Correlator owns the session table. All access goes through mutex-guarded
// methods so multiple capture streams can feed it concurrently.
type Correlator struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	idleWindow time.Duration
	catalog    []FlowTemplate
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithIdleWindow overrides the session inactivity window.
func WithIdleWindow(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.idleWindow = d
		}
	}
}

// WithCatalog replaces the default flow-template catalog.
func WithCatalog(catalog []FlowTemplate) Option {
	return func(c *Correlator) {
		if len(catalog) > 0 {
			c.catalog = catalog
		}
	}
}

// NewCorrelator creates a correlator with the default catalog and window.
func NewCorrelator(opts ...Option) *Correlator {
	c := &Correlator{
		sessions:   make(map[string]*Session),
		idleWindow: DefaultIdleWindow,
		catalog:    DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var sessionCookie = regexp.MustCompile(`(?i)session[_-]?id=([^;]+)`)

// resolveIdentity walks the identity chain, first match wins: session-shaped
// cookie, Authorization header, API-key header, then forwarded-IP plus
// User-Agent composite.
func resolveIdentity(req *capture.Request) string {
	if m := sessionCookie.FindStringSubmatch(req.Header("Cookie")); m != nil {
		return m[1]
	}
	if auth := req.Header("Authorization"); auth != "" {
		return auth
	}
	if key := req.Header("X-API-Key"); key != "" {
		return key
	}
	ip := req.Header("X-Forwarded-For")
	if ip == "" {
		ip = req.Header("X-Real-IP")
	}
	if ip == "" {
		ip = "unknown"
	}
	ua := req.Header("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	return ip + ":" + ua
}

// hashIdentity digests an identity to a fixed-width key so raw secrets
// never become session identifiers.
func hashIdentity(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:16]
}

// Observe attributes one exchange to a session, creating the session if
// needed, and returns the session ID.
func (c *Correlator) Observe(ex capture.Exchange) string {
	identity := resolveIdentity(&ex.Request)
	id := hashIdentity(identity)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		s = &Session{
			ID:        id,
			Identity:  identity,
			StartTime: ex.Request.Timestamp,
		}
		c.sessions[id] = s
	}
	if ex.Request.Timestamp.After(s.LastActivity) {
		s.LastActivity = ex.Request.Timestamp
	}
	s.ExchangeIDs = append(s.ExchangeIDs, ex.Request.ID)
	return id
}

// Purge drops sessions idle beyond the window, relative to now.
func (c *Correlator) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for id, s := range c.sessions {
		if now.Sub(s.LastActivity) > c.idleWindow {
			delete(c.sessions, id)
			purged++
		}
	}
	return purged
}

// SessionCount returns the number of tracked sessions.
func (c *Correlator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Stats summarizes session durations and request counts.
type Stats struct {
	AvgDurationSec float64 `json:"avg_session_duration"`
	MaxDurationSec float64 `json:"max_session_duration"`
	AvgRequests    float64 `json:"avg_requests_per_session"`
	MaxRequests    int     `json:"max_requests_per_session"`
}

// Analysis is the full correlation result for one host snapshot.
type Analysis struct {
	TotalSessions  int            `json:"total_sessions"`
	ActiveSessions int            `json:"active_sessions"`
	MatchedFlows   int            `json:"matched_flows"`
	FlowTypeCounts map[string]int `json:"flow_types"`
	Stats          Stats          `json:"session_stats"`
	Flows          []FlowMatch    `json:"flows,omitempty"`
}

// Correlate ingests a snapshot of exchanges in chronological order, purges
// idle sessions, and matches every surviving session against the catalog.
// The snapshot may arrive in any order; it is resorted here.
func (c *Correlator) Correlate(exchanges []capture.Exchange, now time.Time) *Analysis {
	sorted := make([]capture.Exchange, len(exchanges))
	copy(sorted, exchanges)
	capture.SortChronological(sorted)

	byID := make(map[string]*capture.Exchange, len(sorted))
	for i := range sorted {
		c.Observe(sorted[i])
		byID[sorted[i].Request.ID] = &sorted[i]
	}

	c.Purge(now)

	c.mu.Lock()
	defer c.mu.Unlock()

	analysis := &Analysis{
		TotalSessions:  len(c.sessions),
		FlowTypeCounts: make(map[string]int),
	}

	var durations []float64
	var requestCounts []int

	for _, s := range c.sessions {
		if now.Sub(s.LastActivity) < c.idleWindow {
			analysis.ActiveSessions++
		}

		durations = append(durations, s.LastActivity.Sub(s.StartTime).Seconds())
		requestCounts = append(requestCounts, len(s.ExchangeIDs))

		if len(s.ExchangeIDs) < 2 {
			continue
		}
		ordered := make([]*capture.Exchange, 0, len(s.ExchangeIDs))
		for _, id := range s.ExchangeIDs {
			if ex, ok := byID[id]; ok {
				ordered = append(ordered, ex)
			}
		}
		for _, tmpl := range c.catalog {
			if match := matchTemplate(s, ordered, tmpl); match != nil {
				analysis.Flows = append(analysis.Flows, *match)
				analysis.FlowTypeCounts[match.Name]++
			}
		}
	}

	analysis.MatchedFlows = len(analysis.Flows)
	analysis.Stats = summarize(durations, requestCounts)
	return analysis
}

func summarize(durations []float64, requestCounts []int) Stats {
	var st Stats
	if len(durations) == 0 {
		return st
	}
	var durSum float64
	for _, d := range durations {
		durSum += d
		if d > st.MaxDurationSec {
			st.MaxDurationSec = d
		}
	}
	st.AvgDurationSec = durSum / float64(len(durations))

	var reqSum int
	for _, n := range requestCounts {
		reqSum += n
		if n > st.MaxRequests {
			st.MaxRequests = n
		}
	}
	st.AvgRequests = float64(reqSum) / float64(len(requestCounts))
	return st
}
