package resolver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/alvarorichard/anistream/internal/metrics"
	"github.com/alvarorichard/anistream/internal/session"
)

// DefaultUnifiedTimeout bounds the single accelerator request.
const DefaultUnifiedTimeout = 25 * time.Second

const maxUnifiedBody = 1 << 20

// Outcome is the result class of an accelerator lookup.
type Outcome int

const (
	// FallThrough means the caller should try the direct path.
	FallThrough Outcome = iota
	// Hit means StreamURL is a usable direct stream.
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}
	return "fall_through"
}

// UnifiedResult is what a lookup produced. Reason explains a FallThrough.
type UnifiedResult struct {
	Outcome   Outcome
	StreamURL string
	Embed     string
	Reason    error
}

// UnifiedConfig configures the accelerator endpoint.
type UnifiedConfig struct {
	Endpoint  string
	Param     string
	Source    string
	Timeout   time.Duration
	UserAgent string
}

// Unified queries a third-party aggregator keyed by an alternate catalog id.
type Unified struct {
	client *http.Client
	cfg    UnifiedConfig
}

// NewUnified builds an accelerator. An empty endpoint makes every lookup
// fall through.
func NewUnified(client *http.Client, cfg UnifiedConfig) *Unified {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Param == "" {
		cfg.Param = "id"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultUnifiedTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = session.DefaultUserAgent
	}
	return &Unified{client: client, cfg: cfg}
}

// Lookup asks the aggregator for altID. It never returns an error: any
// failure becomes a FallThrough with a Reason.
func (u *Unified) Lookup(ctx context.Context, altID string) UnifiedResult {
	res := u.lookup(ctx, altID)
	metrics.UnifiedLookups.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (u *Unified) lookup(ctx context.Context, altID string) UnifiedResult {
	if u.cfg.Endpoint == "" {
		return fallThrough(errors.New("unified endpoint not configured"))
	}
	if strings.TrimSpace(altID) == "" {
		return fallThrough(errors.New("empty alternate id"))
	}

	endpoint, err := url.Parse(u.cfg.Endpoint)
	if err != nil {
		return fallThrough(errors.Wrap(err, "invalid unified endpoint"))
	}
	q := endpoint.Query()
	q.Set(u.cfg.Param, altID)
	endpoint.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fallThrough(errors.Wrap(err, "failed to build unified request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", u.cfg.UserAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return fallThrough(errors.Wrap(err, "unified request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallThrough(errors.Errorf("unified endpoint returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUnifiedBody))
	if err != nil {
		return fallThrough(errors.Wrap(err, "failed to read unified response"))
	}
	if !gjson.ValidBytes(body) {
		return fallThrough(errors.New("unified response is not valid JSON"))
	}

	entry := gjson.GetBytes(body, escapePath(u.cfg.Source))
	if u.cfg.Source == "" || !entry.Exists() {
		return fallThrough(errors.Errorf("source %q missing from unified response", u.cfg.Source))
	}
	embed := entry.Get("embed").String()
	if !entry.Get("available").Bool() {
		return UnifiedResult{Outcome: FallThrough, Embed: embed, Reason: errors.New("source reported unavailable")}
	}

	stream := strings.TrimSpace(entry.Get("stream_url").String())
	if !strings.HasPrefix(stream, "http://") && !strings.HasPrefix(stream, "https://") {
		return UnifiedResult{Outcome: FallThrough, Embed: embed, Reason: errors.New("no direct stream url")}
	}

	return UnifiedResult{Outcome: Hit, StreamURL: stream, Embed: embed}
}

func fallThrough(reason error) UnifiedResult {
	return UnifiedResult{Outcome: FallThrough, Reason: reason}
}

// escapePath quotes gjson path metacharacters so a source name is taken literally.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
