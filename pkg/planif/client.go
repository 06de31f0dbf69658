// Package planif provides a client for the Planif-Neige snow-removal feed
// and a background poller that records status changes.
package planif

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boreal-data/neige-cli/internal/fetcher"
	"github.com/boreal-data/neige-cli/internal/model"
)

// ErrUpstreamUnavailable reports that the feed could not be reached or
// returned a non-success status. The previously recorded statuses remain
// the best available answer.
var ErrUpstreamUnavailable = eris.New("planif-neige upstream unavailable")

// Client fetches plow statuses from the Planif-Neige feed.
type Client interface {
	// Statuses returns the current status of every street side in the feed.
	Statuses(ctx context.Context) ([]model.SnowStatus, error)

	// StreetStatus returns the status of a single street side, or nil when
	// the feed has no entry for it.
	StreetStatus(ctx context.Context, streetID int) (*model.SnowStatus, error)

	// Metadata returns the feed's own description of its currency.
	Metadata(ctx context.Context) (*Metadata, error)
}

// Metadata describes the feed's currency as reported by the upstream.
type Metadata struct {
	LastUpdate  *time.Time `json:"last_update"`
	FromDate    *time.Time `json:"from_date"`
	RecordCount int        `json:"record_count"`
	Status      string     `json:"status"`
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithDataURL overrides the planifications endpoint.
func WithDataURL(url string) Option {
	return func(c *client) {
		c.dataURL = url
	}
}

// WithMetadataURL overrides the metadata endpoint.
func WithMetadataURL(url string) Option {
	return func(c *client) {
		c.metadataURL = url
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit toward the feed.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type client struct {
	httpClient  *http.Client
	dataURL     string
	metadataURL string
	userAgent   string
	limiter     *rate.Limiter
}

// NewClient creates a Planif-Neige client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		dataURL:     "https://planifneige.montreal.ca/api/planifications",
		metadataURL: "https://planifneige.montreal.ca/api/metadata",
		userAgent:   "neige-cli/1.0",
		limiter:     rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "GET %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "GET %s: HTTP %d", url, resp.StatusCode)
	}
	return resp, nil
}

func (c *client) Statuses(ctx context.Context) ([]model.SnowStatus, error) {
	resp, err := c.get(ctx, c.dataURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	entries, err := decodeEntries(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "decode planifications: %v", err)
	}

	statuses := make([]model.SnowStatus, 0, len(entries))
	skipped := 0
	for _, raw := range entries {
		status, ok := parseEntry(raw)
		if !ok {
			skipped++
			continue
		}
		statuses = append(statuses, status)
	}
	if skipped > 0 {
		zap.L().Warn("planif: skipped malformed feed entries", zap.Int("skipped", skipped))
	}
	return statuses, nil
}

func (c *client) StreetStatus(ctx context.Context, streetID int) (*model.SnowStatus, error) {
	statuses, err := c.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		if statuses[i].StreetID == streetID {
			return &statuses[i], nil
		}
	}
	return nil, nil
}

func (c *client) Metadata(ctx context.Context) (*Metadata, error) {
	resp, err := c.get(ctx, c.metadataURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var raw struct {
		LastUpdate  flexTime `json:"last_update"`
		FromDate    flexTime `json:"from_date"`
		RecordCount int      `json:"record_count"`
		Status      string   `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "decode metadata: %v", err)
	}
	return &Metadata{
		LastUpdate:  raw.LastUpdate.ptr(),
		FromDate:    raw.FromDate.ptr(),
		RecordCount: raw.RecordCount,
		Status:      raw.Status,
	}, nil
}

// envelope is the {"planifications": [...]} wrapper the feed has shipped
// alongside the bare-array form.
type envelope struct {
	Planifications []json.RawMessage `json:"planifications"`
}

// decodeEntries accepts either a bare array or the wrapped form.
func decodeEntries(r io.Reader) ([]json.RawMessage, error) {
	var root json.RawMessage
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}

	if strings.HasPrefix(strings.TrimSpace(string(root)), "[") {
		return fetcher.DecodeRawArray(bytes.NewReader(root))
	}

	wrapper, err := fetcher.DecodeJSONObject[envelope](bytes.NewReader(root))
	if err != nil {
		return nil, err
	}
	if wrapper.Planifications == nil {
		return nil, fmt.Errorf("no planifications array in response")
	}
	return wrapper.Planifications, nil
}

// feedEntry tolerates both the snake_case and camelCase field spellings
// the feed has shipped.
type feedEntry struct {
	StreetID        json.RawMessage `json:"cote_rue_id"`
	StreetIDCamel   json.RawMessage `json:"coteRueId"`
	Code            json.RawMessage `json:"etat_deneig"`
	CodeCamel       json.RawMessage `json:"etatDeneig"`
	PlannedStart    flexTime        `json:"date_deb_planif"`
	PlannedStartC   flexTime        `json:"dateDebutPlanif"`
	PlannedEnd      flexTime        `json:"date_fin_planif"`
	PlannedEndC     flexTime        `json:"dateFinPlanif"`
	ReplannedStart  flexTime        `json:"date_deb_replanif"`
	ReplannedStartC flexTime        `json:"dateDebutReplanif"`
	ReplannedEnd    flexTime        `json:"date_fin_replanif"`
	ReplannedEndC   flexTime        `json:"dateFinReplanif"`
	Updated         flexTime        `json:"date_maj"`
	UpdatedC        flexTime        `json:"dateMaj"`
}

// parseEntry converts one feed record, reporting ok=false when the record
// lacks a usable street identifier or status code.
func parseEntry(raw json.RawMessage) (model.SnowStatus, bool) {
	var e feedEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.SnowStatus{}, false
	}

	streetID, ok := rawNumber(e.StreetID, e.StreetIDCamel)
	if !ok || streetID == 0 {
		return model.SnowStatus{}, false
	}
	code, ok := rawNumber(e.Code, e.CodeCamel)
	if !ok {
		return model.SnowStatus{}, false
	}

	sc := model.StatusCode(code)
	return model.SnowStatus{
		StreetID:       streetID,
		Code:           sc,
		State:          sc.State(),
		PlannedStart:   firstTime(e.PlannedStart, e.PlannedStartC),
		PlannedEnd:     firstTime(e.PlannedEnd, e.PlannedEndC),
		ReplannedStart: firstTime(e.ReplannedStart, e.ReplannedStartC),
		ReplannedEnd:   firstTime(e.ReplannedEnd, e.ReplannedEndC),
		LastUpdated:    firstTime(e.Updated, e.UpdatedC),
	}, true
}

func rawNumber(candidates ...json.RawMessage) (int, bool) {
	for _, raw := range candidates {
		s := strings.TrimSpace(string(raw))
		if s == "" || s == "null" {
			continue
		}
		s = strings.Trim(s, `"`)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func firstTime(candidates ...flexTime) *time.Time {
	for _, ft := range candidates {
		if t := ft.ptr(); t != nil {
			return t
		}
	}
	return nil
}

// timeLayouts lists the timestamp shapes the feed has been observed to use.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// flexTime unmarshals the feed's inconsistent timestamp formats, treating
// unparseable or placeholder values as absent.
type flexTime struct {
	t *time.Time
}

func (ft *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" || s == "null" || strings.HasPrefix(s, "0001-") || strings.HasPrefix(s, "1900-") {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ft.t = &t
			return nil
		}
	}
	// Malformed dates degrade to absent rather than poisoning the record.
	return nil
}

func (ft flexTime) ptr() *time.Time {
	return ft.t
}
