package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const (
	headerCorrelationID = "x-correlation-id"
	headerServiceName   = "x-service-name"

	// MaxReadCount is the largest page the store will serve in one read.
	MaxReadCount = 1000
)

// ErrConcurrency indicates an append was rejected because the stream head
// no longer matches the expected revision. The caller should reload the
// aggregate and retry the whole operation.
var ErrConcurrency = errors.New("stream revision conflict")

// ErrStreamEmpty indicates a rebuild was attempted with no events.
var ErrStreamEmpty = errors.New("event history is empty")

type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	ServiceName   string
}

// Client is the only component that talks to the remote event store. It
// shapes requests, applies the retry policy and keeps usage counters.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	serviceName   string
	retryAttempts uint
	retryDelay    time.Duration
	logger        *slog.Logger

	eventsAppended   atomic.Int64
	eventsRead       atomic.Int64
	snapshotsCreated atomic.Int64
	snapshotsLoaded  atomic.Int64
	errorCount       atomic.Int64
	retryCount       atomic.Int64
}

// Stats is a point-in-time copy of the client's usage counters.
type Stats struct {
	EventsAppended   int64 `json:"events_appended"`
	EventsRead       int64 `json:"events_read"`
	SnapshotsCreated int64 `json:"snapshots_created"`
	SnapshotsLoaded  int64 `json:"snapshots_loaded"`
	Errors           int64 `json:"errors"`
	Retries          int64 `json:"retries"`
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "post-service"
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		serviceName:   cfg.ServiceName,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        slog.Default().With("component", "eventstore-client"),
	}
}

func (c *Client) Stats() Stats {
	return Stats{
		EventsAppended:   c.eventsAppended.Load(),
		EventsRead:       c.eventsRead.Load(),
		SnapshotsCreated: c.snapshotsCreated.Load(),
		SnapshotsLoaded:  c.snapshotsLoaded.Load(),
		Errors:           c.errorCount.Load(),
		Retries:          c.retryCount.Load(),
	}
}

type appendRequest struct {
	EventType        EventType `json:"eventType"`
	EventData        any       `json:"eventData"`
	Metadata         Metadata  `json:"metadata"`
	ExpectedRevision *int64    `json:"expectedRevision,omitempty"`
}

type appendResponse struct {
	EventID string `json:"eventId"`
	Source  string `json:"source"`
}

// AppendEvent appends one event to a stream. An expectedRevision >= 0 asks
// the store to reject the append unless the stream head is exactly at that
// revision; pass a negative value to skip the check. Returns the stored
// event's ID.
func (c *Client) AppendEvent(ctx context.Context, stream string, event Event, expectedRevision int64) (string, error) {
	if event.Metadata.EventID == "" {
		event.Metadata.EventID = uuid.NewString()
	}
	if event.Metadata.CorrelationID == "" {
		event.Metadata.CorrelationID = correlationID(ctx)
	}
	if event.Metadata.Timestamp.IsZero() {
		event.Metadata.Timestamp = time.Now().UTC()
	}
	event.Metadata.Source = c.serviceName

	if err := event.Validate(); err != nil {
		return "", err
	}

	body := appendRequest{
		EventType: event.Type,
		EventData: event.Data,
		Metadata:  event.Metadata,
	}
	if expectedRevision >= 0 {
		body.ExpectedRevision = &expectedRevision
	}

	resp, err := retryOp(ctx, c, func() (appendResponse, error) {
		var out appendResponse
		found, err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(stream), event.Metadata.CorrelationID, body, &out)
		if err != nil {
			return out, err
		}
		if !found {
			return out, backoff.Permanent(fmt.Errorf("stream %s: unexpected 404 on append", stream))
		}
		return out, nil
	})
	if err != nil {
		c.errorCount.Add(1)
		return "", err
	}

	c.eventsAppended.Add(1)
	return resp.EventID, nil
}

type ReadStreamOptions struct {
	// FromRevision is the zero-based revision to start reading from.
	// Negative means from the start of the stream.
	FromRevision    int64
	Direction       string
	MaxCount        int
	IncludeMetadata bool
}

type readStreamResponse struct {
	Events     []Event `json:"events"`
	StreamName string  `json:"streamName"`
	EventCount int     `json:"eventCount"`
	Source     string  `json:"source"`
}

// ReadStream reads a page of events forward from a revision. A missing
// stream is not an error: it yields an empty slice, meaning the aggregate
// does not exist yet.
func (c *Client) ReadStream(ctx context.Context, stream string, opts ReadStreamOptions) ([]Event, error) {
	q := url.Values{}
	if opts.FromRevision < 0 {
		q.Set("fromRevision", "start")
	} else {
		q.Set("fromRevision", strconv.FormatInt(opts.FromRevision, 10))
	}
	if opts.Direction == "" {
		opts.Direction = "forwards"
	}
	q.Set("direction", opts.Direction)
	if opts.MaxCount <= 0 || opts.MaxCount > MaxReadCount {
		opts.MaxCount = MaxReadCount
	}
	q.Set("maxCount", strconv.Itoa(opts.MaxCount))
	q.Set("includeMetadata", strconv.FormatBool(opts.IncludeMetadata))

	path := "/events/" + url.PathEscape(stream) + "?" + q.Encode()

	resp, err := retryOp(ctx, c, func() (readStreamResponse, error) {
		var out readStreamResponse
		found, err := c.do(ctx, http.MethodGet, path, correlationID(ctx), nil, &out)
		if err != nil {
			return out, err
		}
		if !found {
			out.Events = []Event{}
		}
		return out, nil
	})
	if err != nil {
		c.errorCount.Add(1)
		return nil, err
	}

	c.eventsRead.Add(int64(len(resp.Events)))
	return resp.Events, nil
}

type ReadAllOptions struct {
	FromPosition int64
	Direction    string
	MaxCount     int
	StreamPrefix string
}

type readAllResponse struct {
	Events     []Event `json:"events"`
	EventCount int     `json:"eventCount"`
	Source     string  `json:"source"`
}

// ReadAll reads a page of the global event log, optionally filtered by
// stream name prefix. Projections use this to catch up across aggregates.
func (c *Client) ReadAll(ctx context.Context, opts ReadAllOptions) ([]Event, error) {
	q := url.Values{}
	q.Set("fromPosition", strconv.FormatInt(opts.FromPosition, 10))
	if opts.Direction == "" {
		opts.Direction = "forwards"
	}
	q.Set("direction", opts.Direction)
	if opts.MaxCount <= 0 || opts.MaxCount > MaxReadCount {
		opts.MaxCount = MaxReadCount
	}
	q.Set("maxCount", strconv.Itoa(opts.MaxCount))
	if opts.StreamPrefix != "" {
		q.Set("streamPrefix", opts.StreamPrefix)
	}

	path := "/events?" + q.Encode()

	resp, err := retryOp(ctx, c, func() (readAllResponse, error) {
		var out readAllResponse
		found, err := c.do(ctx, http.MethodGet, path, correlationID(ctx), nil, &out)
		if err != nil {
			return out, err
		}
		if !found {
			out.Events = []Event{}
		}
		return out, nil
	})
	if err != nil {
		c.errorCount.Add(1)
		return nil, err
	}

	c.eventsRead.Add(int64(len(resp.Events)))
	return resp.Events, nil
}

type snapshotRequest struct {
	State   any `json:"state"`
	Version int `json:"version"`
}

type snapshotResponse struct {
	Snapshot *Snapshot `json:"snapshot"`
	Version  int       `json:"version"`
}

// CreateSnapshot stores a state capture for (aggregateType, aggregateID)
// at the given version, replacing any previous snapshot.
func (c *Client) CreateSnapshot(ctx context.Context, aggregateType AggregateType, aggregateID string, state any, version int) error {
	path := "/snapshots/" + url.PathEscape(string(aggregateType)) + "/" + url.PathEscape(aggregateID)
	body := snapshotRequest{State: state, Version: version}

	_, err := retryOp(ctx, c, func() (appendResponse, error) {
		var out appendResponse
		found, err := c.do(ctx, http.MethodPost, path, correlationID(ctx), body, &out)
		if err != nil {
			return out, err
		}
		if !found {
			return out, backoff.Permanent(fmt.Errorf("snapshot %s/%s: unexpected 404 on create", aggregateType, aggregateID))
		}
		return out, nil
	})
	if err != nil {
		c.errorCount.Add(1)
		return err
	}

	c.snapshotsCreated.Add(1)
	return nil
}

// LoadSnapshot returns the latest snapshot for the aggregate, or nil when
// none exists yet.
func (c *Client) LoadSnapshot(ctx context.Context, aggregateType AggregateType, aggregateID string) (*Snapshot, error) {
	path := "/snapshots/" + url.PathEscape(string(aggregateType)) + "/" + url.PathEscape(aggregateID)

	resp, err := retryOp(ctx, c, func() (snapshotResponse, error) {
		var out snapshotResponse
		if _, err := c.do(ctx, http.MethodGet, path, correlationID(ctx), nil, &out); err != nil {
			return out, err
		}
		return out, nil
	})
	if err != nil {
		c.errorCount.Add(1)
		return nil, err
	}

	if resp.Snapshot == nil {
		return nil, nil
	}
	if resp.Snapshot.Version == 0 {
		resp.Snapshot.Version = resp.Version
	}
	if resp.Snapshot.AggregateID == "" {
		resp.Snapshot.AggregateID = aggregateID
		resp.Snapshot.AggregateType = aggregateType
	}

	c.snapshotsLoaded.Add(1)
	return resp.Snapshot, nil
}

// Health probes the remote store. Not retried: a health probe should
// report the store as it is right now.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerServiceName, c.serviceName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("event store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event store unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// ServerStats fetches the remote store's own counters.
func (c *Client) ServerStats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	found, err := c.do(ctx, http.MethodGet, "/stats", correlationID(ctx), nil, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("stats endpoint not found")
	}
	return out, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// do performs one HTTP round trip. It reports found=false on 404 so each
// operation can decide whether a missing resource is an error. 409 maps to
// ErrConcurrency and, like all other 4xx responses, is never retried; 5xx
// and transport failures are returned as retryable errors.
func (c *Client) do(ctx context.Context, method, path, corrID string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return false, backoff.Permanent(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerCorrelationID, corrID)
	req.Header.Set(headerServiceName, c.serviceName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusConflict:
		return false, backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrConcurrency))
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Error == "" {
			env.Error = http.StatusText(resp.StatusCode)
		}
		return false, backoff.Permanent(fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, env.Error))
	}

	if out == nil {
		return true, nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return true, fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return true, backoff.Permanent(fmt.Errorf("decode response data: %w", err))
	}
	return true, nil
}

// retryOp applies the client's retry policy: exponential backoff with
// multiplier 2 and no jitter, up to retryAttempts tries, rethrowing the
// last error once attempts are exhausted.
func retryOp[T any](ctx context.Context, c *Client, op backoff.Operation[T]) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.retryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.retryCount.Add(1)
			c.logger.Warn("retrying event store request", "error", err, "next_attempt_in", next)
		}),
	)
}

type correlationIDKey struct{}

// WithCorrelationID tags a context so every store request made under it
// carries the same correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
