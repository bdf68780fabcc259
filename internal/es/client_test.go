package es_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsvc/internal/es"
)

func newTestClient(baseURL string) *es.Client {
	return es.NewClient(es.ClientConfig{
		BaseURL:       baseURL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		ServiceName:   "client-test",
	})
}

func testEvent() es.Event {
	return es.Event{
		Type: "post.created",
		Data: map[string]any{"post_id": "1001"},
		Metadata: es.Metadata{
			AggregateID:   "1001",
			AggregateType: "post",
			Version:       1,
		},
	}
}

func TestClientAppendEvent(t *testing.T) {
	t.Run("enriches metadata and headers", func(t *testing.T) {
		var captured struct {
			serviceName   string
			correlationID string
			body          map[string]any
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured.serviceName = r.Header.Get("x-service-name")
			captured.correlationID = r.Header.Get("x-correlation-id")
			_ = json.NewDecoder(r.Body).Decode(&captured.body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"eventId":"e1","source":"store"}}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		ctx := es.WithCorrelationID(t.Context(), "corr-123")

		eventID, err := client.AppendEvent(ctx, "post-1001", testEvent(), -1)
		require.NoError(t, err)
		assert.Equal(t, "e1", eventID)

		assert.Equal(t, "client-test", captured.serviceName)
		assert.Equal(t, "corr-123", captured.correlationID)

		meta := captured.body["metadata"].(map[string]any)
		assert.Equal(t, "client-test", meta["source"])
		assert.Equal(t, "corr-123", meta["correlationId"])
		assert.NotEmpty(t, meta["eventId"], "client must assign an event ID for store-side dedup")
		assert.NotEmpty(t, meta["timestamp"])

		_, hasExpected := captured.body["expectedRevision"]
		assert.False(t, hasExpected, "negative expected revision must be omitted")

		assert.Equal(t, int64(1), client.Stats().EventsAppended)
	})

	t.Run("sends expected revision when asked", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"eventId":"e1"}}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.AppendEvent(t.Context(), "post-1001", testEvent(), 0)
		require.NoError(t, err)
		assert.Equal(t, float64(0), body["expectedRevision"])
	})

	t.Run("rejects invalid events before the network", func(t *testing.T) {
		attempts := int32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		event := testEvent()
		event.Metadata.AggregateID = ""

		_, err := client.AppendEvent(t.Context(), "post-1001", event, -1)
		assert.EqualError(t, err, "invalid aggregate ID")
		assert.Zero(t, atomic.LoadInt32(&attempts))
	})

	t.Run("retries server errors with backoff", func(t *testing.T) {
		attempts := int32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"eventId":"e1"}}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.AppendEvent(t.Context(), "post-1001", testEvent(), -1)
		require.NoError(t, err)

		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
		assert.Equal(t, int64(2), client.Stats().Retries)
		assert.Equal(t, int64(0), client.Stats().Errors)
	})

	t.Run("exhausted retries surface the last error", func(t *testing.T) {
		attempts := int32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.AppendEvent(t.Context(), "post-1001", testEvent(), -1)
		assert.Error(t, err)

		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "three tries, then give up")
		assert.Equal(t, int64(1), client.Stats().Errors)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		attempts := int32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad event"}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.AppendEvent(t.Context(), "post-1001", testEvent(), -1)
		assert.ErrorContains(t, err, "bad event")
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("conflict maps to ErrConcurrency without retry", func(t *testing.T) {
		attempts := int32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			http.Error(w, "revision conflict", http.StatusConflict)
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.AppendEvent(t.Context(), "post-1001", testEvent(), 3)
		assert.ErrorIs(t, err, es.ErrConcurrency)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})
}

func TestClientReadStream(t *testing.T) {
	t.Run("missing stream is an empty result, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "stream not found", http.StatusNotFound)
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		events, err := client.ReadStream(t.Context(), "post-nope", es.ReadStreamOptions{FromRevision: -1})
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Equal(t, int64(0), client.Stats().Errors)
	})

	t.Run("requests the right page", func(t *testing.T) {
		var query map[string][]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query()
			_, _ = w.Write([]byte(`{"data":{"events":[{"eventType":"post.created"},{"eventType":"post.voted"}],"eventCount":2}}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		events, err := client.ReadStream(t.Context(), "post-1001", es.ReadStreamOptions{
			FromRevision:    5,
			MaxCount:        10,
			IncludeMetadata: true,
		})
		require.NoError(t, err)
		assert.Len(t, events, 2)

		assert.Equal(t, []string{"5"}, query["fromRevision"])
		assert.Equal(t, []string{"forwards"}, query["direction"])
		assert.Equal(t, []string{"10"}, query["maxCount"])
		assert.Equal(t, []string{"true"}, query["includeMetadata"])

		assert.Equal(t, int64(2), client.Stats().EventsRead)
	})

	t.Run("from the start when revision is negative", func(t *testing.T) {
		var from string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from = r.URL.Query().Get("fromRevision")
			_, _ = w.Write([]byte(`{"data":{"events":[]}}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		_, err := client.ReadStream(t.Context(), "post-1001", es.ReadStreamOptions{FromRevision: -1})
		require.NoError(t, err)
		assert.Equal(t, "start", from)
	})
}

func TestClientSnapshots(t *testing.T) {
	t.Run("missing snapshot is nil, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no snapshot", http.StatusNotFound)
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		snap, err := client.LoadSnapshot(t.Context(), "post", "1001")
		require.NoError(t, err)
		assert.Nil(t, snap)
		assert.Equal(t, int64(0), client.Stats().SnapshotsLoaded)
	})

	t.Run("create and load round trip", func(t *testing.T) {
		var stored map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				_ = json.NewDecoder(r.Body).Decode(&stored)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"data":{"eventId":"snap-1"}}`))
			case http.MethodGet:
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{
						"snapshot": map[string]any{"state": stored["state"], "version": stored["version"]},
						"version":  stored["version"],
					},
				})
			}
		}))
		defer srv.Close()

		client := newTestClient(srv.URL)
		require.NoError(t, client.CreateSnapshot(t.Context(), "post", "1001",
			map[string]any{"title": "Title"}, 5))

		snap, err := client.LoadSnapshot(t.Context(), "post", "1001")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, 5, snap.Version)
		assert.Equal(t, es.AggregateType("post"), snap.AggregateType)
		assert.Equal(t, "1001", snap.AggregateID)

		stats := client.Stats()
		assert.Equal(t, int64(1), stats.SnapshotsCreated)
		assert.Equal(t, int64(1), stats.SnapshotsLoaded)
	})
}

func TestClientHealth(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, newTestClient(srv.URL).Health(t.Context()))
	})

	t.Run("unhealthy store", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		assert.ErrorContains(t, newTestClient(srv.URL).Health(t.Context()), "unhealthy")
	})
}
