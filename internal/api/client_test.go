package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/tmscore/internal/synthetic"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(&ClientConfig{BaseURL: ts.URL})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)
	_, err = NewClient(&ClientConfig{})
	assert.Error(t, err)
}

func TestClientScore_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"body":{"tm_score":0.75,"normalize_by":"target"},"request_id":"r1"}`))
	})

	res, err := c.Score(context.Background(), ScoreRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0.75, res.Score)
	assert.Equal(t, "target", res.NormalizeBy)
}

func TestClientScore_ErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"body":{},"error":"shape mismatch: pred has 3 points, true has 4"}`))
	})

	_, err := c.Score(context.Background(), ScoreRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")
	assert.Contains(t, err.Error(), "400")
}

func TestClientScore_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.Score(context.Background(), ScoreRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientScore_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"body":{"tm_score":0.5,"normalize_by":"pred"}}`))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(&ClientConfig{BaseURL: ts.URL, Retries: 2})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	res, err := c.Score(context.Background(), ScoreRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Score)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientScore_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(&ClientConfig{BaseURL: ts.URL, Retries: 1})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Score(context.Background(), ScoreRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientScore_NoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"body":{},"error":"bad"}`))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(&ClientConfig{BaseURL: ts.URL, Retries: 3})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Score(context.Background(), ScoreRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RoundTrip(t *testing.T) {
	server := NewServer(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.App.Listener(ln) }()
	t.Cleanup(func() { _ = server.App.Shutdown() })

	for _, compressed := range []bool{false, true} {
		c, err := NewClient(&ClientConfig{BaseURL: "http://" + ln.Addr().String(), ZstdCompression: compressed})
		require.NoError(t, err)
		defer c.Close()

		ctx := context.Background()
		health, err := c.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", health.Status)

		truth := synthetic.Helix(30)
		pred := synthetic.Perturb(truth, 0.5, synthetic.NewRand(11))
		score, err := c.Score(ctx, ScoreRequest{Pred: FromPointSet(pred), True: FromPointSet(truth)})
		require.NoError(t, err)
		assert.Greater(t, score.Score, 0.5)
		assert.Less(t, score.Score, 1.0)

		res, err := c.Ensemble(ctx, EnsembleRequest{
			Preds:  []ModelPayload{{{Points: FromPointSet(pred)}}},
			Refs:   []ModelPayload{{{Points: FromPointSet(truth)}}},
			Policy: "avg_of_best",
		})
		require.NoError(t, err)
		assert.InDelta(t, score.Score, res.Score, 1e-9)

		_, err = c.Score(ctx, ScoreRequest{Pred: FromPointSet(pred[:5]), True: FromPointSet(truth)})
		assert.ErrorContains(t, err, "shape mismatch")
	}
}
