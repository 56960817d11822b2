package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/hopround/hopround-backend/pkg/config"
)

type fakeRateStore struct {
	counts map[string]int64
	err    error
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func newJoinRouter(cfg config.JoinRateLimitConfig, store *fakeRateStore, hits *int) http.Handler {
	r := chi.NewRouter()
	r.With(JoinRateLimit(cfg, store, testLogger())).
		Post("/routes/{routeID}/join", func(w http.ResponseWriter, _ *http.Request) {
			*hits++
			w.WriteHeader(http.StatusCreated)
		})
	return r
}

func TestJoinRateLimitBlocksHotIP(t *testing.T) {
	store := &fakeRateStore{}
	hits := 0
	router := newJoinRouter(config.JoinRateLimitConfig{Window: time.Minute, IPLimit: 2, PerRoute: 100}, store, &hits)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/routes/"+newUUID(t).String()+"/join", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, send("10.0.0.1").Code)
	blockedResp := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blockedResp.Code)
	assert.Contains(t, blockedResp.Body.String(), "RATE_LIMIT_EXCEEDED")

	// A different caller still gets through.
	assert.Equal(t, http.StatusCreated, send("10.0.0.2").Code)
	assert.Equal(t, 3, hits)
}

func TestJoinRateLimitBlocksHotRoute(t *testing.T) {
	store := &fakeRateStore{}
	hits := 0
	router := newJoinRouter(config.JoinRateLimitConfig{Window: time.Minute, IPLimit: 0, PerRoute: 1}, store, &hits)

	routeID := newUUID(t).String()
	send := func(ip, route string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/routes/"+route+"/join", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1", routeID).Code)
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2", routeID).Code)
	assert.Equal(t, http.StatusCreated, send("10.0.0.2", newUUID(t).String()).Code)
	assert.Equal(t, 2, hits)
}

func TestJoinRateLimitDisabledWithoutStore(t *testing.T) {
	hits := 0
	r := chi.NewRouter()
	r.With(JoinRateLimit(config.JoinRateLimitConfig{Window: time.Minute, IPLimit: 1}, nil, testLogger())).
		Post("/routes/{routeID}/join", func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusCreated)
		})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/routes/"+newUUID(t).String()+"/join", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 5, hits)
}
