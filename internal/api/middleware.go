package api

import (
	"bufio"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/shehryarbajwa/vizai/internal/logger"
)

// allowAnalyze charges one analysis to the session's allowance, writing a
// 429 when it is spent.
func (h *Handler) allowAnalyze(w http.ResponseWriter, sessionID string) bool {
	limit := strconv.Itoa(h.limiter.Limit())
	w.Header().Set("X-RateLimit-Limit", limit)

	if !h.limiter.Allow(sessionID) {
		retry := h.limiter.RetryAfter(sessionID)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "rate_limited",
			"Rate limit exceeded. Maximum "+limit+" analyses per hour per session.")
		return false
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(h.limiter.Tokens(sessionID))))
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the events route upgrade through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	log := logger.With("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
