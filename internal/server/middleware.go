package server

import (
	"net/http"
	"time"

	m "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ppiankov/sourcecheck/internal/logger"
)

// requestID assigns a UUID to requests that arrive without an id, so the
// chi RequestID middleware picks it up and clients can correlate errors
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(m.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(m.RequestIDHeader, id)
		}
		w.Header().Set(m.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), m.GetReqID(r.Context()))
	})
}
