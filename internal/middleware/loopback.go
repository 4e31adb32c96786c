// Package middleware provides HTTP middlewares for peer restriction and
// request logging.
package middleware

import (
	"context"
	"net"
	"net/http"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// LoopbackOnly rejects requests whose peer address is not a loopback
// address with 403, even if the listener was bound more widely.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// GetRequestIDFromContext returns the id WithRequestLogging assigned to the
// request, or an empty string.
func GetRequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}
