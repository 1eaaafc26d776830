package httpmw

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ClientIPKey resolves the client IP for use as a rate-limit key: X-Real-IP
// first, then the left-most X-Forwarded-For address (the original client),
// then the connection's remote address.
func ClientIPKey(r *http.Request) (string, error) {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip, nil
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); ip != "" {
			return ip, nil
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, nil
	}
	return host, nil
}

// HeaderKey resolves the key from a header, falling back to the client IP
// when the header is absent.
func HeaderKey(header string) KeyFunc {
	return func(r *http.Request) (string, error) {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v, nil
		}
		return ClientIPKey(r)
	}
}

// RetryAfterHeaderValue renders a retry hint as an HTTP Retry-After value.
// Retry-After supports whole seconds, so the duration is rounded up, with a
// minimum of one second. The empty string means "send no header".
func RetryAfterHeaderValue(retryAfter time.Duration) string {
	if retryAfter <= 0 {
		return ""
	}
	seconds := int64((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
