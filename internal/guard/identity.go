package guard

import (
	"net"
	"net/http"
	"strings"
)

// Identity extracts the rate-limiting identity for a request.
//
// Proxy headers are only consulted when trustProxy is set, since they are
// client-supplied and trivially spoofable otherwise. Precedence behind a
// trusted proxy: CF-Connecting-IP, first X-Forwarded-For entry, X-Real-IP.
// Without a trusted proxy the TCP peer address is used.
func Identity(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
			return strings.TrimSpace(cfIP)
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
