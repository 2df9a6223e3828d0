package guard

import (
	"net"
	"net/http"
	"strings"
)

type KeyFunc func(r *http.Request) string

// ClientIP resolve o IP do cliente.
//
// Com trustXFF, usa o primeiro IP do X-Forwarded-For (cliente original);
// só ligue atrás de um proxy que sobrescreve esse header.
func ClientIP(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
