package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"chapel/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and User-Agent and stores them in the
// request context for audit enrichment. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the originating client IP, preferring proxy headers
// set by the hosting platform.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Device summarises a User-Agent as browser and operating system names.
type Device struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// DescribeUserAgent parses a raw User-Agent header. Empty input yields a zero Device.
func DescribeUserAgent(raw string) Device {
	if strings.TrimSpace(raw) == "" {
		return Device{}
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	return Device{
		Browser: browser,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
