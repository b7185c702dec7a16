package ratelimit

import "strings"

// AnonymousClient is the shared bucket for requests without a client address.
const AnonymousClient = "anonymous"

// ClientFromHeader extracts the client identifier from a forwarded-address
// header value. Only the first (left-most) hop is used.
func ClientFromHeader(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	if v = strings.TrimSpace(v); v == "" {
		return AnonymousClient
	}
	return v
}
