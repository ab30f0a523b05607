package tws

import (
	"fmt"
	"net/url"
)

// WithWSScheme rewrites the scheme of addr for WebSocket use: https becomes
// wss, http and any other non-WebSocket scheme become ws. Addresses already
// using ws or wss are returned unchanged.
func WithWSScheme(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
