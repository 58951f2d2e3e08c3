// Package actor resolves the identity used for per-actor cooldowns.
package actor

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is the shared bucket for connections with no resolvable address.
const Unknown = "unknown"

const forwardedHeader = "X-Forwarded-For"

// Resolve returns the first hop of X-Forwarded-For if present, else the host part of the
// connection's remote address, else Unknown.
func Resolve(r *http.Request) string {
	if r == nil {
		return Unknown
	}
	if fwd := r.Header.Get(forwardedHeader); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return FromAddr(r.RemoteAddr)
}

func FromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// no port
		host = addr
	}
	if host == "" {
		return Unknown
	}
	return host
}

type Policy string

const (
	// PolicyShared lets unidentifiable actors place, all sharing one cooldown.
	PolicyShared Policy = "shared"
	// PolicyDeny refuses placements from unidentifiable actors.
	PolicyDeny Policy = "deny"
)

func ParsePolicy(s string) (Policy, bool) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyShared:
		return PolicyShared, true
	case PolicyDeny:
		return PolicyDeny, true
	default:
		return "", false
	}
}

// Allows reports whether an actor with this identity may place under the policy.
func (p Policy) Allows(id string) bool {
	return id != Unknown || p != PolicyDeny
}
