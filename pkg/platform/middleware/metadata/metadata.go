// Package metadata resolves client metadata (IP address, User-Agent, request ID)
// from the HTTP request and stores it on the context via requestcontext.
package metadata

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"warden/pkg/requestcontext"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// forwardingHeaders are consulted in order. The first public address found wins.
var forwardingHeaders = []string{
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// Resolver resolves the client address of a request. Forwarding headers are
// honoured only when the connecting peer is one of the trusted proxies;
// otherwise any client could name a fresh address on every request and
// escape per-IP throttling.
type Resolver struct {
	trusted []*net.IPNet
}

// NewResolver accepts CIDR ranges or bare addresses. An empty list trusts no
// proxy and the connection's RemoteAddr is always used.
func NewResolver(trustedProxies []string) (*Resolver, error) {
	res := &Resolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			res.trusted = append(res.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		res.trusted = append(res.trusted, network)
	}
	return res, nil
}

// ClientIP returns the forwarded client address when the peer is a trusted
// proxy and the peer address otherwise.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := remoteIP(r)
	if peer != nil && res.trusts(peer) {
		return ClientIPFromRequest(r)
	}
	if peer == nil {
		return ""
	}
	return peer.String()
}

func (res *Resolver) trusts(ip net.IP) bool {
	if res == nil {
		return false
	}
	for _, network := range res.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func (res *Resolver) ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), res.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID propagates an inbound X-Request-ID or mints a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

// ClientIPFromRequest resolves the client address from forwarding headers
// without checking who sent them; Resolver.ClientIP gates it on a trusted
// peer. Only public addresses are accepted from headers, so a spoofed private
// or loopback address cannot pin the IP scope. When no header carries a
// public address the connection's RemoteAddr is used. Returns "" when
// nothing parses.
func ClientIPFromRequest(r *http.Request) string {
	for _, h := range forwardingHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		for _, candidate := range strings.Split(v, ",") {
			ip := parseCandidate(candidate)
			if ip != nil && isPublic(ip) {
				return ip.String()
			}
		}
	}
	if ip := remoteIP(r); ip != nil {
		return ip.String()
	}
	return ""
}

func remoteIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(strings.TrimSpace(host))
}

// parseCandidate accepts bare addresses, host:port pairs and the
// RFC 7239 "for=" form.
func parseCandidate(s string) net.IP {
	s = strings.TrimSpace(s)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "for=") {
			s = strings.Trim(part[4:], `"`)
			break
		}
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.Trim(s, "[]")
	return net.ParseIP(s)
}

func isPublic(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}
