package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClient identifies requests whose origin cannot be determined.
const UnknownClient = "unknown"

// ClientIPFunc resolves the rate-limit identity of a request.
type ClientIPFunc func(r *http.Request) string

// ClientIP returns the rate-limit identity of a request: the first
// X-Forwarded-For entry, then X-Real-IP, then the host of RemoteAddr.
//
// Forwarding headers are taken from any peer, so the gate must sit behind a
// proxy that overwrites them. Use TrustedProxies otherwise.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return peerHost(r)
}

// TrustedProxies returns a resolver that honors forwarding headers only when
// the direct peer is one of proxies (IPs or CIDRs). X-Forwarded-For is then
// read right to left and the first hop outside proxies is the client.
// Requests from any other peer are identified by the peer address alone.
func TrustedProxies(proxies []string) (ClientIPFunc, error) {
	prefixes := make([]netip.Prefix, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", p)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	trusted := func(ip string) bool {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, prefix := range prefixes {
			if prefix.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := peerHost(r)
		if !trusted(peer) {
			return peer
		}

		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			hops := strings.Split(forwarded, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop != "" && !trusted(hop) {
					return hop
				}
			}
			if first := strings.TrimSpace(hops[0]); first != "" {
				return first
			}
		}

		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
		return peer
	}, nil
}

func peerHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
