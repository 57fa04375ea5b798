// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
)

// TrustedProxies decides whether forwarding headers may name the client.
//
// Rate limits, the burst guard and audit events all key on the resolved
// address, so X-Real-IP and X-Forwarded-For are only read when the direct
// peer is a listed proxy. A nil or empty list trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

/*
NewTrustedProxies parses a list of proxy addresses or CIDR ranges.

Parameters:
  - entries: []string (e.g. "10.0.0.0/8", "192.0.2.10")

Returns:
  - *TrustedProxies: The parsed list
  - error: The first entry that is neither an IP nor a CIDR
*/
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	proxies := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parseProxy(entry)
		if err != nil {
			return nil, fmt.Errorf("middleware: invalid trusted proxy %q: %w", entry, err)
		}
		proxies.prefixes = append(proxies.prefixes, prefix)
	}
	return proxies, nil
}

func parseProxy(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		return prefix.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Trusts reports whether ip belongs to a listed proxy.
func (proxies *TrustedProxies) Trusts(ip string) bool {
	if proxies == nil || len(proxies.prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range proxies.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

/*
ClientIP resolves the address a request is attributed to.

The direct peer wins unless it is a trusted proxy. Behind one, X-Real-IP is
used when present; otherwise X-Forwarded-For is walked from the right and the
first hop that is not itself a trusted proxy is returned, so a client cannot
prepend its own entries.
*/
func (proxies *TrustedProxies) ClientIP(request *http.Request) string {
	peer := remoteHost(request)
	if !proxies.Trusts(peer) {
		return peer
	}

	if ip := strings.TrimSpace(request.Header.Get(constants.HeaderXRealIP)); validIP(ip) {
		return ip
	}

	hops := strings.Split(request.Header.Get(constants.HeaderXForwardedFor), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if !validIP(hop) {
			break
		}
		if !proxies.Trusts(hop) {
			return hop
		}
	}
	return peer
}

// remoteHost is the direct peer address without its port.
func remoteHost(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}

func validIP(value string) bool {
	_, err := netip.ParseAddr(value)
	return err == nil
}
