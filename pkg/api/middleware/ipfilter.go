// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"
)

// IPFilter is an allowlist of client addresses and networks. Loopback
// clients are always let through so the local dashboard keeps working.
type IPFilter struct {
	prefixes []netip.Prefix
}

// NewIPFilter parses entries as addresses or CIDR networks. Invalid entries
// are logged and skipped. No valid entries means no filtering.
func NewIPFilter(entries []string) *IPFilter {
	f := &IPFilter{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err == nil {
				f.prefixes = append(f.prefixes, p.Masked())
				continue
			}
		} else if addr, err := netip.ParseAddr(entry); err == nil {
			f.prefixes = append(f.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		} else if ap, err := netip.ParseAddrPort(entry); err == nil {
			addr := ap.Addr().Unmap()
			f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		log.Warn().Str("entry", entry).Msg("invalid address in api allowed_ips, skipping")
	}
	return f
}

func (f *IPFilter) Empty() bool {
	return len(f.prefixes) == 0
}

// IsAllowed takes a RemoteAddr in host:port form.
func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if f.Empty() {
		return true
	}
	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		return false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// HTTPIPFilterMiddleware answers 403 to clients outside the allowlist,
// WebSocket upgrades included.
func HTTPIPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("ip", remoteHost(r.RemoteAddr)).
					Str("path", r.URL.Path).
					Msg("request from blocked address")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
