// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides request-scoped helpers for the assistant
// service.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// trustedIPHeaders are edge-injected headers set by the platforms the docs
// site deploys behind, checked in order. Client-suppliable forwarding
// headers (X-Forwarded-For, X-Real-IP) are deliberately absent: trusting
// them would let a client rotate rate-limit keys by spoofing a header.
var trustedIPHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"Fly-Client-IP",
	"X-Nf-Client-Connection-Ip",
	"X-Vercel-Forwarded-For",
}

// fingerprintLength is the hex length of the fallback fingerprint.
const fingerprintLength = 32

// ResolveClientIdentity derives the stable rate-limit key for a request.
//
// # Description
//
// Checks the trusted edge headers in order; the first value that parses as
// an IPv4/IPv6 address wins and yields an "ip:<addr>" key. When no trusted
// header is present, the key falls back to "fp:" plus a truncated SHA-256
// fingerprint of user-agent, accept-language, and host. The fingerprint is
// weaker than an IP (shared across identical clients) but cannot be steered
// by spoofed forwarding headers.
//
// # Inputs
//
//   - r: Inbound request. Only headers and Host are read.
//
// # Outputs
//
//   - string: Namespaced key, "ip:..." or "fp:...".
func ResolveClientIdentity(r *http.Request) string {
	for _, header := range trustedIPHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		// Some edges append the proxy chain; only the first hop is the client.
		if idx := strings.IndexByte(value, ','); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		if ip := net.ParseIP(value); ip != nil {
			return "ip:" + ip.String()
		}
	}

	material := fmt.Sprintf("%s|%s|%s",
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Host,
	)
	sum := sha256.Sum256([]byte(material))
	return "fp:" + hex.EncodeToString(sum[:])[:fingerprintLength]
}
