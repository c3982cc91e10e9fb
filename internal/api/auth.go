// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/metrics"
)

// tokenMatches compares a presented bearer token against the configured
// secret in constant time. Both sides are hashed first so tokens of
// different lengths take the same comparison path; there is no early
// exit to leak proximity through timing.
func tokenMatches(presented, configured string) bool {
	p := sha256.Sum256([]byte(presented))
	c := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(p[:], c[:]) == 1
}

// requireTriggerAuth guards the pipeline trigger endpoint. Rejections
// are uniform: same status, same body, regardless of whether the token
// was absent, malformed, or merely wrong.
func (h *Handler) requireTriggerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		configured := h.cfg.Security.TriggerToken
		if configured == "" {
			// No token configured means the trigger is disabled, not open.
			reject(w, "auth")
			return
		}

		presented := bearerToken(r)
		if !tokenMatches(presented, configured) {
			reject(w, "auth")
			return
		}

		// The limiter only sees authenticated callers, so a 429 here
		// cannot leak token validity to anyone else.
		if !h.triggerLimiter.Allow(clientKey(r)) {
			metrics.TriggerRejections.WithLabelValues("rate_limited").Inc()
			respondError(w, http.StatusTooManyRequests, "rate limited")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, reason string) {
	metrics.TriggerRejections.WithLabelValues(reason).Inc()
	logging.Debug().Str("reason", reason).Msg("Trigger request rejected")
	respondError(w, http.StatusUnauthorized, "unauthorized")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return header[len(prefix):]
}

// clientKey identifies a caller for rate limiting; the remote IP without
// port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
