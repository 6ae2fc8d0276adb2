// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which layers a few API-specific headers
// on top of gin-contrib/secure. HSTS is opt-in and only sent for requests that
// arrived over HTTPS (directly or via X-Forwarded-Proto).
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecurityOptions configures HTTP security headers emitted by SecurityHeaders.
//
// HSTSMaxAge defaults to 180 days when not positive. NoStore adds
// Cache-Control: no-store (plus legacy Pragma/Expires). EnablePolicy sends
// Permissions-Policy and X-Permitted-Cross-Domain-Policies.
type SecurityOptions struct {
	EnableHSTS   bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // e.g., 180 * 24h
	NoStore      bool          // add Cache-Control: no-store
	EnablePolicy bool          // include Permissions-Policy, etc.
}

// SecurityHeaders returns a Gin middleware that adds conservative security
// headers to each response.
//
// Always: X-Content-Type-Options, X-Frame-Options, Referrer-Policy (through
// gin-contrib/secure). Optional: feature policies, no-store caching, HSTS on
// HTTPS requests. X-Request-ID is added to Access-Control-Expose-Headers so
// the browser client can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int64(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int64((180 * 24 * time.Hour).Seconds())
	}

	base := secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
	})
	var hsts gin.HandlerFunc
	if opt.EnableHSTS {
		hsts = secure.New(secure.Config{
			STSSeconds:           maxAge,
			STSIncludeSubdomains: true,
		})
	}

	return func(c *gin.Context) {
		base(c)
		if c.IsAborted() {
			return
		}
		if hsts != nil && isHTTPS(c.Request) {
			hsts(c)
		}

		h := c.Writer.Header()
		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if rid := h.Get(requestIDHeader); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			cur := h.Get(hdr)
			if cur == "" {
				h.Set(hdr, requestIDHeader)
			} else if !strings.Contains(cur, requestIDHeader) {
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
