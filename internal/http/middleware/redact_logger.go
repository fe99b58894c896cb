// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access logger. Customer phone numbers reach this
// service in webhook bodies and operator queries, so nothing is logged
// without scrubbing:
//
//   - bodies are never logged
//   - emails, phone numbers and UUID-like ids are replaced in query strings
//     and header values
//   - Authorization, Cookie, Set-Cookie and any MaskHeaders are fully masked
//   - query parameters named in MaskParams (plus hub.verify_token) are masked
//
// It also installs the request-scoped logger, so it must run after
// RequestID and Identity.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions lists extra header names and query parameters to mask.
// Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, h := range list {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				out[h] = struct{}{}
			}
		}
	}
	return out
}

// redactQuery masks whole values of sensitive parameters and pattern-scrubs
// the rest. Unparseable queries are scrubbed as a single string.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redact(truncate(raw, maxQueryLogLength))
	}
	for k, vv := range vals {
		_, masked := mask[strings.ToLower(k)]
		for i := range vv {
			if masked {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redact(vv[i])
			}
		}
	}
	q, _ := url.QueryUnescape(vals.Encode())
	return truncate(q, maxQueryLogLength)
}

// RedactingLogger emits one structured line per request at info, warn (4xx)
// or error (5xx, or when handlers recorded gin errors).
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"hub.verify_token", "access_token"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()
		l := attachLogger(c)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()

		ev := l.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}

		// Without RequestID upstream, fall back to whatever header is visible.
		if _, ok := c.Get(requestIDKey); !ok {
			reqID := c.Writer.Header().Get(requestIDHeader)
			if reqID == "" {
				reqID = c.GetHeader(requestIDHeader)
			}
			ev = ev.Str("request_id", reqID)
		}
		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
