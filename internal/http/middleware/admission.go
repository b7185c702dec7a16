// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file wires the fixed-window admission controller into Gin. Only
// mutating requests (POST, PUT, PATCH, DELETE) are counted; reads pass
// through untouched. A saturated window is answered with 429 and a
// Retry-After hint, while counter store faults let the request through
// (fail-open) and are logged at most once per interval.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-items-api/internal/ratelimit"
)

// admissionKey is the Gin context key holding the ratelimit.Decision.
const admissionKey = "admission.decision"

// CodeRateLimited is the machine-readable code of a 429 response.
const CodeRateLimited = "rate_limited"

// AdmissionOptions configures Admission.
type AdmissionOptions struct {
	// FailOpenLogEvery throttles fail-open warnings. Defaults to 10s.
	FailOpenLogEvery time.Duration
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// AdmissionFrom returns the decision made for this request, if any.
func AdmissionFrom(c *gin.Context) (ratelimit.Decision, bool) {
	v, ok := c.Get(admissionKey)
	if !ok {
		return ratelimit.Decision{}, false
	}
	d, ok := v.(ratelimit.Decision)
	return d, ok
}

// Admission returns a middleware that consults ctrl for each write request.
//
// On rejection it emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{
//	  "error":        "Too many requests",
//	  "message":      "Rate limit exceeded. Try again later.",
//	  "retryAfter":   1,
//	  "retryAfterMs": 600,
//	  "code":         "rate_limited",
//	  "request_id":   "<uuid>"
//	}
func Admission(ctrl *ratelimit.Controller, opt AdmissionOptions) gin.HandlerFunc {
	every := opt.FailOpenLogEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	failOpenLog := &rate.Sometimes{First: 1, Interval: every}
	limit := strconv.FormatInt(ctrl.Limit(), 10)

	return func(c *gin.Context) {
		if !isWriteMethod(c.Request.Method) || IsRateBypass(c) {
			c.Next()
			return
		}

		d := ctrl.Decide(c.Request.Context(), ClientIDFrom(c))
		c.Set(admissionKey, d)
		admissionDecisions.WithLabelValues(d.Outcome.String()).Inc()

		switch d.Outcome {
		case ratelimit.OutcomeFailOpen:
			lg := LoggerFrom(c)
			failOpenLog.Do(func() {
				lg.Warn().Err(d.Err).Str("key", d.Key).Msg("admission store unavailable; allowing request")
			})
			c.Next()
			return

		case ratelimit.OutcomeRejected:
			secs := retryAfterSeconds(d.RetryAfter)
			c.Header("Retry-After", strconv.Itoa(secs))
			c.Header("X-RateLimit-Limit", limit)
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":        "Too many requests",
				"message":      "Rate limit exceeded. Try again later.",
				"retryAfter":   secs,
				"retryAfterMs": d.RetryAfter.Milliseconds(),
				"code":         CodeRateLimited,
				"request_id":   asString(c.Value(requestIDKey)),
			})
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
		c.Next()
	}
}

func isWriteMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// retryAfterSeconds rounds up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
