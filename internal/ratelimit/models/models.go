package models

import (
	"time"
)

// EndpointClass groups routes that share an inbound limit.
type EndpointClass string

const (
	// ClassPublic covers unauthenticated paymail discovery and destination issuance.
	ClassPublic EndpointClass = "public"
	// ClassSettlement covers transaction submission, which costs a broadcast.
	ClassSettlement EndpointClass = "settlement"
	// ClassWallet covers signed BRC-100 wallet calls.
	ClassWallet EndpointClass = "wallet"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassPublic, ClassSettlement, ClassWallet:
		return true
	}
	return false
}

// Limit is a sliding window allowance.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewIPRateLimitKey builds the bucket key for ip within class.
func NewIPRateLimitKey(ip string, class EndpointClass) string {
	return "ratelimit:ip:" + SanitizeKeySegment(ip) + ":" + string(class)
}
