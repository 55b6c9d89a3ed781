package middleware

import (
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimit: per-channel limits applied to inbound messages.
// Zero values disable the matching check.
type RateLimit struct {
	MaxMessageSize    int
	MaxObjectDepth    int
	MaxObjectElements int
	MessagesPerSecond float64
	BurstSize         int
}

// NewRateLimit: creates a new RateLimit configuration
func NewRateLimit(maxMessageSize, maxObjectDepth, maxObjectElements int, messagesPerSecond float64, burstSize int) *RateLimit {
	return &RateLimit{
		MaxMessageSize:    maxMessageSize,
		MaxObjectDepth:    maxObjectDepth,
		MaxObjectElements: maxObjectElements,
		MessagesPerSecond: messagesPerSecond,
		BurstSize:         burstSize,
	}
}

// NewMessageLimiter: token bucket for one channel's inbound messages
func (rl *RateLimit) NewMessageLimiter() *rate.Limiter {
	if rl == nil || rl.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := rl.BurstSize
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rl.MessagesPerSecond), burst)
}

// ValidateMessageSize: checks if a message is within the size limit
func (rl *RateLimit) ValidateMessageSize(msgSize int) bool {
	if rl == nil || rl.MaxMessageSize <= 0 {
		return true
	}
	return msgSize <= rl.MaxMessageSize
}

// ValidateObjectComplexity: validates canvas object complexity.
// Checks nesting depth and key count (not array lengths).
func (rl *RateLimit) ValidateObjectComplexity(data map[string]any) error {
	if rl == nil || data == nil {
		return nil
	}
	depth, keys := validateComplexity(data, 0)

	if rl.MaxObjectDepth > 0 && depth > rl.MaxObjectDepth {
		return fmt.Errorf("object nesting too deep: %d levels (max %d)", depth, rl.MaxObjectDepth)
	}

	if rl.MaxObjectElements > 0 && keys > rl.MaxObjectElements {
		return fmt.Errorf("object too complex: %d keys (max %d)", keys, rl.MaxObjectElements)
	}

	return nil
}

// validateComplexity: recursively checks depth and counts keys
func validateComplexity(data any, currentDepth int) (int, int) {
	maxDepth := currentDepth
	keyCount := 0

	switch v := data.(type) {
	case map[string]any:
		keyCount = len(v)
		for _, val := range v {
			subDepth, subKeys := validateComplexity(val, currentDepth+1)
			if subDepth > maxDepth {
				maxDepth = subDepth
			}
			keyCount += subKeys
		}
	case []any:
		for _, val := range v {
			subDepth, subKeys := validateComplexity(val, currentDepth+1)
			if subDepth > maxDepth {
				maxDepth = subDepth
			}
			keyCount += subKeys
		}
	}

	return maxDepth, keyCount
}
