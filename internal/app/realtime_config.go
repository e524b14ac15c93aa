package app

import (
	"github.com/fadmann/chat/internal/ratelimit"
	"github.com/fadmann/chat/internal/realtime"
)

// RegistryOptions converts RealtimeConfig into room registry options.
func (c RealtimeConfig) RegistryOptions() []realtime.Option {
	return []realtime.Option{
		realtime.WithWriteTimeout(c.WriteTimeout),
		realtime.WithTypingTTL(c.TypingTTL),
	}
}

// LimiterConfig converts RealtimeConfig into rate limiter parameters.
func (c RealtimeConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxMessages: c.RateLimit.MaxMessages,
		Window:      c.RateLimit.Window,
	}
}
