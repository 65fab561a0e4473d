package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared chain: panic recovery, update logging,
// optional per-user rate limiting and reply counters.
func DefaultMiddlewares(bot string, rl coreconfig.RateLimitConfig, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.Recover},
		{Name: "logger", Use: middleware.Logger(bot)},
	}

	if interval := time.Duration(rl.IntervalMS) * time.Millisecond; interval > 0 {
		exclude := make(map[string]struct{}, len(rl.ExcludeUpdates))
		for _, t := range rl.ExcludeUpdates {
			exclude[strings.ToLower(t)] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimit(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   exclude,
				OnLimited: onLimited,
			}),
		})
	}

	return append(mws, Middleware{Name: "metrics", Use: middleware.MessageMetrics})
}
