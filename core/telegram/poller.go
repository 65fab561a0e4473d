package telegram

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/claimdesk/core/config"

	tele "gopkg.in/telebot.v4"
)

// BuildPoller returns a webhook or long poller for the bot's run mode.
func BuildPoller(cfg coreconfig.BotConfig) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(cfg.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: pollTimeout(cfg)}
}

func pollTimeout(cfg coreconfig.BotConfig) time.Duration {
	if cfg.LongPollTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.LongPollTimeoutSeconds) * time.Second
}
