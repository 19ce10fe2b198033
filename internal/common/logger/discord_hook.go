package logger

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/traintracker-data/internal/common/discord"
)

// DiscordHook posts error and fatal entries to a Discord webhook.
type DiscordHook struct {
	client   *discord.Client
	minLevel zerolog.Level
	send     func(level, message string)
}

func NewDiscordHook(webhookURL string) *DiscordHook {
	h := &DiscordHook{
		client:   discord.NewClient(webhookURL),
		minLevel: zerolog.ErrorLevel,
	}
	h.send = func(level, message string) {
		// webhook failures cannot be logged through the hooked logger
		_ = h.client.SendLogMessage(level, message, nil)
	}
	return h
}

// Run implements zerolog.Hook. Delivery happens off the logging goroutine.
func (h *DiscordHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level < h.minLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return
	}
	lvl := strings.ToUpper(level.String())
	if level == zerolog.FatalLevel {
		// the process exits right after a fatal entry
		h.send(lvl, message)
		return
	}
	go h.send(lvl, message)
}
