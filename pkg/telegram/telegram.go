package telegram

import (
	"context"
	"net/http"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

const maxMessageLength = 4000

// Client posts plain-text messages to one operations chat. It satisfies
// logger.AlertSender.
type Client struct {
	cfg           config.TelegramConfig
	log           *logger.Logger
	bot           *telebot.Bot
	chat          *telebot.Chat
	globalLimiter *rate.Limiter
}

// New builds an offline bot: no polling, no getMe round-trip at startup.
// apiURL may be empty to use the public Bot API.
func New(cfg config.TelegramConfig, log *logger.Logger, apiURL string) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	timeout := cfg.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := telebot.NewBot(telebot.Settings{
		URL:     apiURL,
		Token:   cfg.BotToken,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	perSecond := cfg.MaxGlobalRequestPerSecond
	if perSecond <= 0 {
		perSecond = 20
	}

	return &Client{
		cfg:           cfg,
		log:           log,
		bot:           bot,
		chat:          &telebot.Chat{ID: cfg.ChatID},
		globalLimiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}, nil
}

// Send waits for the rate limiter and posts text to the configured chat.
func (c *Client) Send(ctx context.Context, text string) error {
	if err := c.globalLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for telegram rate limit")
	}
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength]
	}
	if _, err := c.bot.Send(c.chat, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return errors.Wrap(err, "send telegram message")
	}
	return nil
}

// SendAlert posts a log alert produced by logger.AlertCore.
func (c *Client) SendAlert(message string) error {
	timeout := c.cfg.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Send(ctx, "📛 "+message)
}
