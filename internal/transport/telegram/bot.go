// Package telegram adapts the Telegram Bot API to transport.Messenger.
//
// Inbound updates arrive either by long polling (Poll) or through a webhook
// handler (WebhookHandler); both hand converted updates to a sink. Outbound
// calls share one token-bucket limiter so bursts stay under the platform's
// flood limits.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

const (
	// DefaultRate is the sustained outbound calls per second.
	DefaultRate = 25.0
	// DefaultBurst is the number of calls allowed back to back.
	DefaultBurst = 5
	// pollTimeout is the long-polling timeout in seconds.
	pollTimeout = 60
)

// Bot is a transport.Messenger backed by the Telegram Bot API.
//
// Thread-safety: all methods are safe for concurrent use.
type Bot struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ transport.Messenger = (*Bot)(nil)

type options struct {
	endpoint string
	client   tgbotapi.HTTPClient
	rate     float64
	burst    int
	logger   *slog.Logger
}

// Option configures a Bot.
type Option func(*options)

// WithEndpoint overrides the API endpoint format, e.g. for a local Bot API
// server. It must contain two %s verbs: token and method.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c tgbotapi.HTTPClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithRate sets the outbound rate limit. Non-positive values keep the
// defaults.
func WithRate(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.rate = perSecond
		}
		if burst > 0 {
			o.burst = burst
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New connects to the Bot API and verifies the token with getMe.
func New(token string, opts ...Option) (*Bot, error) {
	o := options{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{},
		rate:     DefaultRate,
		burst:    DefaultBurst,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}

	return &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(o.rate), o.burst),
		logger:  o.logger,
	}, nil
}

// Username returns the bot's @username without the leading @.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Send implements transport.Messenger.
func (b *Bot) Send(ctx context.Context, chat model.ChatID, text string, kb *transport.Keyboard) (model.MessageRef, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return model.MessageRef{}, fmt.Errorf("send message: %w", err)
	}

	msg := tgbotapi.NewMessage(int64(chat), text)
	if kb != nil {
		msg.ReplyMarkup = markup(kb)
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return model.MessageRef{Chat: chat, MessageID: sent.MessageID}, nil
}

// Edit implements transport.Messenger. A nil keyboard removes the inline
// actions.
func (b *Bot) Edit(ctx context.Context, ref model.MessageRef, text string, kb *transport.Keyboard) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}

	cfg := tgbotapi.NewEditMessageText(int64(ref.Chat), ref.MessageID, text)
	if kb != nil {
		m := markup(kb)
		cfg.ReplyMarkup = &m
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	return nil
}

// Delete implements transport.Messenger.
func (b *Bot) Delete(ctx context.Context, ref model.MessageRef) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("delete message %d: %w", ref.MessageID, err)
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(int64(ref.Chat), ref.MessageID)); err != nil {
		return fmt.Errorf("delete message %d: %w", ref.MessageID, err)
	}
	return nil
}

// AnswerAction implements transport.Messenger.
func (b *Bot) AnswerAction(ctx context.Context, actionID string, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(actionID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Command is an entry of the bot's command menu.
type Command struct {
	Name        string
	Description string
}

// SetCommands publishes the command menu shown by Telegram clients.
func (b *Bot) SetCommands(cmds []Command) error {
	bc := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		bc = append(bc, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(bc...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

func markup(kb *transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Tag))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
