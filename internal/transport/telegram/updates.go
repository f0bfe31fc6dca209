package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

// Sink receives converted inbound updates.
type Sink func(transport.Update)

// Convert maps a Telegram update to a transport update. ok is false for
// update types the engine does not handle (edits, joins, media without
// text, inline queries) and for commands addressed to a bot other than
// botName. An empty botName accepts every command.
func Convert(u tgbotapi.Update, botName string) (transport.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return transport.Update{}, false
		}
		return transport.Update{
			Kind:      transport.UpdateAction,
			Actor:     actorOf(cq.From),
			Chat:      model.ChatID(cq.Message.Chat.ID),
			Message:   refOf(cq.Message),
			ActionID:  cq.ID,
			ActionTag: cq.Data,
		}, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return transport.Update{}, false
		}
		upd := transport.Update{
			Kind:    transport.UpdateText,
			Actor:   actorOf(m.From),
			Chat:    model.ChatID(m.Chat.ID),
			Message: refOf(m),
			Text:    m.Text,
		}
		if m.IsCommand() {
			name, target, addressed := strings.Cut(m.CommandWithAt(), "@")
			if addressed && botName != "" && !strings.EqualFold(target, botName) {
				return transport.Update{}, false
			}
			upd.Kind = transport.UpdateCommand
			upd.Command = strings.ToLower(name)
		}
		return upd, true
	}
	return transport.Update{}, false
}

func actorOf(u *tgbotapi.User) model.Actor {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return model.Actor{ID: model.ActorID(u.ID), DisplayName: name}
}

func refOf(m *tgbotapi.Message) model.MessageRef {
	return model.MessageRef{Chat: model.ChatID(m.Chat.ID), MessageID: m.MessageID}
}

// Poll removes any webhook and long-polls for updates until ctx is
// cancelled.
func (b *Bot) Poll(ctx context.Context, sink Sink) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("polling for updates", "bot", b.Username())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.deliver(u, sink)
		}
	}
}

// SetWebhook registers url with Telegram.
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// WebhookHandler decodes webhook deliveries and passes them to sink.
// Telegram retries on non-2xx, so only undecodable bodies are rejected.
func (b *Bot) WebhookHandler(sink Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("rejected webhook delivery", "error", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		b.deliver(*u, sink)
		w.WriteHeader(http.StatusOK)
	})
}

// WebhookPath is the path the webhook is served under. The token makes it
// unguessable.
func WebhookPath(token string) string {
	return "/webhook/" + token
}

func (b *Bot) deliver(u tgbotapi.Update, sink Sink) {
	upd, ok := Convert(u, b.Username())
	if !ok {
		b.logger.Debug("ignored update", "update_id", u.UpdateID)
		return
	}
	sink(upd)
}
