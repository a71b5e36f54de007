// Package telegram adapts pith's generic channel.Channel interface onto a
// single-user Telegram bot via telebot.v4 long polling.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/pith-agent/pith/internal/channel"
	. "github.com/pith-agent/pith/internal/logging"
)

// maxTelegramMessage is Telegram's message size limit, with headroom.
const maxTelegramMessage = 4000

// Bot is a channel.Channel backed by a single Telegram chat: the owner's.
type Bot struct {
	bot     *tele.Bot
	ownerID int64

	inbound chan channel.InboundMessage
	ready   chan struct{}
}

// New creates a Telegram bot bound to a single owner chat id. Messages from
// any other chat are dropped.
func New(token string, ownerID int64) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token not configured")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	b := &Bot{
		bot:     bot,
		ownerID: ownerID,
		inbound: make(chan channel.InboundMessage, 32),
		ready:   make(chan struct{}),
	}

	bot.Handle(tele.OnText, b.handleText)

	L_info("telegram: bot identity resolved", "bot", "@"+bot.Me.Username, "id", bot.Me.ID)
	return b, nil
}

func (b *Bot) Name() string { return "telegram" }

// Connect starts long-polling in the background.
func (b *Bot) Connect(ctx context.Context) error {
	go b.bot.Start()
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	close(b.ready)
	L_info("telegram: polling started")
	return nil
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || sender.ID != b.ownerID {
		L_debug("telegram: message from non-owner ignored", "senderID", senderIDOf(sender))
		return nil
	}

	_ = c.Notify(tele.Typing)

	msg := channel.InboundMessage{
		Text:    c.Text(),
		ReplyTo: fmt.Sprintf("%d", c.Chat().ID),
	}

	select {
	case b.inbound <- msg:
	default:
		L_warn("telegram: inbound buffer full, dropping message")
	}
	return nil
}

func senderIDOf(u *tele.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// Recv blocks until the next message from the owner arrives.
func (b *Bot) Recv(ctx context.Context) (channel.InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return channel.InboundMessage{}, ctx.Err()
	}
}

// Send delivers text to the chat identified by replyTo, splitting on
// Telegram's message size limit.
func (b *Bot) Send(ctx context.Context, replyTo, text string) error {
	chatID, err := parseChatID(replyTo, b.ownerID)
	if err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}

	for _, chunk := range splitMessage(text, maxTelegramMessage) {
		if _, err := b.bot.Send(chat, chunk); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

func (b *Bot) Close() error {
	b.bot.Stop()
	return nil
}

func parseChatID(replyTo string, fallback int64) (int64, error) {
	if replyTo == "" {
		return fallback, nil
	}
	var id int64
	if _, err := fmt.Sscanf(replyTo, "%d", &id); err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", replyTo, err)
	}
	return id, nil
}

// splitMessage breaks text into chunks at paragraph, sentence, or word
// boundaries so each chunk stays under maxLen.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}
		at := findSplitPoint(remaining, maxLen)
		chunks = append(chunks, strings.TrimSpace(remaining[:at]))
		remaining = strings.TrimSpace(remaining[at:])
	}
	return chunks
}

func findSplitPoint(text string, maxLen int) int {
	search := text[:maxLen]
	if idx := strings.LastIndex(search, "\n\n"); idx > maxLen/2 {
		return idx + 2
	}
	if idx := strings.LastIndex(search, "\n"); idx > maxLen/2 {
		return idx + 1
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(search, sep); idx > maxLen/2 {
			return idx + len(sep)
		}
	}
	if idx := strings.LastIndex(search, " "); idx > maxLen/2 {
		return idx + 1
	}
	return maxLen
}
