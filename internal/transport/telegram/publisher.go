// Package telegram delivers posts to a Telegram channel via the Bot API.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"avtopost/internal/post"
	"avtopost/internal/poster"
	logx "avtopost/pkg/logx"
)

// captionLimit is how much of the text rides along as a media caption.
// Telegram caps captions at 1024; we clip a little earlier and push the
// remainder as a follow-up text message.
const captionLimit = 1000

// overflowPause spaces the caption-overflow message from the media message.
const overflowPause = 400 * time.Millisecond

type Config struct {
	Token     string
	ChannelID int64
}

// Publisher implements poster.Transport against one destination channel.
type Publisher struct {
	bot     *tele.Bot
	channel *tele.Chat
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChannelID == 0 {
		return nil, errors.New("telegram channel_id is empty")
	}
	// No poller: this process only sends.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{bot: b, channel: &tele.Chat{ID: cfg.ChannelID}, log: log}, nil
}

// Publish delivers one item: photo or video with caption when a media URL is
// present, plain text otherwise. Inline URL buttons attach to the first
// message. One attempt, no internal retry.
func (p *Publisher) Publish(ctx context.Context, it post.Item) (poster.Receipt, error) {
	if err := ctxErr(ctx); err != nil {
		return poster.Receipt{}, err
	}

	text := post.NormalizeText(it.Text)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if rm := inlineKeyboard(it.Buttons); rm != nil {
		opts.ReplyMarkup = rm
	}

	var what any = text
	caption, overflow := clipCaption(text)
	switch {
	case it.PhotoURL != "":
		what = &tele.Photo{File: tele.FromURL(it.PhotoURL), Caption: caption}
	case it.VideoURL != "":
		what = &tele.Video{File: tele.FromURL(it.VideoURL), Caption: caption}
	default:
		overflow = ""
	}

	msg, err := p.bot.Send(p.channel, what, opts)
	if err != nil {
		return poster.Receipt{}, err
	}

	if overflow != "" {
		time.Sleep(overflowPause)
		if err := ctxErr(ctx); err != nil {
			return poster.Receipt{MessageID: msg.ID}, err
		}
		if _, err := p.bot.Send(p.channel, overflow, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
			// The post itself is out; the tail is best-effort.
			p.log.Warn("caption overflow send failed", logx.Err(err))
		}
	}

	return poster.Receipt{MessageID: msg.ID}, nil
}

// SendText delivers a plain message to an arbitrary chat (owner notifications).
func (p *Publisher) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	_, err := p.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

func inlineKeyboard(buttons []post.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []tele.InlineButton{{Text: b.Text, URL: b.URL}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// clipCaption splits text into a caption-sized head and the remaining tail.
func clipCaption(text string) (caption, overflow string) {
	r := []rune(text)
	if len(r) <= captionLimit {
		return text, ""
	}
	return string(r[:captionLimit]) + "…", string(r[captionLimit:])
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
