package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

type logSink struct{ log logx.Logger }

func (s logSink) Name() string { return "log" }

func (s logSink) Send(ctx context.Context, m Message) error {
	s.log.Info(m.Title, logx.String("body", m.Body), logx.Int32("key", m.Key))
	return nil
}

type nopSink struct{}

func (nopSink) Name() string                             { return "none" }
func (nopSink) Send(ctx context.Context, m Message) error { return nil }

type telegramSink struct {
	bot *tele.Bot
	cfg TelegramConfig
}

func newTelegramSink(cfg TelegramConfig) (*telegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	// Offline skips the getMe round trip; the bot is only used for sending.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &telegramSink{bot: b, cfg: cfg}, nil
}

func (s *telegramSink) Name() string { return "telegram" }

func (s *telegramSink) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := "<b>" + escapeHTML(m.Title) + "</b>\n" + escapeHTML(m.Detail)
	_, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.cfg.ThreadID,
	})
	return err
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
