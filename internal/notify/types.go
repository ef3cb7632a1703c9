package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/shantoshdurai/ClassNow-app/internal/ident"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
)

var ErrUnknownDriver = errors.New("unknown notify driver")

type Config struct {
	// Driver is "log" (default), "telegram" or "none".
	Driver     string
	RatePerSec int
	Telegram   TelegramConfig
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// URL overrides the Bot API endpoint.
	URL string
}

// Message is one rendered reminder.
type Message struct {
	// Key identifies the notification; a newer one with the same key replaces
	// the older one on sinks that support it.
	Key    int32
	Title  string
	Body   string
	Detail string
}

// Sink is a delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// Format renders the reminder text for p.
// An empty title or location is shown as "Class" or "Unknown Room".
func Format(p reminder.Payload) Message {
	title, room := p.Title, p.Location
	if title == "" {
		title = "Class"
	}
	if room == "" {
		room = "Unknown Room"
	}
	return Message{
		Key:    ident.CorrelationID(title + room),
		Title:  "Class Starting Soon: " + title,
		Body:   fmt.Sprintf("Room: %s starts in %d minutes.", room, p.LeadTimeMinutes),
		Detail: fmt.Sprintf("Your %s class in Room %s starts in %d minutes. Get ready!", title, room, p.LeadTimeMinutes),
	}
}
