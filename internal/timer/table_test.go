package timer

import (
	"context"
	"testing"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
)

func collect(t *testing.T, tb *Table) <-chan reminder.Payload {
	t.Helper()
	ch := make(chan reminder.Payload, 16)
	tb.SetFireFunc(func(ctx context.Context, p reminder.Payload) { ch <- p })
	return ch
}

func TestTableFiresOnce(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{ExactPermission: true}, logNop(), nil)
	defer tb.Close()
	fired := collect(t, tb)

	prec, err := tb.Arm(context.Background(), 7, time.Now().Add(20*time.Millisecond), true, reminder.Payload{Title: "Math"})
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	if prec != reminder.Exact {
		t.Fatalf("precision: got %q", prec)
	}
	select {
	case p := <-fired:
		if p.Title != "Math" {
			t.Fatalf("payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	armed, _ := tb.Armed(context.Background())
	if len(armed) != 0 {
		t.Fatalf("fired timer still listed: %+v", armed)
	}
}

func TestTableArmReplacesSameID(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{ExactPermission: true}, logNop(), nil)
	defer tb.Close()
	fired := collect(t, tb)
	ctx := context.Background()

	if _, err := tb.Arm(ctx, 1, time.Now().Add(30*time.Millisecond), true, reminder.Payload{Title: "old"}); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := tb.Arm(ctx, 1, time.Now().Add(60*time.Millisecond), true, reminder.Payload{Title: "new"}); err != nil {
		t.Fatalf("re-arm: %v", err)
	}
	armed, _ := tb.Armed(ctx)
	if len(armed) != 1 || armed[0].Payload.Title != "new" {
		t.Fatalf("armed: %+v", armed)
	}

	select {
	case p := <-fired:
		if p.Title != "new" {
			t.Fatalf("replaced timer fired: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	select {
	case p := <-fired:
		t.Fatalf("second fire: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTableCancel(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{ExactPermission: true}, logNop(), nil)
	defer tb.Close()
	fired := collect(t, tb)
	ctx := context.Background()

	if _, err := tb.Arm(ctx, 3, time.Now().Add(30*time.Millisecond), true, reminder.Payload{}); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := tb.Cancel(ctx, 3); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// unknown id is fine
	if err := tb.Cancel(ctx, 99); err != nil {
		t.Fatalf("cancel unknown: %v", err)
	}
	select {
	case <-fired:
		t.Fatalf("cancelled timer fired")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestTableInexactWithoutPermission(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{InexactWindow: time.Hour}, logNop(), nil)
	defer tb.Close()
	ctx := context.Background()

	at := time.Now().Add(2 * time.Hour)
	prec, err := tb.Arm(ctx, 5, at, true, reminder.Payload{})
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	if prec != reminder.Inexact {
		t.Fatalf("precision: got %q, want inexact", prec)
	}
	armed, _ := tb.Armed(ctx)
	if len(armed) != 1 || !armed[0].TriggerAt.Equal(at) || armed[0].Precision != reminder.Inexact {
		t.Fatalf("armed: %+v", armed)
	}
}

func TestTableBatchWindow(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{InexactWindow: 5 * time.Minute}, logNop(), nil)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		at, want time.Time
	}{
		{base, base},
		{base.Add(time.Second), base.Add(5 * time.Minute)},
		{base.Add(4*time.Minute + 59*time.Second), base.Add(5 * time.Minute)},
	}
	for _, tc := range cases {
		if got := tb.batchLocked(tc.at); !got.Equal(tc.want) {
			t.Fatalf("batch(%s): got %s want %s", tc.at, got, tc.want)
		}
	}
}

func TestTablePastInstantFiresImmediately(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{ExactPermission: true}, logNop(), nil)
	defer tb.Close()
	fired := collect(t, tb)
	if _, err := tb.Arm(context.Background(), 9, time.Now().Add(-time.Minute), true, reminder.Payload{Title: "late"}); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("past timer did not fire")
	}
}

func TestTableRequestExactPermission(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	tb := NewTable(TableConfig{GrantOnRequest: true}, logNop(), bus)
	defer tb.Close()
	if tb.HasExactPermission(context.Background()) {
		t.Fatalf("permission granted before request")
	}
	if err := tb.RequestExactPermission(context.Background()); err != nil {
		t.Fatalf("request: %v", err)
	}

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[EventExactGranted] {
		select {
		case e := <-ch:
			seen[e.Type] = true
		case <-deadline:
			t.Fatalf("events seen: %v", seen)
		}
	}
	if !seen[EventExactRequested] {
		t.Fatalf("request event missing: %v", seen)
	}
	if !tb.HasExactPermission(context.Background()) {
		t.Fatalf("permission not granted")
	}
}

func TestTableRequestWithoutGrant(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{}, logNop(), nil)
	defer tb.Close()
	if err := tb.RequestExactPermission(context.Background()); err != nil {
		t.Fatalf("request: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if tb.HasExactPermission(context.Background()) {
		t.Fatalf("permission granted without grant_on_request")
	}
}

func TestTableClosed(t *testing.T) {
	t.Parallel()
	tb := NewTable(TableConfig{}, logNop(), nil)
	_ = tb.Close()
	if _, err := tb.Arm(context.Background(), 1, time.Now(), false, reminder.Payload{}); err != ErrClosed {
		t.Fatalf("arm after close: %v", err)
	}
	if err := tb.Cancel(context.Background(), 1); err != ErrClosed {
		t.Fatalf("cancel after close: %v", err)
	}
}

func TestPayloadCodec(t *testing.T) {
	t.Parallel()
	in := reminder.Payload{
		EventID:         "e1",
		Title:           "Physics",
		Location:        "Lab 2",
		LeadTimeMinutes: 10,
		DayOfWeek:       "Tuesday",
		StartTime:       "10:00",
		TriggerAt:       time.Date(2025, 1, 7, 9, 50, 0, 0, time.UTC),
		CorrelationID:   -42,
	}
	enc, err := EncodePayload(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodePayload(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.EventID != in.EventID || out.CorrelationID != in.CorrelationID || !out.TriggerAt.Equal(in.TriggerAt) {
		t.Fatalf("got %+v", out)
	}

	plain, err := DecodePayload(`{"title":"Math","day_of_week":"Monday","start_time":"09:00"}`)
	if err != nil || plain.Title != "Math" {
		t.Fatalf("plain json: %+v %v", plain, err)
	}
	if _, err := DecodePayload("!!"); err == nil {
		t.Fatalf("expected error for garbage")
	}
}
