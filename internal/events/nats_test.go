package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/service"
)

func TestDecodePing(t *testing.T) {
	p, err := DecodePing([]byte(`{"card_id":"C1","latitude":52.52,"longitude":13.405,"accuracy":4.5,"battery_percentage":81,"recorded_at":"2026-03-01T09:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.CardID != "C1" || p.Latitude != 52.52 || p.Longitude != 13.405 {
		t.Fatalf("unexpected ping %+v", p)
	}
	if p.Accuracy == nil || *p.Accuracy != 4.5 {
		t.Fatalf("accuracy not decoded")
	}
	if p.BatteryPercentage == nil || *p.BatteryPercentage != 81 {
		t.Fatalf("battery not decoded")
	}
	if !p.RecordedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("recorded_at = %s", p.RecordedAt)
	}
}

func TestDecodePingOptionalFields(t *testing.T) {
	p, err := DecodePing([]byte(`{"card_id":"C1","latitude":0,"longitude":0}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Accuracy != nil || p.BatteryPercentage != nil || !p.RecordedAt.IsZero() {
		t.Fatalf("optional fields should stay empty: %+v", p)
	}
}

func TestDecodePingRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":       `nope`,
		"no card":       `{"latitude":1,"longitude":2}`,
		"no latitude":   `{"card_id":"C1","longitude":2}`,
		"no longitude":  `{"card_id":"C1","latitude":1}`,
		"string coords": `{"card_id":"C1","latitude":"1","longitude":2}`,
	}
	for name, body := range cases {
		if _, err := DecodePing([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSubjectRouting(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBus(nil, "telemetry.cards", log)
	if got := b.Subject(queue.CardEvent{Type: queue.EventLocationRecorded}); got != "telemetry.cards" {
		t.Fatalf("location subject = %s", got)
	}
	if got := b.Subject(queue.CardEvent{Type: queue.EventCardAssigned}); got != "card.assigned" {
		t.Fatalf("lifecycle subject = %s", got)
	}
	if got := NewBus(nil, "", log).Subject(queue.CardEvent{Type: queue.EventLocationRecorded}); got != "card.location.recorded" {
		t.Fatalf("default location subject = %s", got)
	}
}

func TestHandlePingLogsRejections(t *testing.T) {
	log, hook := test.NewNullLogger()
	b := NewBus(nil, "", log)

	var got []service.Ping
	handler := func(ctx context.Context, p service.Ping) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("handler context has no deadline")
		}
		got = append(got, p)
		if p.CardID == "bad" {
			return errors.New("card bad does not exist")
		}
		return nil
	}

	b.handlePing([]byte(`{"card_id":"C1","latitude":1,"longitude":2}`), time.Second, handler)
	if len(got) != 1 || len(hook.AllEntries()) != 0 {
		t.Fatalf("accepted ping should not log: %d calls, %d entries", len(got), len(hook.AllEntries()))
	}

	b.handlePing([]byte(`{"card_id":"bad","latitude":1,"longitude":2}`), time.Second, handler)
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel || e.Message != "ping rejected" {
		t.Fatalf("expected rejection warning, got %+v", e)
	}

	b.handlePing([]byte(`{}`), time.Second, handler)
	if len(got) != 2 {
		t.Fatalf("malformed ping reached the handler")
	}
	if e := hook.LastEntry(); e == nil || e.Message != "dropping malformed ping" {
		t.Fatalf("expected malformed warning, got %+v", e)
	}
}
