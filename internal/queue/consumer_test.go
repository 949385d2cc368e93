package queue

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestWriteAuditLine(t *testing.T) {
	var buf bytes.Buffer
	ev := CardEvent{
		Type:       EventCardAssigned,
		CardID:     "C1",
		VisitorID:  "V1",
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := WriteAuditLine(&buf, ev); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "[2026-03-01T09:00:00Z] card.assigned | card_id=C1 | visitor_id=V1\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestHandleAppendsToAuditFile(t *testing.T) {
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "audit", "events.log")
	c := NewAuditConsumer("amqp://unused", "card.events", path, log)

	for _, typ := range []EventType{EventCardCreated, EventCardReleased} {
		body, _ := json.Marshal(CardEvent{Type: typ, CardID: "C1", OccurredAt: time.Now()})
		if err := c.handle(body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "card.released") {
		t.Fatalf("unexpected audit file: %q", data)
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := NewAuditConsumer("amqp://unused", "card.events", filepath.Join(t.TempDir(), "x.log"), log)
	if err := c.handle([]byte("not json")); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	if err := c.handle([]byte(`{"card_id":"C1"}`)); err == nil {
		t.Fatalf("expected error for event without type")
	}
}

func TestLifecycle(t *testing.T) {
	if (CardEvent{Type: EventLocationRecorded}).Lifecycle() {
		t.Fatalf("location events are telemetry")
	}
	if !(CardEvent{Type: EventCardAssigned}).Lifecycle() {
		t.Fatalf("assignment is a lifecycle event")
	}
}
