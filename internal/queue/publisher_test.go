package queue

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

// silentBroker accepts TCP connections and never speaks AMQP.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				_ = c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, c)
		}
	}()
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := NewPublisher(silentBroker(t), "", 200*time.Millisecond, log)

	start := time.Now()
	err := p.Publish(context.Background(), CardEvent{Type: EventCardAssigned, CardID: "C1"})
	if err == nil {
		t.Fatalf("expected an error from a broker that never answers")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("publish took %s, timeout not applied", took)
	}
	if e := hook.LastEntry(); e == nil || e.Message != "dial failed" {
		t.Fatalf("expected dial failure to be logged, got %+v", e)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewPublisher(silentBroker(t), "", time.Minute, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := p.Publish(ctx, CardEvent{Type: EventCardCreated, CardID: "C1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancelled publish should return at once")
	}
}

func TestDialTimeoutFollowsDeadline(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewPublisher("amqp://unused", "", time.Minute, log)

	if d := p.dialTimeout(context.Background()); d != time.Minute {
		t.Fatalf("without deadline got %s", d)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if d := p.dialTimeout(ctx); d > 100*time.Millisecond {
		t.Fatalf("dial timeout %s exceeds ctx deadline", d)
	}
	if d := NewPublisher("amqp://unused", "", 0, log).timeout; d != 2*time.Second {
		t.Fatalf("default timeout = %s", d)
	}
}
