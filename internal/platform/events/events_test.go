package events

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogPublisher_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{Log: zerolog.New(&buf)}

	err := p.Publish(context.Background(), PaymentSucceeded, Event{
		Type:       PaymentSucceeded,
		Actor:      "user-1",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), PaymentSucceeded) {
		t.Errorf("expected routing key in log output, got %s", buf.String())
	}
}

func TestLogPublisher_CloseIsSafe(t *testing.T) {
	p := &LogPublisher{Log: zerolog.Nop()}
	p.Close()
	if err := p.Publish(context.Background(), PaymentFailed, Event{Type: PaymentFailed}); err != nil {
		t.Errorf("publish after close should still log: %v", err)
	}
}
