package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want resilience.ErrorClassification
	}{
		{"no servers", fmt.Errorf("nats publish: %w", nats.ErrNoServers), resilience.Transient},
		{"closed", nats.ErrConnectionClosed, resilience.Transient},
		{"canceled", context.Canceled, resilience.Ignored},
		{"bad subject", nats.ErrBadSubject, resilience.Permanent},
	}
	for _, tc := range cases {
		if got := classifyNATSError(tc.err); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestPublishErrorsBecomeTemporary(t *testing.T) {
	err := resilience.WrapTemporary("nats publish", fmt.Errorf("nats publish: %w", nats.ErrNoServers), classifyNATSError)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if !errors.Is(err, nats.ErrNoServers) {
		t.Fatalf("expected wrapped nats error")
	}
}
