package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/congo-pay/settlement/internal/ledger"
)

func TestSenderRendersTemplate(t *testing.T) {
	rec := &Recorder{}
	s := NewSender(rec)
	p := ledger.Participant{ID: "p1", Email: "homer@example.com"}

	err := s.Notify(context.Background(), p, TemplatePayoutRefund, map[string]string{
		"amount": "9.00 EUR",
		"reason": "BECAUSE 42",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	msgs := rec.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Destination != "homer@example.com" || msg.ParticipantID != "p1" {
		t.Fatalf("unexpected addressing %+v", msg)
	}
	if !strings.Contains(msg.Subject, "fail") {
		t.Fatalf("expected failure subject, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "BECAUSE 42") {
		t.Fatalf("expected reason in body, got %q", msg.Body)
	}
}

func TestSenderBankwireSubjects(t *testing.T) {
	cases := map[string]string{
		TemplatePayinBankwireSucceeded: "succ",
		TemplatePayinBankwireFailed:    "fail",
	}
	for tpl, want := range cases {
		subject, _, err := render(tpl, map[string]string{"amount": "11.00 EUR"})
		if err != nil {
			t.Fatalf("render %s: %v", tpl, err)
		}
		if !strings.Contains(subject, want) {
			t.Fatalf("%s: expected %q in subject %q", tpl, want, subject)
		}
	}
}

func TestSenderUnknownTemplate(t *testing.T) {
	rec := &Recorder{}
	if err := NewSender(rec).Notify(context.Background(), ledger.Participant{ID: "p1"}, "nope", nil); err == nil {
		t.Fatalf("expected unknown template error")
	}
	if len(rec.Messages()) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestSenderPropagatesNotifierError(t *testing.T) {
	rec := &Recorder{Err: errors.New("broker down")}
	err := NewSender(rec).Notify(context.Background(), ledger.Participant{ID: "p1"}, TemplateWithdrawalFailed, nil)
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected notifier error, got %v", err)
	}
}
