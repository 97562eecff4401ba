package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/settlement/internal/ledger"
)

// Message describes a rendered notification payload.
type Message struct {
	Template      string            `json:"template"`
	ParticipantID string            `json:"participant_id"`
	Destination   string            `json:"destination"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	Data          map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"template", message.Template,
		"participant_id", message.ParticipantID,
		"destination", message.Destination,
		"subject", message.Subject,
	)
	return nil
}

// Sender renders a template for a participant and hands it to a Notifier.
type Sender struct {
	notifier Notifier
}

// NewSender builds a Sender on top of notifier.
func NewSender(notifier Notifier) *Sender {
	return &Sender{notifier: notifier}
}

// Notify sends template to the participant, with data available to the template.
func (s *Sender) Notify(ctx context.Context, p ledger.Participant, template string, data map[string]string) error {
	subject, body, err := render(template, data)
	if err != nil {
		return err
	}
	msg := Message{
		Template:      template,
		ParticipantID: p.ID,
		Destination:   p.Email,
		Subject:       subject,
		Body:          body,
		Data:          data,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", template, p.ID, err)
	}
	return nil
}
