// Package notification is the boundary to the invoice/email collaborator.
// The order lifecycle composes a confirmation message here and hands it to a
// Sink; actual document rendering and delivery live outside this service.
package notification

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Attachment is an artifact attached to a message, such as a rendered
// invoice.
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

// Message is a dispatch request for the external notification service.
type Message struct {
	Recipient   string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sink accepts messages for delivery. Implementations must treat delivery
// as best-effort from the caller's point of view: the order lifecycle logs
// a sink failure and keeps the order.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

var _ Sink = (*LogSink)(nil)

// LogSink records dispatches in the log instead of delivering them. It is
// the default wiring until an email collaborator is configured.
type LogSink struct{}

// Send logs the message and succeeds.
func (LogSink) Send(ctx context.Context, msg Message) error {
	zctx.From(ctx).Info("notification dispatched",
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
