package mailer

import "context"

// Attachment is a file relayed alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer delivers a single outbound message. Callers treat delivery as
// best-effort: a failed send is logged by the caller, never retried.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
	SendWithAttachments(ctx context.Context, to, subject, body string, attachments []Attachment) error
}
