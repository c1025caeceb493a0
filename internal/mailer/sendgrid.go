package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/viper"
)

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	client     *sendgrid.Client
	senderName string
	senderAddr string
}

// NewSendGridMailer builds a mailer from viper config. Returns nil when no
// API key is configured; callers must tolerate a nil mailer.
func NewSendGridMailer() *SendGridMailer {
	apiKey := viper.GetString("sendgrid.api_key")
	sender := viper.GetString("sendgrid.verified_sender")
	if apiKey == "" || sender == "" {
		log.Println("[MAILER] SendGrid not configured, outbound mail disabled")
		return nil
	}

	viper.SetDefault("sendgrid.sender_name", "FFG Credit Union")

	return &SendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		senderName: viper.GetString("sendgrid.sender_name"),
		senderAddr: sender,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	return m.SendWithAttachments(ctx, to, subject, body, nil)
}

func (m *SendGridMailer) SendWithAttachments(ctx context.Context, to, subject, body string, attachments []Attachment) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer not configured")
	}

	from := mail.NewEmail(m.senderName, m.senderAddr)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, "")

	for _, a := range attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(a.Data))
		attachment.SetType(contentType)
		attachment.SetFilename(a.Filename)
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status %d", resp.StatusCode)
	}
	return nil
}
