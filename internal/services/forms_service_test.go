package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffgcu/backend/internal/mailer"
)

type captureMailer struct {
	to          string
	subject     string
	body        string
	attachments []mailer.Attachment
	calls       int
}

func (c *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	return c.SendWithAttachments(ctx, to, subject, body, nil)
}

func (c *captureMailer) SendWithAttachments(_ context.Context, to, subject, body string, attachments []mailer.Attachment) error {
	c.to = to
	c.subject = subject
	c.body = body
	c.attachments = attachments
	c.calls++
	return nil
}

func newTestFormsService(t *testing.T, m mailer.Mailer) *FormsService {
	t.Helper()
	t.Setenv("UPLOAD_DIR", t.TempDir())
	t.Setenv("ADMIN_EMAIL", "admin@ffgcu.example")
	return NewFormsService(m)
}

func TestFormsService_RelayToAdmin(t *testing.T) {
	cm := &captureMailer{}
	service := newTestFormsService(t, cm)

	upload := filepath.Join(t.TempDir(), "proof.pdf")
	require.NoError(t, os.WriteFile(upload, []byte("pdf-bytes"), 0o644))

	fields := map[string]string{
		"full_name": "Jane Member",
		"email":     "jane@example.com",
		"message":   "Please review my application",
	}
	uploads := []SavedUpload{{Field: "proof", Path: upload, ContentType: "application/pdf"}}

	service.RelayToAdmin(context.Background(), "Application", fields, uploads)

	assert.Equal(t, 1, cm.calls)
	assert.Equal(t, "admin@ffgcu.example", cm.to)
	assert.Equal(t, "Application form: Jane Member", cm.subject)
	assert.Contains(t, cm.body, "New Application Submission")
	assert.Contains(t, cm.body, "email: jane@example.com")
	assert.Contains(t, cm.body, "Uploaded files:")
	require.Len(t, cm.attachments, 1)
	assert.Equal(t, "proof.pdf", cm.attachments[0].Filename)
	assert.Equal(t, []byte("pdf-bytes"), cm.attachments[0].Data)
}

func TestFormsService_RelayWithoutMailerDropsSubmission(t *testing.T) {
	service := newTestFormsService(t, nil)

	// Must not panic without a configured mailer.
	service.RelayToAdmin(context.Background(), "Contact", map[string]string{"name": "Jane"}, nil)
}

func TestSubmitterName(t *testing.T) {
	assert.Equal(t, "Jane", submitterName(map[string]string{"full_name": "Jane"}))
	assert.Equal(t, "Sam", submitterName(map[string]string{"name": "Sam"}))
	assert.Equal(t, "x@y.z", submitterName(map[string]string{"email": "x@y.z"}))
	assert.Equal(t, "Unknown", submitterName(map[string]string{"other": "value"}))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "proof.pdf", sanitizeFilename("proof.pdf"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "my_file_1_.png", sanitizeFilename("my file(1).png"))
}
