package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ffgcu/backend/internal/config"
	"github.com/ffgcu/backend/internal/mailer"
)

// FormsService relays public application/contact form submissions to the
// admin mailbox. Uploads are written to disk first so a failed relay never
// loses the attachment. Relay itself is best-effort, matching the original
// portal behavior: the member sees success even if the admin mail bounces.
type FormsService struct {
	mailer mailer.Mailer
	config *config.FormsConfig
}

func NewFormsService(m mailer.Mailer) *FormsService {
	cfg := config.LoadFormsConfig()
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Printf("[FORMS] Failed to create upload dir %s: %v", cfg.UploadDir, err)
	}
	return &FormsService{mailer: m, config: cfg}
}

func (s *FormsService) MaxUploadBytes() int64 {
	return s.config.MaxUploadBytes
}

// SavedUpload is a form attachment persisted under the upload dir.
type SavedUpload struct {
	Field       string
	Path        string
	ContentType string
}

// SaveUploads writes each uploaded file to the upload dir, prefixed with its
// form field name.
func (s *FormsService) SaveUploads(form *multipart.Form) ([]SavedUpload, error) {
	var saved []SavedUpload
	for field, headers := range form.File {
		for _, header := range headers {
			if header.Filename == "" {
				continue
			}
			name := fmt.Sprintf("%s__%s", field, sanitizeFilename(header.Filename))
			outPath := filepath.Join(s.config.UploadDir, name)

			src, err := header.Open()
			if err != nil {
				return saved, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
			}
			dst, err := os.Create(outPath)
			if err != nil {
				src.Close()
				return saved, fmt.Errorf("failed to save upload %s: %w", header.Filename, err)
			}
			_, err = io.Copy(dst, src)
			src.Close()
			dst.Close()
			if err != nil {
				return saved, fmt.Errorf("failed to write upload %s: %w", header.Filename, err)
			}

			saved = append(saved, SavedUpload{
				Field:       field,
				Path:        outPath,
				ContentType: header.Header.Get("Content-Type"),
			})
		}
	}
	return saved, nil
}

// RelayToAdmin emails the form fields and saved attachments to the admin
// address. Failures are logged, not returned.
func (s *FormsService) RelayToAdmin(ctx context.Context, kind string, fields map[string]string, uploads []SavedUpload) {
	if s.mailer == nil || s.config.AdminEmail == "" {
		log.Printf("[FORMS] Admin relay not configured, dropping %s submission", kind)
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{fmt.Sprintf("New %s Submission", kind), "------------------------"}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	if len(uploads) > 0 {
		lines = append(lines, "", "Uploaded files:")
		for _, u := range uploads {
			lines = append(lines, fmt.Sprintf("%s: %s", u.Field, u.Path))
		}
	}

	attachments := make([]mailer.Attachment, 0, len(uploads))
	for _, u := range uploads {
		data, err := os.ReadFile(u.Path)
		if err != nil {
			log.Printf("[FORMS] Failed to read saved upload %s: %v", u.Path, err)
			continue
		}
		attachments = append(attachments, mailer.Attachment{
			Filename:    filepath.Base(u.Path),
			ContentType: u.ContentType,
			Data:        data,
		})
	}

	subject := fmt.Sprintf("%s form: %s", kind, submitterName(fields))

	ctx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()

	if err := s.mailer.SendWithAttachments(ctx, s.config.AdminEmail, subject, strings.Join(lines, "\n"), attachments); err != nil {
		log.Printf("[FORMS] Admin relay failed for %s submission: %v", kind, err)
	}
}

func submitterName(fields map[string]string) string {
	for _, key := range []string{"full_name", "name", "email"} {
		if v := fields[key]; v != "" {
			return v
		}
	}
	return "Unknown"
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
