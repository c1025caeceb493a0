package config

import "time"

type FormsConfig struct {
	AdminEmail     string
	UploadDir      string
	MaxUploadBytes int64
	SendTimeout    time.Duration
}

func LoadFormsConfig() *FormsConfig {
	return &FormsConfig{
		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		UploadDir:      getEnv("UPLOAD_DIR", "/tmp/grant_uploads"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_CONTENT_LENGTH", 25*1024*1024)),
		SendTimeout:    getEnvAsDuration("FORMS_SEND_TIMEOUT", 15*time.Second),
	}
}
