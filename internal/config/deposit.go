package config

import (
	"os"
	"strconv"
	"time"
)

type DepositConfig struct {
	PendingDelay   time.Duration
	AvailableDelay time.Duration
	SenderName     string
	SenderAddress  string
}

func LoadDepositConfig() *DepositConfig {
	return &DepositConfig{
		PendingDelay:   getEnvAsDuration("DEPOSIT_PENDING_DELAY", 15*time.Minute),
		AvailableDelay: getEnvAsDuration("DEPOSIT_AVAILABLE_DELAY", 24*time.Hour),
		SenderName:     getEnv("DEPOSIT_SENDER_NAME", "FFG Credit Union"),
		SenderAddress:  getEnv("DEPOSIT_SENDER_ADDRESS", "no-reply@ffgcu.example"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
