package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService renders a share code for a member's account details. The code
// resolves through redis so the QR payload carries no account data itself.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewQRService(db *sql.DB, redisClient *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redisClient,
	}
}

// GenerateShareQR builds a short-lived share code for the account and returns
// the code plus a base64 PNG of its QR rendering.
func (s *QRService) GenerateShareQR(ctx context.Context, accountID int) (string, string, error) {
	var fullName, accountLast4, applicationNumber string
	err := s.db.QueryRowContext(ctx,
		"SELECT full_name, account_last4, application_number FROM accounts WHERE id = $1",
		accountID).Scan(&fullName, &accountLast4, &applicationNumber)
	if err != nil {
		return "", "", fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	payload := map[string]any{
		"accountId":         accountID,
		"fullName":          fullName,
		"accountLast4":      accountLast4,
		"applicationNumber": applicationNumber,
		"issuedAt":          time.Now().Unix(),
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	shareCode := s.generateNonce()
	if s.redis != nil {
		key := fmt.Sprintf("share:%s", shareCode)
		if err := s.redis.Set(ctx, key, jsonData, 5*time.Minute).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(shareCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return shareCode, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveShareCode exchanges a scanned share code for the account details it
// points at. Codes are single-use.
func (s *QRService) ResolveShareCode(ctx context.Context, shareCode string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("share codes unavailable")
	}

	key := fmt.Sprintf("share:%s", shareCode)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired share code")
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
