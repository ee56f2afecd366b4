package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/tabungin/backend/internal/config"
)

// QRService produces printable QR cards for students. The payload is the
// "<NIS>,<schoolCode>" pair the mobile app expects; scanning and the login
// flow behind it live outside this service.
type QRService struct {
	db     *sql.DB
	redis  *redis.Client
	config *config.SchoolConfig
}

func NewQRService(db *sql.DB, redisClient *redis.Client, cfg *config.SchoolConfig) *QRService {
	return &QRService{
		db:     db,
		redis:  redisClient,
		config: cfg,
	}
}

// GenerateStudentQR renders the QR card image for one student as base64 PNG.
// Rendered cards are cached; the payload is deterministic, so the cache
// needs no invalidation beyond its TTL.
func (s *QRService) GenerateStudentQR(ctx context.Context, nis string) (string, string, error) {
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM students WHERE nis = $1)`, nis).Scan(&exists); err != nil {
		return "", "", err
	}
	if !exists {
		return "", "", fmt.Errorf("student %s not found", nis)
	}

	payload := fmt.Sprintf("%s,%s", nis, s.config.SchoolCode)

	key := fmt.Sprintf("qrcard:%s", nis)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			return payload, cached, nil
		}
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.config.QRImageSize)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		s.redis.Set(ctx, key, qrImage, 24*time.Hour)
	}

	return payload, qrImage, nil
}
