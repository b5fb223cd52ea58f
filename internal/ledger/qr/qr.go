package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"ms-booking/internal/models"
	"time"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPass = errors.New("invalid booking pass")

// Pass is what a booking's QR code carries once decrypted at the door.
type Pass struct {
	BookingID   string    `json:"booking_id"`
	ScreeningID string    `json:"screening_id"`
	UserID      string    `json:"user_id"`
	SeatIDs     []string  `json:"seat_ids"`
	IssuedAt    time.Time `json:"issued_at"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Seal encrypts the pass for a booking into a URL-safe string.
func (g *Generator) Seal(booking models.Booking, issuedAt time.Time) (string, error) {
	data, err := json.Marshal(Pass{
		BookingID:   booking.BookingID,
		ScreeningID: booking.ScreeningID,
		UserID:      booking.UserID,
		SeatIDs:     booking.SeatIDs,
		IssuedAt:    issuedAt.UTC(),
	})
	if err != nil {
		return "", err
	}

	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

// Open reverses Seal. Tampered or foreign payloads yield ErrInvalidPass.
func (g *Generator) Open(sealed string) (*Pass, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrInvalidPass
	}
	gcm, err := g.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrInvalidPass
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPass
	}

	var pass Pass
	if err := json.Unmarshal(data, &pass); err != nil {
		return nil, ErrInvalidPass
	}
	return &pass, nil
}

// PNG renders the sealed pass of a booking as a QR image.
func (g *Generator) PNG(booking models.Booking, issuedAt time.Time) ([]byte, error) {
	sealed, err := g.Seal(booking, issuedAt)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, 256)
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
