package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ms-storefront/internal/models"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidQR = errors.New("invalid QR data")

type QRGenerator struct {
	aead cipher.AEAD
	size int
}

func NewQRGenerator(secret string, size int) (*QRGenerator, error) {
	if secret == "" {
		return nil, fmt.Errorf("QR secret key not configured")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{aead: aead, size: size}, nil
}

// Encrypt seals payload into a URL-safe string: base64(nonce || ciphertext).
func (q *QRGenerator) Encrypt(payload models.QRPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens data produced by Encrypt. Tampered or foreign data fails.
func (q *QRGenerator) Decrypt(data string) (*models.QRPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	ns := q.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrInvalidQR
	}
	plain, err := q.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	var payload models.QRPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	return &payload, nil
}

// GenerateEncryptedQR renders the encrypted payload as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(payload models.QRPayload) ([]byte, error) {
	encrypted, err := q.Encrypt(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, q.size)
}
