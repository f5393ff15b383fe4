package utils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// randomSource is swapped out in tests.
var randomSource io.Reader = rand.Reader

// GenerateOrderNumber returns a human-facing order number such as
// ORD-20260301-4F7Q2K9A. The random part is not guessable.
func GenerateOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 5)
	if _, err := io.ReadFull(randomSource, buf); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), codeEncoding.EncodeToString(buf)), nil
}

// GenerateTicketCode returns TKT- followed by 80 random bits in base32.
func GenerateTicketCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := io.ReadFull(randomSource, buf); err != nil {
		return "", fmt.Errorf("generate ticket code: %w", err)
	}
	return "TKT-" + codeEncoding.EncodeToString(buf), nil
}

// GenerateTransactionID is used for manual (admin) payment confirmations.
func GenerateTransactionID(now time.Time) (string, error) {
	randomNum, err := rand.Int(randomSource, big.NewInt(999999999))
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return fmt.Sprintf("txn_%d_%09d", now.Unix(), randomNum.Int64()), nil
}

// IsTicketCode reports whether s has the shape of a generated ticket code.
func IsTicketCode(s string) bool {
	if !strings.HasPrefix(s, "TKT-") || len(s) != 4+16 {
		return false
	}
	_, err := codeEncoding.DecodeString(s[4:])
	return err == nil
}
