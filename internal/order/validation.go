package order

import (
	"fmt"
	"net/mail"
	"strings"

	"ms-storefront/internal/models"
)

const nikLength = 16

// ValidateBuyers checks one buyer per ticket and returns them trimmed. The
// first failure is reported with its buyer index.
func ValidateBuyers(buyers []models.Buyer, quantity int) ([]models.Buyer, error) {
	if len(buyers) != quantity {
		return nil, fmt.Errorf("%w: %d buyers given for %d tickets", models.ErrInvalidBuyerData, len(buyers), quantity)
	}

	out := make([]models.Buyer, len(buyers))
	for i, b := range buyers {
		b.Name = strings.TrimSpace(b.Name)
		b.Address = strings.TrimSpace(b.Address)
		b.NIK = strings.TrimSpace(b.NIK)
		b.Email = strings.TrimSpace(b.Email)

		switch {
		case b.Name == "":
			return nil, &models.BuyerError{Index: i, Field: "name", Reason: "is required"}
		case !validNIK(b.NIK):
			return nil, &models.BuyerError{Index: i, Field: "nik", Reason: "must be exactly 16 digits"}
		case b.Address == "":
			return nil, &models.BuyerError{Index: i, Field: "address", Reason: "is required"}
		}
		if b.Email != "" {
			if _, err := mail.ParseAddress(b.Email); err != nil {
				return nil, &models.BuyerError{Index: i, Field: "email", Reason: "is not a valid address"}
			}
		}
		out[i] = b
	}
	return out, nil
}

func validNIK(nik string) bool {
	if len(nik) != nikLength {
		return false
	}
	for i := 0; i < len(nik); i++ {
		if nik[i] < '0' || nik[i] > '9' {
			return false
		}
	}
	return true
}
