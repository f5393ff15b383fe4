package tickets

import (
	"fmt"
	"time"

	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/google/uuid"
)

// Issuer mints one ticket per buyer when an order is placed.
type Issuer struct {
	now func() time.Time
}

func NewIssuer() *Issuer {
	return &Issuer{now: func() time.Time { return time.Now().UTC() }}
}

// Issue returns tickets for buyers in order, snapshotting the unit price and
// ticket type. Codes are unique with overwhelming probability; the unique
// index on ticket_code catches the rest.
func (i *Issuer) Issue(order *models.Order, buyers []models.Buyer) ([]*models.Ticket, error) {
	if len(buyers) != order.Quantity {
		return nil, fmt.Errorf("%w: %d buyers for %d tickets", models.ErrInvalidBuyerData, len(buyers), order.Quantity)
	}

	now := i.now()
	tickets := make([]*models.Ticket, 0, len(buyers))
	seen := make(map[string]struct{}, len(buyers))
	for idx, b := range buyers {
		code, err := utils.GenerateTicketCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("duplicate ticket code generated for order %s", order.ID)
		}
		seen[code] = struct{}{}

		tickets = append(tickets, &models.Ticket{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ProductID:  order.ProductID,
			BuyerIndex: idx,
			BuyerName:  b.Name,
			TicketType: order.TicketType,
			Price:      order.UnitPrice,
			TicketCode: code,
			CreatedAt:  now,
		})
	}
	return tickets, nil
}
