package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable or purchasable good. AverageCost and the sale
// statistics are owned by the movement engine; this package only serves
// them back.
type Item struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Category    string          `json:"category,omitempty"`
	AverageCost decimal.Decimal `json:"average_cost"`
	LastSaleAt  *time.Time      `json:"last_sale_at,omitempty"`
	SaleCount   int64           `json:"sale_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Customer is a buyer referenced by sales and returns.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrDuplicateItemName = errors.New("item name already in use")
	ErrItemReferenced    = errors.New("item still referenced by stock or movements")
)
