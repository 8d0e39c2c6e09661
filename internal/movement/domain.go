package movement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location identifies one of the three stock-keeping sites.
type Location string

const (
	// LocationWarehouse is the central warehouse.
	LocationWarehouse Location = "WAREHOUSE"
	// LocationStore is the first retail store.
	LocationStore Location = "STORE"
	// LocationStore2 is the second retail store.
	LocationStore2 Location = "STORE2"
)

// Locations lists every site in the fixed iteration order used when
// several ledger rows are locked in one transaction.
var Locations = []Location{LocationWarehouse, LocationStore, LocationStore2}

// ParseLocation validates a location string.
func ParseLocation(s string) (Location, error) {
	switch Location(s) {
	case LocationWarehouse, LocationStore, LocationStore2:
		return Location(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLocation, s)
}

// IsStore reports whether the location is a retail store.
func (l Location) IsStore() bool {
	return l == LocationStore || l == LocationStore2
}

// StockLevel is the quantity-on-hand ledger row for one (item, location)
// pair. Quantity never goes negative; the engine rejects any movement that
// would make it so.
type StockLevel struct {
	ItemID     int64      `json:"item_id"`
	Location   Location   `json:"location"`
	Quantity   int64      `json:"quantity"`
	LastSaleAt *time.Time `json:"last_sale_at,omitempty"`
	SaleCount  int64      `json:"sale_count"`
}

// Item is the movement engine's view of a catalog item. Cost and sale
// statistics on this struct are owned by the engine and must not be
// written from anywhere else.
type Item struct {
	ID          int64
	Name        string
	AverageCost decimal.Decimal
	LastSaleAt  *time.Time
	SaleCount   int64
}

// Line is one (item, quantity, price) row of a purchase, sale or return.
type Line struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TransferLine carries no price; transfers move quantity only.
type TransferLine struct {
	ItemID   int64  `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
}

// Purchase is a supplier delivery into the warehouse.
type Purchase struct {
	ID        int64     `json:"id"`
	DocRef    uuid.UUID `json:"doc_ref"`
	Supplier  string    `json:"supplier"`
	InvoiceNo string    `json:"invoice_no"`
	Lines     []Line    `json:"lines"`
	PostedAt  time.Time `json:"posted_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Sale is an outbound movement from one of the stores.
type Sale struct {
	ID         int64     `json:"id"`
	DocRef     uuid.UUID `json:"doc_ref"`
	Store      Location  `json:"store"`
	CustomerID int64     `json:"customer_id"`
	InvoiceNo  *string   `json:"invoice_no,omitempty"`
	Lines      []Line    `json:"lines"`
	PostedAt   time.Time `json:"posted_at"`
}

// Return re-enters sold goods through a store and re-blends the item's
// average cost against total on-hand across all locations.
type Return struct {
	ID         int64     `json:"id"`
	DocRef     uuid.UUID `json:"doc_ref"`
	Store      Location  `json:"store"`
	CustomerID int64     `json:"customer_id"`
	InvoiceNo  string    `json:"invoice_no"`
	Lines      []Line    `json:"lines"`
	PostedAt   time.Time `json:"posted_at"`
}

// Transfer moves quantity between two locations, optionally tagged with
// the technician who carried it out.
type Transfer struct {
	ID           int64          `json:"id"`
	DocRef       uuid.UUID      `json:"doc_ref"`
	From         Location       `json:"from"`
	To           Location       `json:"to"`
	TechnicianID *int64         `json:"technician_id,omitempty"`
	WorkType     string         `json:"work_type,omitempty"`
	Lines        []TransferLine `json:"lines"`
	PostedAt     time.Time      `json:"posted_at"`
}

// Sentinel errors for the movement engine.
var (
	ErrItemNotFound      = errors.New("movement: item not found")
	ErrCustomerNotFound  = errors.New("movement: customer not found")
	ErrPurchaseNotFound  = errors.New("movement: purchase not found")
	ErrTransferNotFound  = errors.New("movement: transfer not found")
	ErrStockNotFound     = errors.New("movement: stock level not found")
	ErrInsufficientStock = errors.New("movement: insufficient stock")
	ErrDuplicateInvoice  = errors.New("movement: duplicate invoice for customer")
	ErrSameLocation      = errors.New("movement: source and destination must differ")
	ErrUnknownLocation   = errors.New("movement: unknown location")
	ErrInvalidQuantity   = errors.New("movement: quantity must be at least 1")
	ErrInvalidUnitPrice  = errors.New("movement: unit price must not be negative")
	ErrNoLines           = errors.New("movement: at least one line required")
	ErrInvoiceRequired   = errors.New("movement: invoice number required")
	ErrStoreRequired     = errors.New("movement: operation requires a store location")
)

// nextAverageCost blends an acquisition of qty units at price into the
// running weighted average held over onHand units. When both quantities
// are zero the incoming price wins outright.
func nextAverageCost(onHand int64, current decimal.Decimal, qty int64, price decimal.Decimal) decimal.Decimal {
	total := onHand + qty
	if total == 0 {
		return price
	}
	weighted := current.Mul(decimal.NewFromInt(onHand)).Add(price.Mul(decimal.NewFromInt(qty)))
	return weighted.DivRound(decimal.NewFromInt(total), 4)
}
