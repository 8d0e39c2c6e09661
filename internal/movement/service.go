package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevels(ctx context.Context, itemID int64) ([]StockLevel, error)
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error)
	ListSales(ctx context.Context, store Location, limit, offset int) ([]Sale, int, error)
	ListReturns(ctx context.Context, store Location, limit, offset int) ([]Return, int, error)
	ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, int, error)
}

// MetricsPort counts movement outcomes.
type MetricsPort interface {
	ObserveMovement(movementType, outcome string)
}

// Service executes purchases, sales, returns and transfers as atomic,
// validated state transitions over the item catalog and the three
// location ledgers. It is the only writer of stock and cost fields.
type Service struct {
	repo    RepositoryPort
	metrics MetricsPort
}

// NewService builds Service. metrics may be nil.
func NewService(repo RepositoryPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, metrics: metrics}
}

// LineInput is one requested (item, quantity, price) row.
type LineInput struct {
	ItemID    int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// TransferLineInput is one requested (item, quantity) row.
type TransferLineInput struct {
	ItemID   int64
	Quantity int64
}

// PurchaseInput describes a supplier delivery.
type PurchaseInput struct {
	Supplier  string
	InvoiceNo string
	Lines     []LineInput
}

// SaleInput describes a store sale.
type SaleInput struct {
	Store      Location
	CustomerID int64
	InvoiceNo  *string
	Lines      []LineInput
}

// ReturnInput describes a customer return into a store.
type ReturnInput struct {
	Store      Location
	CustomerID int64
	InvoiceNo  string
	Lines      []LineInput
}

// TransferInput describes a stock move between two locations.
type TransferInput struct {
	From         Location
	To           Location
	TechnicianID *int64
	WorkType     string
	Lines        []TransferLineInput
}

// RecordPurchase books every line into the warehouse and re-blends each
// item's weighted-average cost. Purchases only add stock, so no
// availability check is needed.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (Purchase, error) {
	if err := validateLines(input.Lines); err != nil {
		return Purchase{}, s.reject("purchase", err)
	}
	now := time.Now().UTC()
	purchase := Purchase{
		DocRef:    uuid.New(),
		Supplier:  input.Supplier,
		InvoiceNo: input.InvoiceNo,
		PostedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := s.applyPurchaseLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		purchase.Lines = lines
		return tx.InsertPurchase(ctx, &purchase)
	})
	if err != nil {
		return Purchase{}, s.reject("purchase", err)
	}
	s.commit("purchase")
	return purchase, nil
}

// UpdatePurchase reverses the stored purchase's warehouse effect
// (quantities only, floored at zero) and reapplies the edited lines with
// the usual averaging formula.
func (s *Service) UpdatePurchase(ctx context.Context, id int64, input PurchaseInput) (Purchase, error) {
	if err := validateLines(input.Lines); err != nil {
		return Purchase{}, s.reject("purchase_update", err)
	}
	var updated Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range existing.Lines {
			if _, err := s.adjustStock(ctx, tx, LocationWarehouse, line.ItemID, -line.Quantity, true); err != nil {
				return err
			}
		}
		lines, err := s.applyPurchaseLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		updated = existing
		updated.Supplier = input.Supplier
		updated.InvoiceNo = input.InvoiceNo
		updated.Lines = lines
		return tx.UpdatePurchaseRecord(ctx, updated)
	})
	if err != nil {
		return Purchase{}, s.reject("purchase_update", err)
	}
	s.commit("purchase_update")
	return updated, nil
}

// DeletePurchase removes the record without reversing inventory. History
// deletes never move stock; only explicit edits do.
func (s *Service) DeletePurchase(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPurchaseForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeletePurchaseRecord(ctx, id)
	})
}

// RecordSale deducts every line from the store ledger. All lines are
// validated against current stock before anything is written; a single
// short line rejects the whole sale.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (Sale, error) {
	if !input.Store.IsStore() {
		return Sale{}, s.reject("sale", fmt.Errorf("%w: got %q", ErrStoreRequired, input.Store))
	}
	if err := validateLines(input.Lines); err != nil {
		return Sale{}, s.reject("sale", err)
	}
	now := time.Now().UTC()
	sale := Sale{
		DocRef:     uuid.New(),
		Store:      input.Store,
		CustomerID: input.CustomerID,
		InvoiceNo:  input.InvoiceNo,
		PostedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: id %d", ErrCustomerNotFound, input.CustomerID)
		}
		// Phase one: every line must clear before any mutation.
		for _, line := range input.Lines {
			stock, err := tx.GetStockForUpdate(ctx, input.Store, line.ItemID)
			if err != nil {
				if errors.Is(err, ErrStockNotFound) {
					return fmt.Errorf("%w: item %d at %s", ErrInsufficientStock, line.ItemID, input.Store)
				}
				return err
			}
			if stock.Quantity < line.Quantity {
				return fmt.Errorf("%w: item %d at %s has %d, need %d",
					ErrInsufficientStock, line.ItemID, input.Store, stock.Quantity, line.Quantity)
			}
		}
		// Phase two: apply deductions and bump sale statistics.
		for _, line := range input.Lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}
			stock, err := tx.GetStockForUpdate(ctx, input.Store, line.ItemID)
			if err != nil {
				return err
			}
			stock.Quantity -= line.Quantity
			if stock.Quantity < 0 {
				// Repeated items in one request can overdraw what phase
				// one approved line by line.
				return fmt.Errorf("%w: item %d at %s", ErrInsufficientStock, line.ItemID, input.Store)
			}
			stock.SaleCount += line.Quantity
			stock.LastSaleAt = &now
			if err := tx.UpsertStock(ctx, stock); err != nil {
				return err
			}
			if err := tx.BumpItemSales(ctx, line.ItemID, line.Quantity, now); err != nil {
				return err
			}
			sale.Lines = append(sale.Lines, Line{
				ItemID:    line.ItemID,
				ItemName:  item.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		return tx.InsertSale(ctx, &sale)
	})
	if err != nil {
		return Sale{}, s.reject("sale", err)
	}
	s.commit("sale")
	return sale, nil
}

// RecordReturn re-enters goods through a store. Each line re-blends the
// item's average cost against total on-hand across all three locations,
// read before the store increment.
func (s *Service) RecordReturn(ctx context.Context, input ReturnInput) (Return, error) {
	if !input.Store.IsStore() {
		return Return{}, s.reject("return", fmt.Errorf("%w: got %q", ErrStoreRequired, input.Store))
	}
	if input.InvoiceNo == "" {
		return Return{}, s.reject("return", ErrInvoiceRequired)
	}
	if err := validateLines(input.Lines); err != nil {
		return Return{}, s.reject("return", err)
	}
	now := time.Now().UTC()
	ret := Return{
		DocRef:     uuid.New(),
		Store:      input.Store,
		CustomerID: input.CustomerID,
		InvoiceNo:  input.InvoiceNo,
		PostedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: id %d", ErrCustomerNotFound, input.CustomerID)
		}
		exists, err := tx.ReturnExists(ctx, input.Store, input.CustomerID, input.InvoiceNo)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: customer %d invoice %q", ErrDuplicateInvoice, input.CustomerID, input.InvoiceNo)
		}
		for _, line := range input.Lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}
			onHand, err := s.totalOnHand(ctx, tx, line.ItemID)
			if err != nil {
				return err
			}
			newAvg := nextAverageCost(onHand, item.AverageCost, line.Quantity, line.UnitPrice)
			if err := tx.UpdateItemCost(ctx, line.ItemID, newAvg); err != nil {
				return err
			}
			// Cost first, then the increment: blending must use the
			// pre-return on-hand.
			if _, err := s.adjustStock(ctx, tx, input.Store, line.ItemID, line.Quantity, false); err != nil {
				return err
			}
			ret.Lines = append(ret.Lines, Line{
				ItemID:    line.ItemID,
				ItemName:  item.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		return tx.InsertReturn(ctx, &ret)
	})
	if err != nil {
		return Return{}, s.reject("return", err)
	}
	s.commit("return")
	return ret, nil
}

// RecordTransfer moves stock between two locations. Availability of every
// line at the source is confirmed before the first deduction.
func (s *Service) RecordTransfer(ctx context.Context, input TransferInput) (Transfer, error) {
	if input.From == input.To {
		return Transfer{}, s.reject("transfer", ErrSameLocation)
	}
	if err := validateTransferLines(input.Lines); err != nil {
		return Transfer{}, s.reject("transfer", err)
	}
	now := time.Now().UTC()
	transfer := Transfer{
		DocRef:       uuid.New(),
		From:         input.From,
		To:           input.To,
		TechnicianID: input.TechnicianID,
		WorkType:     input.WorkType,
		PostedAt:     now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := s.applyTransferLines(ctx, tx, input.From, input.To, input.Lines)
		if err != nil {
			return err
		}
		transfer.Lines = lines
		return tx.InsertTransfer(ctx, &transfer)
	})
	if err != nil {
		return Transfer{}, s.reject("transfer", err)
	}
	s.commit("transfer")
	return transfer, nil
}

// UpdateTransfer reverses every original line (source restored, target
// debited with a zero floor), then validates and applies the edited line
// set. Editing 5 units up to 8 nets the source exactly -8, never -13.
func (s *Service) UpdateTransfer(ctx context.Context, id int64, input TransferInput) (Transfer, error) {
	if input.From == input.To {
		return Transfer{}, s.reject("transfer_update", ErrSameLocation)
	}
	if err := validateTransferLines(input.Lines); err != nil {
		return Transfer{}, s.reject("transfer_update", err)
	}
	var updated Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range existing.Lines {
			if _, err := s.adjustStock(ctx, tx, existing.From, line.ItemID, line.Quantity, false); err != nil {
				return err
			}
			if _, err := s.adjustStock(ctx, tx, existing.To, line.ItemID, -line.Quantity, true); err != nil {
				return err
			}
		}
		lines, err := s.applyTransferLines(ctx, tx, input.From, input.To, input.Lines)
		if err != nil {
			return err
		}
		updated = existing
		updated.From = input.From
		updated.To = input.To
		updated.TechnicianID = input.TechnicianID
		updated.WorkType = input.WorkType
		updated.Lines = lines
		return tx.ReplaceTransfer(ctx, updated)
	})
	if err != nil {
		return Transfer{}, s.reject("transfer_update", err)
	}
	s.commit("transfer_update")
	return updated, nil
}

// DeleteTransfer removes the record without reversing inventory, matching
// the purchase delete policy.
func (s *Service) DeleteTransfer(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetTransferForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeleteTransferRecord(ctx, id)
	})
}

// GetStockLevels returns the ledger rows for an item across all locations.
func (s *Service) GetStockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	return s.repo.GetStockLevels(ctx, itemID)
}

// GetPurchase fetches one purchase with lines.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// GetTransfer fetches one transfer with lines.
func (s *Service) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListPurchases returns a page of purchase headers.
func (s *Service) ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error) {
	return s.repo.ListPurchases(ctx, clampLimit(limit), offset)
}

// ListSales returns a page of sale headers for one store.
func (s *Service) ListSales(ctx context.Context, store Location, limit, offset int) ([]Sale, int, error) {
	if !store.IsStore() {
		return nil, 0, fmt.Errorf("%w: got %q", ErrStoreRequired, store)
	}
	return s.repo.ListSales(ctx, store, clampLimit(limit), offset)
}

// ListReturns returns a page of return headers for one store.
func (s *Service) ListReturns(ctx context.Context, store Location, limit, offset int) ([]Return, int, error) {
	if !store.IsStore() {
		return nil, 0, fmt.Errorf("%w: got %q", ErrStoreRequired, store)
	}
	return s.repo.ListReturns(ctx, store, clampLimit(limit), offset)
}

// ListTransfers returns a page of transfer headers.
func (s *Service) ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, int, error) {
	return s.repo.ListTransfers(ctx, clampLimit(limit), offset)
}

// applyPurchaseLines books quantities into the warehouse and re-blends
// each item's average cost against pre-line warehouse stock.
func (s *Service) applyPurchaseLines(ctx context.Context, tx TxRepository, lines []LineInput) ([]Line, error) {
	resolved := make([]Line, 0, len(lines))
	for _, line := range lines {
		item, err := tx.GetItemForUpdate(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		warehouseQty := int64(0)
		stock, err := tx.GetStockForUpdate(ctx, LocationWarehouse, line.ItemID)
		switch {
		case err == nil:
			warehouseQty = stock.Quantity
		case errors.Is(err, ErrStockNotFound):
		default:
			return nil, err
		}
		newAvg := nextAverageCost(warehouseQty, item.AverageCost, line.Quantity, line.UnitPrice)
		if err := tx.UpdateItemCost(ctx, line.ItemID, newAvg); err != nil {
			return nil, err
		}
		if _, err := s.adjustStock(ctx, tx, LocationWarehouse, line.ItemID, line.Quantity, false); err != nil {
			return nil, err
		}
		resolved = append(resolved, Line{
			ItemID:    line.ItemID,
			ItemName:  item.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return resolved, nil
}

// applyTransferLines runs the two-phase check-then-move for a transfer
// line set.
func (s *Service) applyTransferLines(ctx context.Context, tx TxRepository, from, to Location, lines []TransferLineInput) ([]TransferLine, error) {
	// Phase one: confirm source availability for every line.
	for _, line := range lines {
		if _, err := tx.GetItemForUpdate(ctx, line.ItemID); err != nil {
			return nil, err
		}
		stock, err := tx.GetStockForUpdate(ctx, from, line.ItemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return nil, fmt.Errorf("%w: item %d at %s", ErrInsufficientStock, line.ItemID, from)
			}
			return nil, err
		}
		if stock.Quantity < line.Quantity {
			return nil, fmt.Errorf("%w: item %d at %s has %d, need %d",
				ErrInsufficientStock, line.ItemID, from, stock.Quantity, line.Quantity)
		}
	}
	// Phase two: move every line.
	resolved := make([]TransferLine, 0, len(lines))
	for _, line := range lines {
		item, err := tx.GetItemForUpdate(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		newQty, err := s.adjustStock(ctx, tx, from, line.ItemID, -line.Quantity, false)
		if err != nil {
			return nil, err
		}
		if newQty < 0 {
			return nil, fmt.Errorf("%w: item %d at %s", ErrInsufficientStock, line.ItemID, from)
		}
		if _, err := s.adjustStock(ctx, tx, to, line.ItemID, line.Quantity, false); err != nil {
			return nil, err
		}
		resolved = append(resolved, TransferLine{
			ItemID:   line.ItemID,
			ItemName: item.Name,
			Quantity: line.Quantity,
		})
	}
	return resolved, nil
}

// adjustStock applies a signed delta to one ledger row, creating the row
// when it does not exist yet. With floorAtZero the result is clamped at
// zero instead of failing, which is how reversals behave.
func (s *Service) adjustStock(ctx context.Context, tx TxRepository, loc Location, itemID, delta int64, floorAtZero bool) (int64, error) {
	stock, err := tx.GetStockForUpdate(ctx, loc, itemID)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			return 0, err
		}
		stock = StockLevel{ItemID: itemID, Location: loc}
	}
	stock.Quantity += delta
	if stock.Quantity < 0 {
		if !floorAtZero {
			return stock.Quantity, fmt.Errorf("%w: item %d at %s", ErrInsufficientStock, itemID, loc)
		}
		stock.Quantity = 0
	}
	if err := tx.UpsertStock(ctx, stock); err != nil {
		return 0, err
	}
	return stock.Quantity, nil
}

// totalOnHand sums the item's quantity across all three locations.
// Locations are visited in the fixed Locations order so concurrent
// transactions lock rows consistently.
func (s *Service) totalOnHand(ctx context.Context, tx TxRepository, itemID int64) (int64, error) {
	var total int64
	for _, loc := range Locations {
		stock, err := tx.GetStockForUpdate(ctx, loc, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				continue
			}
			return 0, err
		}
		total += stock.Quantity
	}
	return total, nil
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return fmt.Errorf("%w: item %d", ErrInvalidQuantity, line.ItemID)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d", ErrInvalidUnitPrice, line.ItemID)
		}
	}
	return nil
}

func validateTransferLines(lines []TransferLineInput) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return fmt.Errorf("%w: item %d", ErrInvalidQuantity, line.ItemID)
		}
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (s *Service) commit(movementType string) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(movementType, "committed")
	}
}

func (s *Service) reject(movementType string, err error) error {
	if s.metrics != nil {
		s.metrics.ObserveMovement(movementType, "rejected")
	}
	return err
}
