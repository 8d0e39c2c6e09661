package movement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryState struct {
	items     map[int64]Item
	customers map[int64]bool
	stocks    map[string]StockLevel
	purchases map[int64]Purchase
	sales     map[int64]Sale
	returns   map[int64]Return
	transfers map[int64]Transfer
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		items:     make(map[int64]Item, len(s.items)),
		customers: make(map[int64]bool, len(s.customers)),
		stocks:    make(map[string]StockLevel, len(s.stocks)),
		purchases: make(map[int64]Purchase, len(s.purchases)),
		sales:     make(map[int64]Sale, len(s.sales)),
		returns:   make(map[int64]Return, len(s.returns)),
		transfers: make(map[int64]Transfer, len(s.transfers)),
		nextID:    s.nextID,
	}
	for k, v := range s.items {
		cp.items[k] = v
	}
	for k, v := range s.customers {
		cp.customers[k] = v
	}
	for k, v := range s.stocks {
		cp.stocks[k] = v
	}
	for k, v := range s.purchases {
		cp.purchases[k] = v
	}
	for k, v := range s.sales {
		cp.sales[k] = v
	}
	for k, v := range s.returns {
		cp.returns[k] = v
	}
	for k, v := range s.transfers {
		cp.transfers[k] = v
	}
	return cp
}

// memoryRepo implements RepositoryPort with all-or-nothing semantics: the
// callback mutates a copy that only replaces the live state on success.
type memoryRepo struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		items:     make(map[int64]Item),
		customers: make(map[int64]bool),
		stocks:    make(map[string]StockLevel),
		purchases: make(map[int64]Purchase),
		sales:     make(map[int64]Sale),
		returns:   make(map[int64]Return),
		transfers: make(map[int64]Transfer),
	}}
}

func stockKey(loc Location, itemID int64) string {
	return fmt.Sprintf("%s:%d", loc, itemID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) GetStockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	levels := []StockLevel{}
	for _, loc := range Locations {
		if level, ok := r.state.stocks[stockKey(loc, itemID)]; ok {
			levels = append(levels, level)
		}
	}
	return levels, nil
}

func (r *memoryRepo) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, ok := r.state.purchases[id]
	if !ok {
		return Purchase{}, ErrPurchaseNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, ok := r.state.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (r *memoryRepo) ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error) {
	out := []Purchase{}
	for _, p := range r.state.purchases {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListSales(ctx context.Context, store Location, limit, offset int) ([]Sale, int, error) {
	out := []Sale{}
	for _, s := range r.state.sales {
		if s.Store == store {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListReturns(ctx context.Context, store Location, limit, offset int) ([]Return, int, error) {
	out := []Return{}
	for _, ret := range r.state.returns {
		if ret.Store == store {
			out = append(out, ret)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, int, error) {
	out := []Transfer{}
	for _, t := range r.state.transfers {
		out = append(out, t)
	}
	return out, len(out), nil
}

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	item, ok := tx.state.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateItemCost(ctx context.Context, itemID int64, avg decimal.Decimal) error {
	item, ok := tx.state.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.AverageCost = avg
	tx.state.items[itemID] = item
	return nil
}

func (tx *memoryTx) BumpItemSales(ctx context.Context, itemID int64, qty int64, at time.Time) error {
	item, ok := tx.state.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.SaleCount += qty
	item.LastSaleAt = &at
	tx.state.items[itemID] = item
	return nil
}

func (tx *memoryTx) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	return tx.state.customers[customerID], nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, loc Location, itemID int64) (StockLevel, error) {
	if level, ok := tx.state.stocks[stockKey(loc, itemID)]; ok {
		return level, nil
	}
	return StockLevel{ItemID: itemID, Location: loc}, ErrStockNotFound
}

func (tx *memoryTx) UpsertStock(ctx context.Context, stock StockLevel) error {
	tx.state.stocks[stockKey(stock.Location, stock.ItemID)] = stock
	return nil
}

func (tx *memoryTx) InsertPurchase(ctx context.Context, purchase *Purchase) error {
	tx.state.nextID++
	purchase.ID = tx.state.nextID
	purchase.CreatedAt = purchase.PostedAt
	tx.state.purchases[purchase.ID] = *purchase
	return nil
}

func (tx *memoryTx) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	p, ok := tx.state.purchases[id]
	if !ok {
		return Purchase{}, ErrPurchaseNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdatePurchaseRecord(ctx context.Context, purchase Purchase) error {
	tx.state.purchases[purchase.ID] = purchase
	return nil
}

func (tx *memoryTx) DeletePurchaseRecord(ctx context.Context, id int64) error {
	delete(tx.state.purchases, id)
	return nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale *Sale) error {
	tx.state.nextID++
	sale.ID = tx.state.nextID
	tx.state.sales[sale.ID] = *sale
	return nil
}

func (tx *memoryTx) ReturnExists(ctx context.Context, store Location, customerID int64, invoiceNo string) (bool, error) {
	for _, ret := range tx.state.returns {
		if ret.Store == store && ret.CustomerID == customerID && ret.InvoiceNo == invoiceNo {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertReturn(ctx context.Context, ret *Return) error {
	tx.state.nextID++
	ret.ID = tx.state.nextID
	tx.state.returns[ret.ID] = *ret
	return nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, transfer *Transfer) error {
	tx.state.nextID++
	transfer.ID = tx.state.nextID
	tx.state.transfers[transfer.ID] = *transfer
	return nil
}

func (tx *memoryTx) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, ok := tx.state.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (tx *memoryTx) ReplaceTransfer(ctx context.Context, transfer Transfer) error {
	tx.state.transfers[transfer.ID] = transfer
	return nil
}

func (tx *memoryTx) DeleteTransferRecord(ctx context.Context, id int64) error {
	delete(tx.state.transfers, id)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func seedItem(repo *memoryRepo, id int64, name string, avg string) {
	repo.state.items[id] = Item{ID: id, Name: name, AverageCost: dec(avg)}
}

func seedStock(repo *memoryRepo, loc Location, itemID, qty int64) {
	repo.state.stocks[stockKey(loc, itemID)] = StockLevel{ItemID: itemID, Location: loc, Quantity: qty}
}

func stockQty(repo *memoryRepo, loc Location, itemID int64) int64 {
	return repo.state.stocks[stockKey(loc, itemID)].Quantity
}

func TestRecordPurchaseBlendsAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationWarehouse, 1, 10)
	svc := NewService(repo, nil)

	purchase, err := svc.RecordPurchase(context.Background(), PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-100",
		Lines:     []LineInput{{ItemID: 1, Quantity: 5, UnitPrice: dec("130")}},
	})
	require.NoError(t, err)
	require.Len(t, purchase.Lines, 1)
	require.Equal(t, "SSD 1TB", purchase.Lines[0].ItemName)

	require.EqualValues(t, 15, stockQty(repo, LocationWarehouse, 1))
	requireDecimal(t, "110", repo.state.items[1].AverageCost)
}

func TestRecordPurchaseFirstDelivery(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "RAM 16GB", "0")
	svc := NewService(repo, nil)

	_, err := svc.RecordPurchase(context.Background(), PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-101",
		Lines:     []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: dec("55.50")}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, stockQty(repo, LocationWarehouse, 1))
	requireDecimal(t, "55.50", repo.state.items[1].AverageCost)
}

func TestRecordPurchaseUnknownItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.RecordPurchase(context.Background(), PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-102",
		Lines:     []LineInput{{ItemID: 99, Quantity: 1, UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, ErrItemNotFound)
	require.Empty(t, repo.state.purchases)
}

func TestRecordPurchaseRejectsBadLines(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{Supplier: "x", InvoiceNo: "1"})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.RecordPurchase(ctx, PurchaseInput{
		Supplier: "x", InvoiceNo: "1",
		Lines: []LineInput{{ItemID: 1, Quantity: 0, UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordPurchase(ctx, PurchaseInput{
		Supplier: "x", InvoiceNo: "1",
		Lines: []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: dec("-1")}},
	})
	require.ErrorIs(t, err, ErrInvalidUnitPrice)
}

func TestUpdatePurchaseReversesThenReapplies(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase, err := svc.RecordPurchase(ctx, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-200",
		Lines:     []LineInput{{ItemID: 1, Quantity: 10, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, stockQty(repo, LocationWarehouse, 1))

	updated, err := svc.UpdatePurchase(ctx, purchase.ID, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-200",
		Lines:     []LineInput{{ItemID: 1, Quantity: 6, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	// Net effect is the new quantity, not old plus new.
	require.EqualValues(t, 6, stockQty(repo, LocationWarehouse, 1))
}

func TestUpdatePurchaseReversalFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase, err := svc.RecordPurchase(ctx, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-201",
		Lines:     []LineInput{{ItemID: 1, Quantity: 10, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)

	// Stock was drained below the purchased quantity in the meantime.
	seedStock(repo, LocationWarehouse, 1, 3)

	_, err = svc.UpdatePurchase(ctx, purchase.ID, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-201",
		Lines:     []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	// Reversal floors 3-10 at zero, then the new 2 units land on top.
	require.EqualValues(t, 2, stockQty(repo, LocationWarehouse, 1))
}

func TestDeletePurchaseKeepsInventory(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase, err := svc.RecordPurchase(ctx, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-202",
		Lines:     []LineInput{{ItemID: 1, Quantity: 5, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePurchase(ctx, purchase.ID))
	require.Empty(t, repo.state.purchases)
	require.EqualValues(t, 5, stockQty(repo, LocationWarehouse, 1))

	require.ErrorIs(t, svc.DeletePurchase(ctx, purchase.ID), ErrPurchaseNotFound)
}

func TestRecordSaleDeductsAndBumpsStats(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationStore, 1, 10)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	invoice := "S-1"
	sale, err := svc.RecordSale(context.Background(), SaleInput{
		Store:      LocationStore,
		CustomerID: 7,
		InvoiceNo:  &invoice,
		Lines:      []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: dec("150")}},
	})
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)

	stock := repo.state.stocks[stockKey(LocationStore, 1)]
	require.EqualValues(t, 6, stock.Quantity)
	require.EqualValues(t, 4, stock.SaleCount)
	require.NotNil(t, stock.LastSaleAt)

	item := repo.state.items[1]
	require.EqualValues(t, 4, item.SaleCount)
	require.NotNil(t, item.LastSaleAt)
}

func TestRecordSaleInsufficientStockIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedItem(repo, 2, "RAM 16GB", "50")
	seedStock(repo, LocationStore, 1, 10)
	seedStock(repo, LocationStore, 2, 1)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	_, err := svc.RecordSale(context.Background(), SaleInput{
		Store:      LocationStore,
		CustomerID: 7,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 4, UnitPrice: dec("150")},
			{ItemID: 2, Quantity: 5, UnitPrice: dec("70")},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// No line effect is observable, including the one that validated.
	require.EqualValues(t, 10, stockQty(repo, LocationStore, 1))
	require.EqualValues(t, 1, stockQty(repo, LocationStore, 2))
	require.EqualValues(t, 0, repo.state.items[1].SaleCount)
	require.Empty(t, repo.state.sales)
}

func TestRecordSaleRepeatedLineCannotOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationStore, 1, 5)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	_, err := svc.RecordSale(context.Background(), SaleInput{
		Store:      LocationStore,
		CustomerID: 7,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 4, UnitPrice: dec("150")},
			{ItemID: 1, Quantity: 4, UnitPrice: dec("150")},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.EqualValues(t, 5, stockQty(repo, LocationStore, 1))
}

func TestRecordSaleUnknownCustomer(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationStore2, 1, 10)
	svc := NewService(repo, nil)

	_, err := svc.RecordSale(context.Background(), SaleInput{
		Store:      LocationStore2,
		CustomerID: 404,
		Lines:      []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: dec("150")}},
	})
	require.ErrorIs(t, err, ErrCustomerNotFound)
	require.EqualValues(t, 10, stockQty(repo, LocationStore2, 1))
}

func TestRecordSaleRequiresStore(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.RecordSale(context.Background(), SaleInput{
		Store:      LocationWarehouse,
		CustomerID: 7,
		Lines:      []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: dec("1")}},
	})
	require.ErrorIs(t, err, ErrStoreRequired)
}

func TestRecordReturnBlendsAgainstTotalOnHand(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "50")
	seedStock(repo, LocationWarehouse, 1, 12)
	seedStock(repo, LocationStore, 1, 5)
	seedStock(repo, LocationStore2, 1, 3)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	ret, err := svc.RecordReturn(context.Background(), ReturnInput{
		Store:      LocationStore,
		CustomerID: 7,
		InvoiceNo:  "R-1",
		Lines:      []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	require.Len(t, ret.Lines, 1)

	// (20*50 + 4*80) / 24 = 55 with the pre-return on-hand of 20.
	requireDecimal(t, "55", repo.state.items[1].AverageCost)
	require.EqualValues(t, 9, stockQty(repo, LocationStore, 1))
}

func TestRecordReturnSpecExample(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "50")
	seedStock(repo, LocationWarehouse, 1, 20)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	_, err := svc.RecordReturn(context.Background(), ReturnInput{
		Store:      LocationStore,
		CustomerID: 7,
		InvoiceNo:  "R-2",
		Lines:      []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	// (20*50 + 4*80) / 24 = 51.6667 at four decimal places.
	requireDecimal(t, "51.6667", repo.state.items[1].AverageCost)
	// The store row is created on first return.
	require.EqualValues(t, 4, stockQty(repo, LocationStore, 1))
}

func TestRecordReturnZeroOnHandFallsBackToLinePrice(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "50")
	repo.state.customers[7] = true
	svc := NewService(repo, nil)

	_, err := svc.RecordReturn(context.Background(), ReturnInput{
		Store:      LocationStore2,
		CustomerID: 7,
		InvoiceNo:  "R-3",
		Lines:      []LineInput{{ItemID: 1, Quantity: 0, UnitPrice: dec("80")}},
	})
	// Quantity zero is rejected before the fallback can matter.
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordReturn(context.Background(), ReturnInput{
		Store:      LocationStore2,
		CustomerID: 7,
		InvoiceNo:  "R-3",
		Lines:      []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	// On-hand was zero, so the blend is just the return price.
	requireDecimal(t, "80", repo.state.items[1].AverageCost)
}

func TestRecordReturnDuplicateInvoice(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "50")
	seedStock(repo, LocationStore, 1, 10)
	repo.state.customers[7] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	input := ReturnInput{
		Store:      LocationStore,
		CustomerID: 7,
		InvoiceNo:  "R-9",
		Lines:      []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: dec("60")}},
	}
	_, err := svc.RecordReturn(ctx, input)
	require.NoError(t, err)
	qtyAfterFirst := stockQty(repo, LocationStore, 1)
	avgAfterFirst := repo.state.items[1].AverageCost

	_, err = svc.RecordReturn(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateInvoice)
	require.EqualValues(t, qtyAfterFirst, stockQty(repo, LocationStore, 1))
	requireDecimal(t, avgAfterFirst.String(), repo.state.items[1].AverageCost)
}

func TestRecordTransferMovesStock(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationWarehouse, 1, 10)
	svc := NewService(repo, nil)

	transfer, err := svc.RecordTransfer(context.Background(), TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Len(t, transfer.Lines, 1)
	require.EqualValues(t, 0, stockQty(repo, LocationWarehouse, 1))
	require.EqualValues(t, 10, stockQty(repo, LocationStore, 1))
}

func TestRecordTransferTwoPhaseAtomic(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedItem(repo, 2, "RAM 16GB", "50")
	seedStock(repo, LocationWarehouse, 1, 10)
	seedStock(repo, LocationWarehouse, 2, 1)
	svc := NewService(repo, nil)

	_, err := svc.RecordTransfer(context.Background(), TransferInput{
		From: LocationWarehouse,
		To:   LocationStore,
		Lines: []TransferLineInput{
			{ItemID: 1, Quantity: 5},
			{ItemID: 2, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.EqualValues(t, 10, stockQty(repo, LocationWarehouse, 1))
	require.EqualValues(t, 1, stockQty(repo, LocationWarehouse, 2))
	require.EqualValues(t, 0, stockQty(repo, LocationStore, 1))
	require.Empty(t, repo.state.transfers)
}

func TestRecordTransferSameLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.RecordTransfer(context.Background(), TransferInput{
		From:  LocationStore,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrSameLocation)
}

func TestUpdateTransferNetsReversal(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationWarehouse, 1, 20)
	svc := NewService(repo, nil)
	ctx := context.Background()

	transfer, err := svc.RecordTransfer(ctx, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 5}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 15, stockQty(repo, LocationWarehouse, 1))

	updated, err := svc.UpdateTransfer(ctx, transfer.ID, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 8}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	// Net warehouse effect is exactly -8, not -13.
	require.EqualValues(t, 12, stockQty(repo, LocationWarehouse, 1))
	require.EqualValues(t, 8, stockQty(repo, LocationStore, 1))
}

func TestUpdateTransferRevalidatesNewLines(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationWarehouse, 1, 10)
	svc := NewService(repo, nil)
	ctx := context.Background()

	transfer, err := svc.RecordTransfer(ctx, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateTransfer(ctx, transfer.ID, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 50}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	// Rejection leaves the original transfer fully intact.
	require.EqualValues(t, 5, stockQty(repo, LocationWarehouse, 1))
	require.EqualValues(t, 5, stockQty(repo, LocationStore, 1))
	got, err := svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, got.Lines[0].Quantity)
}

func TestDeleteTransferKeepsInventory(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "100")
	seedStock(repo, LocationWarehouse, 1, 10)
	svc := NewService(repo, nil)
	ctx := context.Background()

	transfer, err := svc.RecordTransfer(ctx, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore2,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTransfer(ctx, transfer.ID))
	require.EqualValues(t, 6, stockQty(repo, LocationWarehouse, 1))
	require.EqualValues(t, 4, stockQty(repo, LocationStore2, 1))
}

func TestEndToEndScenario(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "Laptop X1", "0")
	repo.state.customers[7] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-500",
		Lines:     []LineInput{{ItemID: 1, Quantity: 10, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, stockQty(repo, LocationWarehouse, 1))
	requireDecimal(t, "100", repo.state.items[1].AverageCost)

	_, err = svc.RecordTransfer(ctx, TransferInput{
		From:  LocationWarehouse,
		To:    LocationStore,
		Lines: []TransferLineInput{{ItemID: 1, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, SaleInput{
		Store:      LocationStore,
		CustomerID: 7,
		Lines:      []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: dec("150")}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 6, stockQty(repo, LocationStore, 1))
	require.EqualValues(t, 4, repo.state.items[1].SaleCount)

	_, err = svc.RecordReturn(ctx, ReturnInput{
		Store:      LocationStore,
		CustomerID: 7,
		InvoiceNo:  "R-500",
		Lines:      []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: dec("90")}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 8, stockQty(repo, LocationStore, 1))
	// Blend uses the pre-return on-hand of 6: (6*100 + 2*90) / 8.
	requireDecimal(t, "97.5", repo.state.items[1].AverageCost)
}

func TestMetricsObserved(t *testing.T) {
	repo := newMemoryRepo()
	seedItem(repo, 1, "SSD 1TB", "0")
	recorder := &metricsRecorder{}
	svc := NewService(repo, recorder)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{
		Supplier:  "ACME Parts",
		InvoiceNo: "INV-1",
		Lines:     []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: dec("10")}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPurchase(ctx, PurchaseInput{Supplier: "x", InvoiceNo: "2"})
	require.Error(t, err)

	require.Equal(t, []string{"purchase:committed", "purchase:rejected"}, recorder.events)
}

type metricsRecorder struct {
	events []string
}

func (m *metricsRecorder) ObserveMovement(movementType, outcome string) {
	m.events = append(m.events, movementType+":"+outcome)
}
