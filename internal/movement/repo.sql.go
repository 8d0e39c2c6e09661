package movement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian-retail/internal/platform/db"
)

// Repository persists movement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemCost(ctx context.Context, itemID int64, avg decimal.Decimal) error
	BumpItemSales(ctx context.Context, itemID int64, qty int64, at time.Time) error
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	GetStockForUpdate(ctx context.Context, loc Location, itemID int64) (StockLevel, error)
	UpsertStock(ctx context.Context, stock StockLevel) error
	InsertPurchase(ctx context.Context, purchase *Purchase) error
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	UpdatePurchaseRecord(ctx context.Context, purchase Purchase) error
	DeletePurchaseRecord(ctx context.Context, id int64) error
	InsertSale(ctx context.Context, sale *Sale) error
	ReturnExists(ctx context.Context, store Location, customerID int64, invoiceNo string) (bool, error)
	InsertReturn(ctx context.Context, ret *Return) error
	InsertTransfer(ctx context.Context, transfer *Transfer) error
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	ReplaceTransfer(ctx context.Context, transfer Transfer) error
	DeleteTransferRecord(ctx context.Context, id int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("movement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetStockLevels returns ledger rows for an item, one per location held.
func (r *Repository) GetStockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, location, quantity, last_sale_at, sale_count
FROM stock_levels WHERE item_id=$1 ORDER BY location`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ItemID, &level.Location, &level.Quantity, &level.LastSaleAt, &level.SaleCount); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// GetPurchase fetches one purchase with lines.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.pool.QueryRow(ctx, `SELECT id, doc_ref, supplier, invoice_no, posted_at, created_at
FROM purchases WHERE id=$1`, id).Scan(&p.ID, &p.DocRef, &p.Supplier, &p.InvoiceNo, &p.PostedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	p.Lines, err = scanLines(ctx, r.pool, `SELECT item_id, item_name, quantity, unit_price::text
FROM purchase_lines WHERE purchase_id=$1 ORDER BY id`, id)
	return p, err
}

// GetTransfer fetches one transfer with lines.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, `SELECT id, doc_ref, from_location, to_location, technician_id, work_type, posted_at
FROM transfers WHERE id=$1`, id).Scan(&t.ID, &t.DocRef, &t.From, &t.To, &t.TechnicianID, &t.WorkType, &t.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	t.Lines, err = scanTransferLines(ctx, r.pool, id)
	return t, err
}

// ListPurchases returns a page of purchase headers, newest first.
func (r *Repository) ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, doc_ref, supplier, invoice_no, posted_at, created_at
FROM purchases ORDER BY posted_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	purchases := []Purchase{}
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.DocRef, &p.Supplier, &p.InvoiceNo, &p.PostedAt, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

// ListSales returns a page of sale headers for one store, newest first.
func (r *Repository) ListSales(ctx context.Context, store Location, limit, offset int) ([]Sale, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE store=$1`, store).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, doc_ref, store, customer_id, invoice_no, posted_at
FROM sales WHERE store=$1 ORDER BY posted_at DESC, id DESC LIMIT $2 OFFSET $3`, store, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.DocRef, &s.Store, &s.CustomerID, &s.InvoiceNo, &s.PostedAt); err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
	}
	return sales, total, rows.Err()
}

// ListReturns returns a page of return headers for one store, newest first.
func (r *Repository) ListReturns(ctx context.Context, store Location, limit, offset int) ([]Return, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM returns WHERE store=$1`, store).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, doc_ref, store, customer_id, invoice_no, posted_at
FROM returns WHERE store=$1 ORDER BY posted_at DESC, id DESC LIMIT $2 OFFSET $3`, store, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	returns := []Return{}
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.DocRef, &ret.Store, &ret.CustomerID, &ret.InvoiceNo, &ret.PostedAt); err != nil {
			return nil, 0, err
		}
		returns = append(returns, ret)
	}
	return returns, total, rows.Err()
}

// ListTransfers returns a page of transfer headers, newest first.
func (r *Repository) ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, doc_ref, from_location, to_location, technician_id, work_type, posted_at
FROM transfers ORDER BY posted_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.DocRef, &t.From, &t.To, &t.TechnicianID, &t.WorkType, &t.PostedAt); err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, t)
	}
	return transfers, total, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	var avg string
	err := r.tx.QueryRow(ctx, `SELECT id, name, avg_cost::text, last_sale_at, sale_count
FROM items WHERE id=$1 FOR UPDATE`, itemID).Scan(&item.ID, &item.Name, &avg, &item.LastSaleAt, &item.SaleCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	item.AverageCost, err = decimal.NewFromString(avg)
	return item, err
}

func (r *txRepository) UpdateItemCost(ctx context.Context, itemID int64, avg decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET avg_cost=$2::numeric, updated_at=now() WHERE id=$1`, itemID, avg.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) BumpItemSales(ctx context.Context, itemID int64, qty int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET sale_count=sale_count+$2, last_sale_at=$3, updated_at=now()
WHERE id=$1`, itemID, qty, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1)`, customerID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, loc Location, itemID int64) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx, `SELECT item_id, location, quantity, last_sale_at, sale_count
FROM stock_levels WHERE location=$1 AND item_id=$2 FOR UPDATE`, loc, itemID).
		Scan(&level.ItemID, &level.Location, &level.Quantity, &level.LastSaleAt, &level.SaleCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, Location: loc}, ErrStockNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, stock StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (item_id, location, quantity, last_sale_at, sale_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (item_id, location)
DO UPDATE SET quantity=EXCLUDED.quantity, last_sale_at=EXCLUDED.last_sale_at, sale_count=EXCLUDED.sale_count`,
		stock.ItemID, stock.Location, stock.Quantity, stock.LastSaleAt, stock.SaleCount)
	return err
}

func (r *txRepository) InsertPurchase(ctx context.Context, purchase *Purchase) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (doc_ref, supplier, invoice_no, posted_at)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		purchase.DocRef, purchase.Supplier, purchase.InvoiceNo, purchase.PostedAt).
		Scan(&purchase.ID, &purchase.CreatedAt)
	if err != nil {
		return err
	}
	return r.insertPurchaseLines(ctx, purchase.ID, purchase.Lines)
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.tx.QueryRow(ctx, `SELECT id, doc_ref, supplier, invoice_no, posted_at, created_at
FROM purchases WHERE id=$1 FOR UPDATE`, id).
		Scan(&p.ID, &p.DocRef, &p.Supplier, &p.InvoiceNo, &p.PostedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	p.Lines, err = scanLines(ctx, r.tx, `SELECT item_id, item_name, quantity, unit_price::text
FROM purchase_lines WHERE purchase_id=$1 ORDER BY id`, id)
	return p, err
}

func (r *txRepository) UpdatePurchaseRecord(ctx context.Context, purchase Purchase) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchases SET supplier=$2, invoice_no=$3 WHERE id=$1`,
		purchase.ID, purchase.Supplier, purchase.InvoiceNo)
	if err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_lines WHERE purchase_id=$1`, purchase.ID); err != nil {
		return err
	}
	return r.insertPurchaseLines(ctx, purchase.ID, purchase.Lines)
}

func (r *txRepository) DeletePurchaseRecord(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchases WHERE id=$1`, id)
	return err
}

func (r *txRepository) insertPurchaseLines(ctx context.Context, purchaseID int64, lines []Line) error {
	for _, line := range lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO purchase_lines (purchase_id, item_id, item_name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5::numeric)`, purchaseID, line.ItemID, line.ItemName, line.Quantity, line.UnitPrice.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertSale(ctx context.Context, sale *Sale) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (doc_ref, store, customer_id, invoice_no, posted_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		sale.DocRef, sale.Store, sale.CustomerID, sale.InvoiceNo, sale.PostedAt).Scan(&sale.ID)
	if err != nil {
		return err
	}
	for _, line := range sale.Lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, item_id, item_name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5::numeric)`, sale.ID, line.ItemID, line.ItemName, line.Quantity, line.UnitPrice.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReturnExists(ctx context.Context, store Location, customerID int64, invoiceNo string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM returns WHERE store=$1 AND customer_id=$2 AND invoice_no=$3)`,
		store, customerID, invoiceNo).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertReturn(ctx context.Context, ret *Return) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO returns (doc_ref, store, customer_id, invoice_no, posted_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ret.DocRef, ret.Store, ret.CustomerID, ret.InvoiceNo, ret.PostedAt).Scan(&ret.ID)
	if err != nil {
		// The unique index backs up the in-transaction existence check
		// against concurrent submissions of the same invoice.
		if isUniqueViolation(err) {
			return ErrDuplicateInvoice
		}
		return err
	}
	for _, line := range ret.Lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO return_lines (return_id, item_id, item_name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5::numeric)`, ret.ID, line.ItemID, line.ItemName, line.Quantity, line.UnitPrice.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertTransfer(ctx context.Context, transfer *Transfer) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (doc_ref, from_location, to_location, technician_id, work_type, posted_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		transfer.DocRef, transfer.From, transfer.To, transfer.TechnicianID, transfer.WorkType, transfer.PostedAt).
		Scan(&transfer.ID)
	if err != nil {
		return err
	}
	return r.insertTransferLines(ctx, transfer.ID, transfer.Lines)
}

func (r *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var t Transfer
	err := r.tx.QueryRow(ctx, `SELECT id, doc_ref, from_location, to_location, technician_id, work_type, posted_at
FROM transfers WHERE id=$1 FOR UPDATE`, id).
		Scan(&t.ID, &t.DocRef, &t.From, &t.To, &t.TechnicianID, &t.WorkType, &t.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	t.Lines, err = scanTransferLines(ctx, r.tx, id)
	return t, err
}

func (r *txRepository) ReplaceTransfer(ctx context.Context, transfer Transfer) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfers SET from_location=$2, to_location=$3, technician_id=$4, work_type=$5
WHERE id=$1`, transfer.ID, transfer.From, transfer.To, transfer.TechnicianID, transfer.WorkType)
	if err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_lines WHERE transfer_id=$1`, transfer.ID); err != nil {
		return err
	}
	return r.insertTransferLines(ctx, transfer.ID, transfer.Lines)
}

func (r *txRepository) DeleteTransferRecord(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM transfers WHERE id=$1`, id)
	return err
}

func (r *txRepository) insertTransferLines(ctx context.Context, transferID int64, lines []TransferLine) error {
	for _, line := range lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO transfer_lines (transfer_id, item_id, item_name, quantity)
VALUES ($1, $2, $3, $4)`, transferID, line.ItemID, line.ItemName, line.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

// querier covers both pool and transaction query surfaces.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanLines(ctx context.Context, q querier, sql string, recordID int64) ([]Line, error) {
	rows, err := q.Query(ctx, sql, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		var price string
		if err := rows.Scan(&line.ItemID, &line.ItemName, &line.Quantity, &price); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanTransferLines(ctx context.Context, q querier, transferID int64) ([]TransferLine, error) {
	rows, err := q.Query(ctx, `SELECT item_id, item_name, quantity
FROM transfer_lines WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []TransferLine{}
	for rows.Next() {
		var line TransferLine
		if err := rows.Scan(&line.ItemID, &line.ItemName, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
