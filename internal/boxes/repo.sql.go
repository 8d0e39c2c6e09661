package boxes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian-retail/internal/movement"
	"github.com/meridian-retail/meridian-retail/internal/platform/db"
)

// Repository persists boxes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("box repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBox fetches one box with its item lines.
func (r *Repository) GetBox(ctx context.Context, loc movement.Location, boxNumber string) (Box, error) {
	return fetchBox(ctx, r.pool, loc, boxNumber, "")
}

// ListBoxes returns every box at the location, unsorted; callers apply
// the numeric ordering.
func (r *Repository) ListBoxes(ctx context.Context, loc movement.Location) ([]Box, error) {
	return fetchBoxes(ctx, r.pool, loc, "")
}

func (t *txRepository) InsertBox(ctx context.Context, box *Box) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO boxes (location, box_number, capacity, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		box.Location, box.BoxNumber, box.Capacity, box.Status, box.CreatedAt, box.UpdatedAt).Scan(&box.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBox
		}
		return err
	}
	return insertItems(ctx, t.tx, box.ID, box.Items)
}

func (t *txRepository) GetBoxForUpdate(ctx context.Context, loc movement.Location, boxNumber string) (Box, error) {
	return fetchBox(ctx, t.tx, loc, boxNumber, " FOR UPDATE")
}

func (t *txRepository) ListBoxesForUpdate(ctx context.Context, loc movement.Location) ([]Box, error) {
	return fetchBoxes(ctx, t.tx, loc, " FOR UPDATE")
}

// SaveBox rewrites the box row and replaces its item lines.
func (t *txRepository) SaveBox(ctx context.Context, box Box) error {
	tag, err := t.tx.Exec(ctx, `UPDATE boxes SET capacity=$1, status=$2, updated_at=$3 WHERE id=$4`,
		box.Capacity, box.Status, box.UpdatedAt, box.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBoxNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM box_items WHERE box_id=$1`, box.ID); err != nil {
		return err
	}
	return insertItems(ctx, t.tx, box.ID, box.Items)
}

func (t *txRepository) DeleteBox(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM boxes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBoxNotFound
	}
	return nil
}

func (t *txRepository) GetItemName(ctx context.Context, itemID int64) (string, error) {
	var name string
	err := t.tx.QueryRow(ctx, `SELECT name FROM items WHERE id=$1`, itemID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", movement.ErrItemNotFound
		}
		return "", err
	}
	return name, nil
}

// LedgerQuantity reads the authoritative on-hand count. Stock rows are
// owned by the movement engine; this is a plain read, no lock.
func (t *txRepository) LedgerQuantity(ctx context.Context, loc movement.Location, itemID int64) (int64, error) {
	var qty int64
	err := t.tx.QueryRow(ctx, `SELECT quantity FROM stock_levels WHERE location=$1 AND item_id=$2`,
		loc, itemID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchBox(ctx context.Context, q querier, loc movement.Location, boxNumber, lock string) (Box, error) {
	var box Box
	err := q.QueryRow(ctx, `SELECT id, location, box_number, capacity, status, created_at, updated_at
FROM boxes WHERE location=$1 AND box_number=$2`+lock, loc, boxNumber).
		Scan(&box.ID, &box.Location, &box.BoxNumber, &box.Capacity, &box.Status, &box.CreatedAt, &box.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Box{}, ErrBoxNotFound
		}
		return Box{}, err
	}
	box.Items, err = fetchItems(ctx, q, box.ID)
	return box, err
}

func fetchBoxes(ctx context.Context, q querier, loc movement.Location, lock string) ([]Box, error) {
	rows, err := q.Query(ctx, `SELECT id, location, box_number, capacity, status, created_at, updated_at
FROM boxes WHERE location=$1 ORDER BY id`+lock, loc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Box{}
	for rows.Next() {
		var box Box
		if err := rows.Scan(&box.ID, &box.Location, &box.BoxNumber, &box.Capacity, &box.Status, &box.CreatedAt, &box.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, box)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Items, err = fetchItems(ctx, q, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func fetchItems(ctx context.Context, q querier, boxID int64) ([]BoxItem, error) {
	rows, err := q.Query(ctx, `SELECT item_id, item_name, quantity, notes
FROM box_items WHERE box_id=$1 ORDER BY id`, boxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BoxItem{}
	for rows.Next() {
		var item BoxItem
		if err := rows.Scan(&item.ItemID, &item.ItemName, &item.Quantity, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, boxID int64, items []BoxItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO box_items (box_id, item_id, item_name, quantity, notes)
VALUES ($1,$2,$3,$4,$5)`, boxID, item.ItemID, item.ItemName, item.Quantity, item.Notes); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
