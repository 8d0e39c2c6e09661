package boxes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-retail/meridian-retail/internal/movement"
	"github.com/meridian-retail/meridian-retail/internal/platform/cache"
)

// RepositoryPort is what the service needs from persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetBox(ctx context.Context, loc movement.Location, boxNumber string) (Box, error)
	ListBoxes(ctx context.Context, loc movement.Location) ([]Box, error)
}

// TxRepository is the transactional surface. The ledger reads are
// read-only here; stock quantities are owned by the movement engine.
type TxRepository interface {
	InsertBox(ctx context.Context, box *Box) error
	GetBoxForUpdate(ctx context.Context, loc movement.Location, boxNumber string) (Box, error)
	ListBoxesForUpdate(ctx context.Context, loc movement.Location) ([]Box, error)
	SaveBox(ctx context.Context, box Box) error
	DeleteBox(ctx context.Context, id int64) error
	GetItemName(ctx context.Context, itemID int64) (string, error)
	LedgerQuantity(ctx context.Context, loc movement.Location, itemID int64) (int64, error)
}

// Service implements box placement on top of the movement ledgers.
type Service struct {
	repo  RepositoryPort
	cache *cache.Store
	group singleflight.Group
}

// NewService constructs a Service. cacheStore may be nil to disable the
// read-projection cache.
func NewService(repo RepositoryPort, cacheStore *cache.Store) *Service {
	return &Service{repo: repo, cache: cacheStore}
}

// CreateBoxInput describes a manually created box.
type CreateBoxInput struct {
	Location  movement.Location
	BoxNumber string
	Capacity  int64
	Status    Status
}

// UpdateBoxInput carries the editable box fields.
type UpdateBoxInput struct {
	Capacity int64
	Status   Status
}

// SmartCreateInput asks for new boxes auto-filled from unboxed stock.
// Capacity zero means "size the boxes to fit": each box gets an even
// share of the available quantity.
type SmartCreateInput struct {
	Location      movement.Location
	ItemID        int64
	NumberOfBoxes int64
	Capacity      int64
}

// SmartCreateResult reports what was created and what did not fit.
type SmartCreateResult struct {
	Boxes     []Box `json:"boxes"`
	Assigned  int64 `json:"assigned"`
	Remaining int64 `json:"remaining"`
}

// BoxDelta is one box touched by a distribution or removal.
type BoxDelta struct {
	BoxNumber string `json:"box_number"`
	Quantity  int64  `json:"quantity"`
	Status    Status `json:"status"`
}

// DistributeResult reports a capacity-bounded distribution. Remaining is
// quantity that found no capacity; it is data, not an error.
type DistributeResult struct {
	Distributed int64      `json:"distributed"`
	Remaining   int64      `json:"remaining"`
	Boxes       []BoxDelta `json:"boxes"`
}

// RemoveResult reports a drain. Remaining is quantity the boxes did not
// hold; the removals that did apply are kept.
type RemoveResult struct {
	Removed   int64      `json:"removed"`
	Remaining int64      `json:"remaining"`
	Boxes     []BoxDelta `json:"boxes"`
}

// Placement locates one item line inside one box.
type Placement struct {
	BoxNumber string `json:"box_number"`
	Quantity  int64  `json:"quantity"`
	Status    Status `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

// Distribution summarizes where an item sits relative to its ledger.
type Distribution struct {
	ItemID     int64             `json:"item_id"`
	Location   movement.Location `json:"location"`
	LedgerQty  int64             `json:"ledger_quantity"`
	BoxedQty   int64             `json:"boxed_quantity"`
	UnboxedQty int64             `json:"unboxed_quantity"`
	Placements []Placement       `json:"placements"`
}

// CreateBox registers a container. The number must be unused at the
// location.
func (s *Service) CreateBox(ctx context.Context, input CreateBoxInput) (Box, error) {
	if input.Capacity < 1 {
		return Box{}, ErrInvalidCapacity
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	now := time.Now().UTC()
	box := Box{
		Location:  input.Location,
		BoxNumber: input.BoxNumber,
		Capacity:  input.Capacity,
		Status:    status,
		Items:     []BoxItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertBox(ctx, &box)
	})
	if err != nil {
		return Box{}, err
	}
	s.invalidateLocation(ctx, input.Location)
	return box, nil
}

// UpdateBox edits capacity and status. Shrinking capacity below the
// current contents flips the box to FULL rather than rejecting.
func (s *Service) UpdateBox(ctx context.Context, loc movement.Location, boxNumber string, input UpdateBoxInput) (Box, error) {
	if input.Capacity < 1 {
		return Box{}, ErrInvalidCapacity
	}
	var updated Box
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		box, err := tx.GetBoxForUpdate(ctx, loc, boxNumber)
		if err != nil {
			return err
		}
		box.Capacity = input.Capacity
		box.Status = input.Status
		box.refreshStatus()
		box.UpdatedAt = time.Now().UTC()
		updated = box
		return tx.SaveBox(ctx, box)
	})
	if err != nil {
		return Box{}, err
	}
	s.invalidateLocation(ctx, loc)
	return updated, nil
}

// DeleteBox removes an empty container.
func (s *Service) DeleteBox(ctx context.Context, loc movement.Location, boxNumber string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		box, err := tx.GetBoxForUpdate(ctx, loc, boxNumber)
		if err != nil {
			return err
		}
		if box.Total() > 0 {
			return fmt.Errorf("%w: box %s holds %d units", ErrBoxNotEmpty, boxNumber, box.Total())
		}
		return tx.DeleteBox(ctx, box.ID)
	})
	if err != nil {
		return err
	}
	s.invalidateLocation(ctx, loc)
	return nil
}

// SmartCreateBoxes creates up to n new numbered boxes and greedily fills
// them with the item's unboxed ledger stock. Stock that does not fit is
// reported back in Remaining, never dropped.
func (s *Service) SmartCreateBoxes(ctx context.Context, input SmartCreateInput) (SmartCreateResult, error) {
	if input.NumberOfBoxes < 1 {
		return SmartCreateResult{}, ErrInvalidBoxCount
	}
	if input.Capacity < 0 {
		return SmartCreateResult{}, ErrInvalidCapacity
	}
	var result SmartCreateResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		itemName, err := tx.GetItemName(ctx, input.ItemID)
		if err != nil {
			return err
		}
		existing, err := tx.ListBoxesForUpdate(ctx, input.Location)
		if err != nil {
			return err
		}
		ledgerQty, err := tx.LedgerQuantity(ctx, input.Location, input.ItemID)
		if err != nil {
			return err
		}
		var boxed int64
		for _, box := range existing {
			boxed += box.quantityOf(input.ItemID)
		}
		available := ledgerQty - boxed
		if available <= 0 {
			return fmt.Errorf("%w: item %d", ErrNothingToBox, input.ItemID)
		}

		// Omitted capacity sizes the requested boxes to hold exactly the
		// available quantity, split evenly with the remainder up front.
		capacity := input.Capacity
		if capacity == 0 {
			capacity = (available + input.NumberOfBoxes - 1) / input.NumberOfBoxes
		}

		next := nextBoxNumber(existing)
		now := time.Now().UTC()
		remaining := available
		result = SmartCreateResult{Boxes: []Box{}}
		for i := int64(0); i < input.NumberOfBoxes; i++ {
			assign := min64(remaining, capacity)
			box := Box{
				Location:  input.Location,
				BoxNumber: strconv.FormatInt(next+i, 10),
				Capacity:  capacity,
				Status:    StatusActive,
				Items:     []BoxItem{},
				CreatedAt: now,
				UpdatedAt: now,
			}
			if assign > 0 {
				box.Items = append(box.Items, BoxItem{
					ItemID:   input.ItemID,
					ItemName: itemName,
					Quantity: assign,
				})
				remaining -= assign
			}
			box.refreshStatus()
			if err := tx.InsertBox(ctx, &box); err != nil {
				return err
			}
			result.Boxes = append(result.Boxes, box)
		}
		result.Assigned = available - remaining
		result.Remaining = remaining
		return nil
	})
	if err != nil {
		return SmartCreateResult{}, err
	}
	s.invalidateItem(ctx, input.Location, input.ItemID)
	return result, nil
}

// AutoDistributeItems spreads a quantity over the location's existing
// boxes in ascending number order. Every visited box has its status
// re-derived, including boxes that turn out full before receiving
// anything.
func (s *Service) AutoDistributeItems(ctx context.Context, loc movement.Location, itemID, quantity int64) (DistributeResult, error) {
	if quantity < 1 {
		return DistributeResult{}, ErrInvalidQuantity
	}
	var result DistributeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		itemName, err := tx.GetItemName(ctx, itemID)
		if err != nil {
			return err
		}
		list, err := tx.ListBoxesForUpdate(ctx, loc)
		if err != nil {
			return err
		}
		sortBoxesAscending(list)

		remaining := quantity
		result = DistributeResult{Boxes: []BoxDelta{}}
		for i := range list {
			box := &list[i]
			if box.Status == StatusInactive {
				continue
			}
			free := box.Capacity - box.Total()
			if free <= 0 {
				// Opportunistic status repair for boxes filled past
				// capacity by earlier manual edits.
				before := box.Status
				box.refreshStatus()
				if box.Status != before {
					box.UpdatedAt = time.Now().UTC()
					if err := tx.SaveBox(ctx, *box); err != nil {
						return err
					}
				}
				continue
			}
			if remaining == 0 {
				continue
			}
			assign := min64(remaining, free)
			mergeItem(box, itemID, itemName, assign)
			box.refreshStatus()
			box.UpdatedAt = time.Now().UTC()
			if err := tx.SaveBox(ctx, *box); err != nil {
				return err
			}
			remaining -= assign
			result.Boxes = append(result.Boxes, BoxDelta{
				BoxNumber: box.BoxNumber,
				Quantity:  assign,
				Status:    box.Status,
			})
		}
		result.Distributed = quantity - remaining
		result.Remaining = remaining
		return nil
	})
	if err != nil {
		return DistributeResult{}, err
	}
	s.invalidateItem(ctx, loc, itemID)
	return result, nil
}

// RemoveItemsFromBoxes drains a quantity starting from the highest box
// number. Item lines that hit zero are deleted and each touched box has
// its status re-derived. A shortfall is reported in Remaining while the
// removals that applied are kept.
func (s *Service) RemoveItemsFromBoxes(ctx context.Context, loc movement.Location, itemID, quantity int64) (RemoveResult, error) {
	if quantity < 1 {
		return RemoveResult{}, ErrInvalidQuantity
	}
	var result RemoveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		list, err := tx.ListBoxesForUpdate(ctx, loc)
		if err != nil {
			return err
		}
		sortBoxesDescending(list)

		remaining := quantity
		result = RemoveResult{Boxes: []BoxDelta{}}
		for i := range list {
			if remaining == 0 {
				break
			}
			box := &list[i]
			held := box.quantityOf(itemID)
			if held == 0 {
				continue
			}
			take := min64(remaining, held)
			shrinkItem(box, itemID, take)
			box.refreshStatus()
			box.UpdatedAt = time.Now().UTC()
			if err := tx.SaveBox(ctx, *box); err != nil {
				return err
			}
			remaining -= take
			result.Boxes = append(result.Boxes, BoxDelta{
				BoxNumber: box.BoxNumber,
				Quantity:  take,
				Status:    box.Status,
			})
		}
		result.Removed = quantity - remaining
		result.Remaining = remaining
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}
	s.invalidateItem(ctx, loc, itemID)
	return result, nil
}

// GetBox returns one box by number.
func (s *Service) GetBox(ctx context.Context, loc movement.Location, boxNumber string) (Box, error) {
	return s.repo.GetBox(ctx, loc, boxNumber)
}

// ListBoxesByLocation returns every box at a location in numeric order.
func (s *Service) ListBoxesByLocation(ctx context.Context, loc movement.Location) ([]Box, error) {
	key := locationKey(loc)
	value, err, _ := s.group.Do(key, func() (any, error) {
		var cached []Box
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
		list, err := s.repo.ListBoxes(ctx, loc)
		if err != nil {
			return nil, err
		}
		sortBoxesAscending(list)
		if err := s.cache.SetJSON(ctx, key, list); err != nil {
			return nil, err
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Box), nil
}

// FindItemInBox lists every box at the location holding the item.
func (s *Service) FindItemInBox(ctx context.Context, loc movement.Location, itemID int64) ([]Placement, error) {
	key := itemKey(loc, itemID)
	value, err, _ := s.group.Do(key, func() (any, error) {
		var cached []Placement
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
		placements, err := s.placements(ctx, loc, itemID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetJSON(ctx, key, placements); err != nil {
			return nil, err
		}
		return placements, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Placement), nil
}

// GetItemDistribution reports boxed versus ledger quantity for one item.
func (s *Service) GetItemDistribution(ctx context.Context, loc movement.Location, itemID int64) (Distribution, error) {
	key := distributionKey(loc, itemID)
	value, err, _ := s.group.Do(key, func() (any, error) {
		var cached Distribution
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
		var dist Distribution
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			list, err := tx.ListBoxesForUpdate(ctx, loc)
			if err != nil {
				return err
			}
			sortBoxesAscending(list)
			ledgerQty, err := tx.LedgerQuantity(ctx, loc, itemID)
			if err != nil {
				return err
			}
			dist = Distribution{ItemID: itemID, Location: loc, LedgerQty: ledgerQty, Placements: []Placement{}}
			for _, box := range list {
				held := box.quantityOf(itemID)
				if held == 0 {
					continue
				}
				dist.BoxedQty += held
				dist.Placements = append(dist.Placements, Placement{
					BoxNumber: box.BoxNumber,
					Quantity:  held,
					Status:    box.Status,
				})
			}
			// Boxes can overstate the ledger; the view reports zero
			// rather than a negative remainder.
			if dist.UnboxedQty = ledgerQty - dist.BoxedQty; dist.UnboxedQty < 0 {
				dist.UnboxedQty = 0
			}
			return nil
		})
		if err != nil {
			return Distribution{}, err
		}
		if err := s.cache.SetJSON(ctx, key, dist); err != nil {
			return Distribution{}, err
		}
		return dist, nil
	})
	if err != nil {
		return Distribution{}, err
	}
	return value.(Distribution), nil
}

func (s *Service) placements(ctx context.Context, loc movement.Location, itemID int64) ([]Placement, error) {
	list, err := s.repo.ListBoxes(ctx, loc)
	if err != nil {
		return nil, err
	}
	sortBoxesAscending(list)
	placements := []Placement{}
	for _, box := range list {
		for _, item := range box.Items {
			if item.ItemID != itemID {
				continue
			}
			placements = append(placements, Placement{
				BoxNumber: box.BoxNumber,
				Quantity:  item.Quantity,
				Status:    box.Status,
				Notes:     item.Notes,
			})
		}
	}
	return placements, nil
}

func (s *Service) invalidateLocation(ctx context.Context, loc movement.Location) {
	_ = s.cache.Invalidate(ctx, locationKey(loc))
}

func (s *Service) invalidateItem(ctx context.Context, loc movement.Location, itemID int64) {
	_ = s.cache.Invalidate(ctx, locationKey(loc), itemKey(loc, itemID), distributionKey(loc, itemID))
}

func locationKey(loc movement.Location) string {
	return fmt.Sprintf("boxes:list:%s", loc)
}

func itemKey(loc movement.Location, itemID int64) string {
	return fmt.Sprintf("boxes:item:%s:%d", loc, itemID)
}

func distributionKey(loc movement.Location, itemID int64) string {
	return fmt.Sprintf("boxes:dist:%s:%d", loc, itemID)
}

func mergeItem(box *Box, itemID int64, itemName string, qty int64) {
	for i := range box.Items {
		if box.Items[i].ItemID == itemID {
			box.Items[i].Quantity += qty
			return
		}
	}
	box.Items = append(box.Items, BoxItem{ItemID: itemID, ItemName: itemName, Quantity: qty})
}

func shrinkItem(box *Box, itemID, qty int64) {
	for i := range box.Items {
		if box.Items[i].ItemID != itemID {
			continue
		}
		box.Items[i].Quantity -= qty
		if box.Items[i].Quantity <= 0 {
			box.Items = append(box.Items[:i], box.Items[i+1:]...)
		}
		return
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
