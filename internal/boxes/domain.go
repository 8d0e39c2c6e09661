package boxes

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/meridian-retail/meridian-retail/internal/movement"
)

// Status is the lifecycle state of a box.
type Status string

const (
	// StatusActive marks a box that can still receive items.
	StatusActive Status = "ACTIVE"
	// StatusFull marks a box whose contents reached its capacity.
	StatusFull Status = "FULL"
	// StatusInactive marks a box excluded from automatic placement.
	StatusInactive Status = "INACTIVE"
)

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive, StatusFull, StatusInactive:
		return Status(raw), nil
	default:
		return "", ErrUnknownStatus
	}
}

// BoxItem is one item line inside a box.
type BoxItem struct {
	ItemID   int64  `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// Box is a physical container at one location. Box numbers are free text
// but unique per location, and order numerically wherever order matters.
type Box struct {
	ID        int64             `json:"id"`
	Location  movement.Location `json:"location"`
	BoxNumber string            `json:"box_number"`
	Capacity  int64             `json:"capacity"`
	Status    Status            `json:"status"`
	Items     []BoxItem         `json:"items"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Total is the summed quantity across all item lines.
func (b Box) Total() int64 {
	var total int64
	for _, item := range b.Items {
		total += item.Quantity
	}
	return total
}

// quantityOf returns the boxed quantity of one item.
func (b Box) quantityOf(itemID int64) int64 {
	for _, item := range b.Items {
		if item.ItemID == itemID {
			return item.Quantity
		}
	}
	return 0
}

// refreshStatus re-derives FULL versus ACTIVE from the current total.
// Inactive boxes keep their state; deactivation is always explicit.
func (b *Box) refreshStatus() {
	if b.Status == StatusInactive {
		return
	}
	if b.Total() >= b.Capacity {
		b.Status = StatusFull
	} else {
		b.Status = StatusActive
	}
}

var (
	ErrBoxNotFound     = errors.New("box not found")
	ErrDuplicateBox    = errors.New("box number already used at location")
	ErrBoxNotEmpty     = errors.New("box still holds items")
	ErrUnknownStatus   = errors.New("unknown box status")
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidBoxCount = errors.New("number of boxes must be positive")
	ErrNothingToBox    = errors.New("no unboxed stock available at location")
)

// numericBoxNumber parses a box number as an integer. Box numbers like
// "2", "10", "1" must order as 1, 2, 10, never lexicographically.
func numericBoxNumber(boxNumber string) (int64, bool) {
	n, err := strconv.ParseInt(boxNumber, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// sortBoxesAscending orders numeric box numbers first, smallest to
// largest, with non-numeric numbers after them in plain string order.
func sortBoxesAscending(list []Box) {
	sort.SliceStable(list, func(i, j int) bool {
		return boxLess(list[i].BoxNumber, list[j].BoxNumber)
	})
}

// sortBoxesDescending is the drain order: highest number first.
func sortBoxesDescending(list []Box) {
	sort.SliceStable(list, func(i, j int) bool {
		return boxLess(list[j].BoxNumber, list[i].BoxNumber)
	})
}

func boxLess(a, b string) bool {
	an, aok := numericBoxNumber(a)
	bn, bok := numericBoxNumber(b)
	switch {
	case aok && bok:
		return an < bn
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

// nextBoxNumber is max(numeric box numbers)+1, or 1 when the location has
// no numeric box numbers yet.
func nextBoxNumber(list []Box) int64 {
	var max int64
	for _, box := range list {
		if n, ok := numericBoxNumber(box.BoxNumber); ok && n > max {
			max = n
		}
	}
	return max + 1
}
