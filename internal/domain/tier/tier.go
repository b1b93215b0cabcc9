// Package tier holds reward tier definitions and the pure functions that
// place a stake into a tier.
//
// Thresholds are percentages of the pool (0-100). A tier's upper threshold
// is inclusive: a share exactly equal to it belongs to that tier. The lowest
// tier starts at 0 and the highest tier absorbs any share above its own
// threshold.
package tier

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Validation errors returned by NewTable.
var (
	ErrEmptyTable         = errors.New("tier table is empty")
	ErrInvalidID          = errors.New("invalid tier id")
	ErrDuplicateID        = errors.New("duplicate tier id")
	ErrThresholdRange     = errors.New("tier threshold outside 0-100")
	ErrNegativeMultiplier = errors.New("tier multiplier is negative")
)

var hundred = decimal.NewFromInt(100)

// ID identifies a tier. IDs are validated once when a table is built and are
// compared verbatim afterwards.
type ID string

// Validate checks that the id is non-empty and uses only [a-z0-9_-].
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidID, string(id))
		}
	}
	return nil
}

// Definition describes one tier.
type Definition struct {
	ID                    ID
	DisplayName           string
	Multiplier            decimal.Decimal
	UpperThresholdPercent decimal.Decimal
}

// Sorted returns a copy of defs ordered by ascending threshold. Equal
// thresholds keep their input order.
func Sorted(defs []Definition) []Definition {
	out := make([]Definition, len(defs))
	copy(out, defs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpperThresholdPercent.LessThan(out[j].UpperThresholdPercent)
	})
	return out
}

// IndexOf returns the position of id in sorted, or -1.
func IndexOf(sorted []Definition, id ID) int {
	for i := range sorted {
		if sorted[i].ID == id {
			return i
		}
	}
	return -1
}

// Neighbors returns the tiers directly below and above id. Either is nil at
// the ends of the table, and both are nil when id is unknown.
func Neighbors(sorted []Definition, id ID) (prev, next *Definition) {
	i := IndexOf(sorted, id)
	if i < 0 {
		return nil, nil
	}
	if i > 0 {
		p := sorted[i-1]
		prev = &p
	}
	if i < len(sorted)-1 {
		n := sorted[i+1]
		next = &n
	}
	return prev, next
}

// Table is a validated, sorted tier list. It is read-only once built.
type Table struct {
	sorted []Definition
	index  map[ID]int
}

// NewTable validates defs and returns them as a sorted table.
func NewTable(defs []Definition) (*Table, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyTable
	}
	seen := make(map[ID]struct{}, len(defs))
	for _, d := range defs {
		if err := d.ID.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
		}
		seen[d.ID] = struct{}{}
		if d.UpperThresholdPercent.IsNegative() || d.UpperThresholdPercent.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: %s=%s", ErrThresholdRange, d.ID, d.UpperThresholdPercent)
		}
		if d.Multiplier.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrNegativeMultiplier, d.ID)
		}
	}

	t := &Table{sorted: Sorted(defs), index: make(map[ID]int, len(defs))}
	for i, d := range t.sorted {
		t.index[d.ID] = i
	}
	return t, nil
}

// Definitions returns a copy of the sorted tiers.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.sorted))
	copy(out, t.sorted)
	return out
}

// Lookup returns the tier with the given id.
func (t *Table) Lookup(id ID) (Definition, bool) {
	i, ok := t.index[id]
	if !ok {
		return Definition{}, false
	}
	return t.sorted[i], true
}
