// Package packaging edits the (package type, quantity) rows attached to an order
// when it is finalized or when a finalized order is corrected.
package packaging

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/despacho/internal/api"
)

// Row is one editable line. PackageID zero means no type picked yet.
type Row struct {
	Index     int
	PackageID int
	Quantity  int
}

// Editor keeps at least one row at all times and row indices contiguous from 0.
type Editor struct {
	rows []Row
}

// NewEditor seeds rows from lines already stored on the order, or a single empty
// row when there are none.
func NewEditor(lines []api.PackageLine) *Editor {
	e := &Editor{}
	for _, l := range lines {
		e.rows = append(e.rows, Row{PackageID: l.PackageID, Quantity: clampQty(l.Quantity)})
	}
	if len(e.rows) == 0 {
		e.rows = append(e.rows, Row{Quantity: 1})
	}
	e.reindex()
	return e
}

// FromOrder builds the editor from an order's package list, falling back to the
// legacy single-package columns when the list is empty.
func FromOrder(o api.Order) *Editor {
	lines := make([]api.PackageLine, 0, len(o.Packages))
	for _, p := range o.Packages {
		id := p.PackageID
		if id == 0 && p.Package != nil {
			id = p.Package.ID
		}
		lines = append(lines, api.PackageLine{PackageID: id, Quantity: p.Quantity})
	}
	if len(lines) == 0 && o.LegacyPackage != nil && o.LegacyPackage.ID != 0 {
		lines = append(lines, api.PackageLine{PackageID: o.LegacyPackage.ID, Quantity: o.LegacyQuantity})
	}
	return NewEditor(lines)
}

func (e *Editor) Len() int { return len(e.rows) }

func (e *Editor) Clone() *Editor { return &Editor{rows: e.Rows()} }

func (e *Editor) Rows() []Row { return append([]Row(nil), e.rows...) }

func (e *Editor) Row(i int) (Row, bool) {
	if i < 0 || i >= len(e.rows) {
		return Row{}, false
	}
	return e.rows[i], true
}

// Add appends an empty row and returns its index.
func (e *Editor) Add() int {
	e.rows = append(e.rows, Row{Index: len(e.rows), Quantity: 1})
	return len(e.rows) - 1
}

// CanRemove is false when a single row is left; the UI hides the remove control then.
func (e *Editor) CanRemove() bool { return len(e.rows) > 1 }

// Remove deletes row i and renumbers the rest. It refuses to drop the last row.
func (e *Editor) Remove(i int) bool {
	if !e.CanRemove() || i < 0 || i >= len(e.rows) {
		return false
	}
	e.rows = append(e.rows[:i], e.rows[i+1:]...)
	e.reindex()
	return true
}

func (e *Editor) SetPackage(i, packageID int) {
	if i < 0 || i >= len(e.rows) {
		return
	}
	if packageID < 0 {
		packageID = 0
	}
	e.rows[i].PackageID = packageID
}

// SetQuantity parses raw; anything that is not an integer of at least 1 becomes 1.
func (e *Editor) SetQuantity(i int, raw string) int {
	if i < 0 || i >= len(e.rows) {
		return 0
	}
	e.rows[i].Quantity = ParseQuantity(raw)
	return e.rows[i].Quantity
}

func ParseQuantity(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	return clampQty(n)
}

func clampQty(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Lines collects rows with a package type picked, in row order.
func (e *Editor) Lines() []api.PackageLine {
	out := make([]api.PackageLine, 0, len(e.rows))
	for _, r := range e.rows {
		if r.PackageID == 0 {
			continue
		}
		out = append(out, api.PackageLine{PackageID: r.PackageID, Quantity: clampQty(r.Quantity)})
	}
	return out
}

// Cost prices the collected lines against catalog. Unknown ids cost nothing.
func (e *Editor) Cost(catalog []api.Package) decimal.Decimal {
	unit := make(map[int]decimal.Decimal, len(catalog))
	for _, p := range catalog {
		unit[p.ID] = p.UnitCost
	}
	total := decimal.Zero
	for _, l := range e.Lines() {
		total = total.Add(unit[l.PackageID].Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (e *Editor) reindex() {
	for i := range e.rows {
		e.rows[i].Index = i
	}
}
