package packaging

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/api"
)

func indices(e *Editor) []int {
	out := []int{}
	for _, r := range e.Rows() {
		out = append(out, r.Index)
	}
	return out
}

func TestNewEditorSeedsOneEmptyRow(t *testing.T) {
	t.Parallel()

	e := NewEditor(nil)
	require.Equal(t, 1, e.Len())
	r, _ := e.Row(0)
	require.Equal(t, Row{Index: 0, PackageID: 0, Quantity: 1}, r)
	require.False(t, e.CanRemove())
	require.Empty(t, e.Lines())
}

func TestAddKeepsIndicesContiguous(t *testing.T) {
	t.Parallel()

	e := NewEditor(nil)
	for n := 1; n < 5; n++ {
		require.Equal(t, n, e.Add())
		require.Equal(t, n+1, e.Len())
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, indices(e))
}

func TestRemoveReindexesAndStopsAtOne(t *testing.T) {
	t.Parallel()

	e := NewEditor([]api.PackageLine{{PackageID: 5, Quantity: 2}, {PackageID: 6, Quantity: 1}, {PackageID: 7, Quantity: 3}})
	require.True(t, e.Remove(1))
	require.Equal(t, []int{0, 1}, indices(e))
	require.Equal(t, []api.PackageLine{{PackageID: 5, Quantity: 2}, {PackageID: 7, Quantity: 3}}, e.Lines())

	require.True(t, e.Remove(0))
	require.False(t, e.CanRemove())
	require.False(t, e.Remove(0))
	require.Equal(t, 1, e.Len())
	require.False(t, e.Remove(9))
}

func TestSetQuantityDefaultsToOne(t *testing.T) {
	t.Parallel()

	e := NewEditor(nil)
	for raw, want := range map[string]int{"3": 3, " 12 ": 12, "0": 1, "-4": 1, "abc": 1, "": 1, "2.5": 1} {
		require.Equal(t, want, e.SetQuantity(0, raw), "raw=%q", raw)
	}
}

func TestLinesSkipUntypedRows(t *testing.T) {
	t.Parallel()

	e := NewEditor(nil)
	e.SetQuantity(0, "4")
	e.Add()
	e.SetPackage(1, 7)
	e.Add()
	e.SetQuantity(2, "9")

	require.Equal(t, []api.PackageLine{{PackageID: 7, Quantity: 1}}, e.Lines())
}

func TestFromOrder(t *testing.T) {
	t.Parallel()

	e := FromOrder(api.Order{Packages: []api.OrderPackage{
		{PackageID: 5, Quantity: 2},
		{Package: &api.Package{ID: 7}, Quantity: 0},
	}})
	require.Equal(t, []api.PackageLine{{PackageID: 5, Quantity: 2}, {PackageID: 7, Quantity: 1}}, e.Lines())

	legacy := FromOrder(api.Order{LegacyPackage: &api.Package{ID: 3}, LegacyQuantity: 4})
	require.Equal(t, []api.PackageLine{{PackageID: 3, Quantity: 4}}, legacy.Lines())

	empty := FromOrder(api.Order{})
	require.Equal(t, 1, empty.Len())
}

func TestCost(t *testing.T) {
	t.Parallel()

	catalog := []api.Package{
		{ID: 5, UnitCost: decimal.RequireFromString("1.25")},
		{ID: 7, UnitCost: decimal.RequireFromString("0.80")},
	}
	e := NewEditor([]api.PackageLine{{PackageID: 5, Quantity: 2}, {PackageID: 7, Quantity: 1}, {PackageID: 99, Quantity: 1}})
	require.True(t, decimal.RequireFromString("3.30").Equal(e.Cost(catalog)))
}
