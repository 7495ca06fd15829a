package listing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/api"
)

func TestLoadBuildsOpenQuery(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	c.SetStore("Shopee")
	req := c.LoadPage(2)

	require.Equal(t, "page=2&per_page=100&loja=Shopee&status=aberto", req.Params.Encode())
}

func TestLoadPageClamps(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(0, false))
	for _, p := range []int{0, -3} {
		require.Equal(t, 1, c.LoadPage(p).Params.Page)
	}
	require.Equal(t, DefaultPerPage, c.Query().PerPage)
}

func TestStoreFilterPreservesPageByDefault(t *testing.T) {
	t.Parallel()

	c := New(FinalizedOrders(100, false))
	c.LoadPage(3)
	require.Equal(t, 3, c.SetStore("Mercado Livre").Params.Page)
	require.Equal(t, 3, c.SetStore("").Params.Page)

	resetting := New(FinalizedOrders(100, true))
	resetting.LoadPage(3)
	require.Equal(t, 1, resetting.SetStore("Mercado Livre").Params.Page)
}

func TestToggleSort(t *testing.T) {
	t.Parallel()

	c := New(FinalizedOrders(100, false))
	require.Equal(t, ColFinalizedAt, c.Query().OrderBy)
	require.Equal(t, Desc, c.Query().Sort)

	c.LoadPage(4)
	req, ok := c.ToggleSort(ColFreight)
	require.True(t, ok)
	require.Equal(t, "frete_cliente", req.Params.OrderBy)
	require.Equal(t, "desc", req.Params.Sort)
	require.Equal(t, 1, req.Params.Page)

	c.LoadPage(2)
	req, _ = c.ToggleSort(ColFreight)
	require.Equal(t, "asc", req.Params.Sort)
	require.Equal(t, 1, req.Params.Page)

	req, _ = c.ToggleSort(ColFreight)
	require.Equal(t, "desc", req.Params.Sort)

	req, _ = c.ToggleSort(ColNumber)
	require.Equal(t, "desc", req.Params.Sort)
	require.Equal(t, ColNumber, req.Params.OrderBy)
}

func TestOpenListIsNotSortable(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	_, ok := c.ToggleSort(ColNumber)
	require.False(t, ok)
	require.Empty(t, c.Load().Params.OrderBy)
}

func TestSearchDebounceHonorsLatestToken(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	c.LoadPage(5)
	first := c.Type("12")
	second := c.Type("123 ")

	_, ok := c.SearchDue(first)
	require.False(t, ok)

	req, ok := c.SearchDue(second)
	require.True(t, ok)
	require.Equal(t, "123", req.Params.Search)
	require.Equal(t, 1, req.Params.Page)
	require.Equal(t, DefaultDebounce, c.Debounce())
}

func TestApplyDropsStaleResponses(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	old := c.Load()
	fresh := c.LoadPage(2)

	require.False(t, c.Apply(old.Seq, api.OrderPage{Total: 999, TotalPages: 10}))
	require.True(t, c.Apply(fresh.Seq, api.OrderPage{Total: 150, TotalPages: 2}))
	require.Equal(t, 150, c.Total())

	_, ok := c.Next()
	require.False(t, ok)
	prev, ok := c.Prev()
	require.True(t, ok)
	require.Equal(t, 1, prev.Params.Page)
	_, ok = c.Prev()
	require.False(t, ok)
}

func TestReset(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	tok := c.Type("abc")
	c.SetStore("Shopee")
	c.SetMarketplace("Tray")
	req := c.Reset()

	require.Equal(t, "page=1&per_page=100&status=aberto", req.Params.Encode())
	_, ok := c.SearchDue(tok)
	require.False(t, ok)
}

func TestSyncKeepsMarketplaceOnly(t *testing.T) {
	t.Parallel()

	c := New(OpenOrders(100, false))
	c.SetMarketplace("Shopee")
	c.SetStore("Loja 2")
	c.LoadPage(3)
	req := c.Sync()

	require.Equal(t, "marketplace=Shopee&status=aberto&sincronizar=1", req.Params.Encode())
	require.True(t, c.Current(req.Seq))
	require.Equal(t, 3, c.Query().Page)
}
