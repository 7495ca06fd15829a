// Package listing holds the query state behind the open and finalized order lists:
// page, store filter, search text and (finalized only) sort order.
package listing

import (
	"strings"
	"time"

	"github.com/jask/despacho/internal/api"
)

const (
	DefaultPerPage  = 100
	DefaultDebounce = 500 * time.Millisecond
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) Flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// Columns the finalized list can be sorted by.
const (
	ColNumber      = "numero_pedido"
	ColMarketplace = "marketplace"
	ColFreight     = "frete_cliente"
	ColWeight      = "peso"
	ColCarrier     = "transportadora"
	ColTracking    = "tracking_code"
	ColFinalizedAt = "data_finalizacao"
)

var SortColumns = []string{ColNumber, ColMarketplace, ColFreight, ColWeight, ColCarrier, ColTracking, ColFinalizedAt}

// Query is the list state a fetch is built from.
type Query struct {
	Page        int
	PerPage     int
	Marketplace string
	Store       string
	Search      string
	OrderBy     string
	Sort        Direction
}

type Options struct {
	// Status is sent as the status filter ("aberto", "finalizado").
	Status   string
	PerPage  int
	Debounce time.Duration
	// Sortable enables ToggleSort; the open list is unsorted.
	Sortable bool
	// FilterResetsPage makes a store filter change jump to page 1. Off keeps the
	// current page, which is how the panel has always behaved.
	FilterResetsPage bool
}

func OpenOrders(perPage int, filterResetsPage bool) Options {
	return Options{Status: "aberto", PerPage: perPage, Debounce: DefaultDebounce, FilterResetsPage: filterResetsPage}
}

func FinalizedOrders(perPage int, filterResetsPage bool) Options {
	return Options{Status: "finalizado", PerPage: perPage, Debounce: DefaultDebounce, Sortable: true, FilterResetsPage: filterResetsPage}
}

// Controller is not safe for concurrent use; it lives on the UI goroutine.
type Controller struct {
	opts Options
	q    Query

	searchToken uint64
	requestSeq  uint64

	total      int
	totalPages int
	lastSync   string
}

func New(opts Options) *Controller {
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	c := &Controller{opts: opts, q: Query{Page: 1, PerPage: opts.PerPage}}
	if opts.Sortable {
		c.q.OrderBy, c.q.Sort = ColFinalizedAt, Desc
	}
	return c
}

func (c *Controller) Query() Query { return c.q }

func (c *Controller) Options() Options { return c.opts }

// SetFilterResetsPage changes how later store filter changes treat the page.
func (c *Controller) SetFilterResetsPage(on bool) { c.opts.FilterResetsPage = on }

// Request is one list fetch. Seq lets the caller drop responses that a newer
// request has superseded.
type Request struct {
	Seq    uint64
	Params api.ListParams
}

// Load builds a fetch for the current state.
func (c *Controller) Load() Request {
	c.requestSeq++
	return Request{Seq: c.requestSeq, Params: c.params()}
}

// LoadPage sets the page (clamped to at least 1) and builds a fetch.
func (c *Controller) LoadPage(page int) Request {
	c.q.Page = max(page, 1)
	return c.Load()
}

func (c *Controller) Next() (Request, bool) {
	if c.totalPages > 0 && c.q.Page >= c.totalPages {
		return Request{}, false
	}
	return c.LoadPage(c.q.Page + 1), true
}

func (c *Controller) Prev() (Request, bool) {
	if c.q.Page <= 1 {
		return Request{}, false
	}
	return c.LoadPage(c.q.Page - 1), true
}

func (c *Controller) params() api.ListParams {
	p := api.ListParams{
		Page:        c.q.Page,
		PerPage:     c.q.PerPage,
		Status:      c.opts.Status,
		Marketplace: c.q.Marketplace,
		Store:       c.q.Store,
		Search:      strings.TrimSpace(c.q.Search),
	}
	if c.opts.Sortable {
		p.OrderBy, p.Sort = c.q.OrderBy, string(c.q.Sort)
	}
	return p
}

// Current reports whether seq is the latest issued request.
func (c *Controller) Current(seq uint64) bool { return seq == c.requestSeq }

// Apply records pagination totals from a response. Stale responses are ignored
// and Apply reports false.
func (c *Controller) Apply(seq uint64, page api.OrderPage) bool {
	if !c.Current(seq) {
		return false
	}
	c.total, c.totalPages, c.lastSync = page.Total, page.TotalPages, page.LastSync
	if c.totalPages == 0 && len(page.Orders) > 0 {
		c.totalPages = 1
	}
	return true
}

func (c *Controller) Total() int { return c.total }

func (c *Controller) TotalPages() int { return c.totalPages }

func (c *Controller) LastSync() string { return c.lastSync }

// Type records new search text and returns a token for the debounce timer. Only
// the token from the latest keystroke is honored by SearchDue.
func (c *Controller) Type(text string) uint64 {
	c.q.Search = text
	c.searchToken++
	return c.searchToken
}

func (c *Controller) Debounce() time.Duration { return c.opts.Debounce }

// SearchDue fires the debounced search. A superseded token yields false. A due
// search restarts from page 1.
func (c *Controller) SearchDue(token uint64) (Request, bool) {
	if token != c.searchToken {
		return Request{}, false
	}
	return c.LoadPage(1), true
}

// SetStore selects a store filter; empty means all stores.
func (c *Controller) SetStore(store string) Request {
	c.q.Store = strings.TrimSpace(store)
	if c.opts.FilterResetsPage {
		return c.LoadPage(1)
	}
	return c.Load()
}

// SetMarketplace narrows the open list to one marketplace submenu.
func (c *Controller) SetMarketplace(mp string) Request {
	c.q.Marketplace = strings.TrimSpace(mp)
	return c.LoadPage(1)
}

// ToggleSort picks a column: a new column sorts descending, the active column
// flips. Either way the list restarts from page 1.
func (c *Controller) ToggleSort(col string) (Request, bool) {
	if !c.opts.Sortable || col == "" {
		return Request{}, false
	}
	if c.q.OrderBy == col {
		c.q.Sort = c.q.Sort.Flip()
	} else {
		c.q.OrderBy, c.q.Sort = col, Desc
	}
	return c.LoadPage(1), true
}

// Sync builds a fetch that makes the backend pull from Bling before listing.
// Only the marketplace filter is kept; the caller reloads with Load afterwards.
func (c *Controller) Sync() Request {
	c.requestSeq++
	return Request{Seq: c.requestSeq, Params: api.ListParams{
		Status:      c.opts.Status,
		Marketplace: c.q.Marketplace,
		Sync:        true,
	}}
}

// Reset clears filters and search and returns to page 1.
func (c *Controller) Reset() Request {
	c.q.Store, c.q.Search, c.q.Marketplace = "", "", ""
	c.searchToken++
	return c.LoadPage(1)
}
