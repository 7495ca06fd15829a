package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/logging"
	"github.com/jask/despacho/internal/packaging"
)

// Standard boxes are not offered when correcting a finalized order.
var correctionExcluded = map[string]bool{
	"Caixa G":  true,
	"Caixa M":  true,
	"Caixa P":  true,
	"Envelope": true,
}

// CorrectionDraft is the form for correcting a finalized order. Blank fields
// are left untouched on the backend.
type CorrectionDraft struct {
	OrderNumber  string
	Marketplace  string
	Freight      string
	Weight       string
	Carrier      string
	TrackingCode string
	ShippingCost string
	Packages     *packaging.Editor
	Catalog      []api.Package
	Notice       Notice
}

func (d *CorrectionDraft) clone() CorrectionDraft {
	out := *d
	if d.Packages != nil {
		out.Packages = d.Packages.Clone()
	}
	out.Catalog = append([]api.Package(nil), d.Catalog...)
	return out
}

func (d *CorrectionDraft) request(lines []api.PackageLine) api.EditFinalizedRequest {
	req := api.EditFinalizedRequest{
		Packages:     lines,
		Marketplace:  optional(d.Marketplace),
		Carrier:      optional(d.Carrier),
		TrackingCode: optional(d.TrackingCode),
	}
	if v := ParseMoney(d.Freight); v.Valid {
		req.Freight = &v.Decimal
	}
	if v := ParseMoney(d.Weight); v.Valid {
		req.Weight = &v.Decimal
	}
	if v := ParseMoney(d.ShippingCost); v.Valid {
		req.ShippingCost = &v.Decimal
	}
	return req
}

// Correction edits one finalized order. It has no reservation and no lookup
// precondition, only the package requirement.
type Correction struct {
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	draft   *CorrectionDraft
	session string
	open    bool
}

func NewCorrection(b Backend, log *slog.Logger) *Correction {
	if log == nil {
		log = logging.Discard()
	}
	return &Correction{backend: b, log: log, draft: &CorrectionDraft{}}
}

func (c *Correction) Snapshot() (bool, CorrectionDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open, c.draft.clone()
}

// Open loads the order and the full catalog. A failed load still opens the form
// with one empty package row.
func (c *Correction) Open(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return apperr.InvalidErr("Nenhum pedido selecionado.", nil)
	}
	sid := uuid.NewString()
	c.mu.Lock()
	c.session, c.open = sid, true
	c.draft = &CorrectionDraft{OrderNumber: number, Packages: packaging.NewEditor(nil)}
	c.mu.Unlock()

	var (
		order   api.Order
		catalog []api.Package
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		order, err = c.backend.OrderDetails(gctx, number)
		return err
	})
	g.Go(func() (err error) {
		catalog, err = c.backend.Packages(gctx, "")
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sid {
		return ErrStale
	}
	if err != nil {
		c.draft.Notice = Notice{Level: NoticeError, Text: apperr.PublicMessage(err)}
		c.log.LogAttrs(ctx, slog.LevelWarn, "correction_load_failed", slog.String("order", number), slog.String("error", err.Error()))
		return err
	}
	for _, p := range catalog {
		if !correctionExcluded[strings.TrimSpace(p.Name)] {
			c.draft.Catalog = append(c.draft.Catalog, p)
		}
	}
	c.draft.Marketplace = order.Marketplace
	c.draft.Freight = decimalText(order.Freight)
	c.draft.Weight = decimalText(order.Weight)
	c.draft.Carrier = order.Carrier
	c.draft.TrackingCode = order.TrackingCode
	c.draft.ShippingCost = decimalText(order.ShippingCost)
	c.draft.Packages = packaging.FromOrder(order)
	return nil
}

func (c *Correction) Edit(fn func(d *CorrectionDraft)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	number := c.draft.OrderNumber
	fn(c.draft)
	c.draft.OrderNumber = number
}

// SyncTracking pulls the tracking code from Bling into the form.
func (c *Correction) SyncTracking(ctx context.Context) (Notice, error) {
	c.mu.Lock()
	sid, number := c.session, c.draft.OrderNumber
	c.mu.Unlock()

	res, err := c.backend.SyncTracking(ctx, number)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sid {
		return Notice{}, ErrStale
	}
	switch {
	case err != nil:
		c.draft.Notice = Notice{Level: NoticeError, Text: apperr.PublicMessage(err)}
	case strings.TrimSpace(res.TrackingCode) != "":
		c.draft.TrackingCode = strings.TrimSpace(res.TrackingCode)
		c.draft.Notice = Notice{Level: NoticeSuccess, Text: "Código de rastreio atualizado com sucesso!"}
	default:
		c.draft.Notice = Notice{Level: NoticeInfo, Text: "Código de rastreio não encontrado no Bling."}
	}
	return c.draft.Notice, err
}

// Save sends the correction. At least one package line is required.
func (c *Correction) Save(ctx context.Context) (api.FinalizeResult, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return api.FinalizeResult{}, apperr.InvalidErr("Nenhum pedido selecionado.", nil)
	}
	lines := c.draft.Packages.Lines()
	if len(lines) == 0 {
		c.draft.Notice = Notice{Level: NoticeError, Text: MsgNoPackages}
		c.mu.Unlock()
		return api.FinalizeResult{}, apperr.InvalidErr(MsgNoPackages, nil)
	}
	sid, number := c.session, c.draft.OrderNumber
	req := c.draft.request(lines)
	c.mu.Unlock()

	res, err := c.backend.EditFinalized(ctx, number, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sid {
		return res, ErrStale
	}
	if err != nil {
		c.draft.Notice = Notice{Level: NoticeError, Text: apperr.PublicMessage(err)}
		return res, err
	}
	c.log.LogAttrs(ctx, slog.LevelInfo, "finalized_order_corrected", slog.String("order", number))
	c.close()
	return res, nil
}

func (c *Correction) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
}

func (c *Correction) close() {
	c.session, c.open = "", false
	c.draft = &CorrectionDraft{}
}
