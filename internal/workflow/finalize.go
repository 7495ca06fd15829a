package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/logging"
)

// Backend is the slice of the API client the workflows call; *api.Client satisfies it.
type Backend interface {
	Reserve(ctx context.Context, number string) (api.Reservation, error)
	Release(ctx context.Context, number string) error
	OrderDetails(ctx context.Context, number string) (api.Order, error)
	Packages(ctx context.Context, status string) ([]api.Package, error)
	Stores(ctx context.Context) ([]string, error)
	ExternalInfo(ctx context.Context, number string) (*api.ExternalInfo, error)
	UpdateOrder(ctx context.Context, number string, u api.OrderUpdate) error
	Finalize(ctx context.Context, number string, req api.FinalizeRequest) (api.FinalizeResult, error)
	EditFinalized(ctx context.Context, number string, req api.EditFinalizedRequest) (api.FinalizeResult, error)
	SyncTracking(ctx context.Context, number string) (api.TrackingSync, error)
}

var (
	// ErrStale is returned when a result arrives for a workflow that was closed or
	// reopened in the meantime. The result has been discarded.
	ErrStale = errors.New("workflow: stale result discarded")
	ErrBusy  = errors.New("workflow: another order is open")
)

const (
	MsgExternalRequired = `É obrigatório clicar em "Obter informações do pedido" antes de finalizar.`
	MsgNoPackages       = "Adicione pelo menos uma embalagem."
	MsgNothingFound     = "Nenhuma informação adicional encontrada no Bling para este pedido."
	MsgFinalized        = "Pedido finalizado com sucesso."
)

// releaseTimeout bounds the best-effort reservation release on close.
const releaseTimeout = 10 * time.Second

// Change is sent to subscribers after every transition.
type Change struct {
	Transition
	OrderNumber string
	Session     string
	Reserved    bool
	Notice      Notice
}

// Workflow finalizes one order at a time. Each Open starts a session; results
// that come back after the session ended are dropped.
type Workflow struct {
	backend Backend
	log     *slog.Logger

	mu        sync.Mutex
	machine   Machine
	draft     *Draft
	session   string
	ctx       context.Context
	cancel    context.CancelFunc
	listeners []func(Change)
	released  []func(order string, err error)

	releasing sync.WaitGroup
}

func New(b Backend, log *slog.Logger) *Workflow {
	if log == nil {
		log = logging.Discard()
	}
	return &Workflow{backend: b, log: log, draft: &Draft{}}
}

func (w *Workflow) Subscribe(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// OnRelease registers fn for the outcome of every reservation release.
func (w *Workflow) OnRelease(fn func(order string, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = append(w.released, fn)
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.State()
}

// Snapshot returns a copy of the draft safe to read from the UI.
func (w *Workflow) Snapshot() (State, Draft) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.State(), w.draft.clone()
}

// Session identifies the current open; empty when closed.
func (w *Workflow) Session() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// fire must be called with w.mu held. Listeners run after unlock via the
// returned func.
func (w *Workflow) fire(ev Event) (func(), error) {
	t, err := w.machine.Fire(ev, w.draft)
	if err != nil {
		return func() {}, err
	}
	c := Change{
		Transition:  t,
		OrderNumber: w.draft.OrderNumber,
		Session:     w.session,
		Reserved:    w.draft.Reserved,
		Notice:      w.draft.Notice,
	}
	listeners := append([]func(Change){}, w.listeners...)
	return func() {
		w.log.Debug("workflow_transition",
			slog.String("order", c.OrderNumber),
			slog.String("from", t.From.String()),
			slog.String("event", t.Event.String()),
			slog.String("to", t.To.String()))
		for _, fn := range listeners {
			fn(c)
		}
	}, nil
}

// Open reserves the order and loads the form. A refused reservation only adds a
// warning; the load still runs.
func (w *Workflow) Open(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return apperr.InvalidErr("Nenhum pedido selecionado.", nil)
	}

	w.mu.Lock()
	if w.machine.State() != Closed {
		w.mu.Unlock()
		return ErrBusy
	}
	sid := uuid.NewString()
	sctx, cancel := context.WithCancel(ctx)
	w.session, w.ctx, w.cancel = sid, sctx, cancel
	w.draft = &Draft{OrderNumber: number, Notice: Notice{Level: NoticeInfo, Text: "Reservando pedido..."}}
	notify, err := w.fire(EvOpen)
	w.mu.Unlock()
	if err != nil {
		cancel()
		return err
	}
	notify()

	_, rerr := w.backend.Reserve(sctx, number)

	w.mu.Lock()
	if w.session != sid {
		w.mu.Unlock()
		if rerr == nil {
			// granted after the operator already closed; give it back
			w.releaseAsync(number)
		}
		return ErrStale
	}
	w.draft.Reserved = rerr == nil
	if rerr != nil {
		w.draft.Notice = Notice{Level: NoticeWarning, Text: apperr.PublicMessage(rerr)}
		w.log.LogAttrs(ctx, slog.LevelWarn, "reserve_failed", slog.String("order", number), slog.String("error", rerr.Error()))
	} else {
		w.draft.Notice = Notice{}
	}
	notify, err = w.fire(EvReserveDone)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	return w.load(sctx, sid, number)
}

// Reload retries the form load after a failure.
func (w *Workflow) Reload() error {
	w.mu.Lock()
	if w.machine.State() != Reserved || w.session == "" {
		st := w.machine.State()
		w.mu.Unlock()
		return &InvalidTransitionError{State: st, Event: EvLoaded}
	}
	sid, sctx, number := w.session, w.ctx, w.draft.OrderNumber
	w.mu.Unlock()
	return w.load(sctx, sid, number)
}

// requestContext is cancelled when either ctx or the session context is done.
func requestContext(ctx, session context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(session, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func (w *Workflow) load(ctx context.Context, sid, number string) error {
	var (
		order   api.Order
		catalog []api.Package
		stores  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		order, err = w.backend.OrderDetails(gctx, number)
		return err
	})
	g.Go(func() (err error) {
		catalog, err = w.backend.Packages(gctx, "ativo")
		return err
	})
	g.Go(func() (err error) {
		stores, err = w.backend.Stores(gctx)
		return err
	})
	lerr := g.Wait()

	w.mu.Lock()
	if w.session != sid {
		w.mu.Unlock()
		return ErrStale
	}
	var (
		notify func()
		err    error
	)
	if lerr != nil {
		w.draft.Notice = Notice{Level: NoticeError, Text: "Erro ao carregar dados do pedido. " + apperr.PublicMessage(lerr)}
		notify, err = w.fire(EvLoadFailed)
	} else {
		w.draft.prefill(order, catalog, stores)
		notify, err = w.fire(EvLoaded)
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return lerr
}

// FetchExternal runs the Bling lookup. It is the only way to satisfy the
// precondition for submitting, and it does so even when the lookup finds nothing.
func (w *Workflow) FetchExternal(ctx context.Context) (Notice, error) {
	w.mu.Lock()
	sid, sctx, number := w.session, w.ctx, w.draft.OrderNumber
	notify, err := w.fire(EvFetchExternal)
	if err == nil {
		w.draft.Notice = Notice{Level: NoticeInfo, Text: "Buscando detalhes do pedido no Bling..."}
	}
	w.mu.Unlock()
	if err != nil {
		return Notice{}, err
	}
	notify()

	rctx, done := requestContext(ctx, sctx)
	info, ferr := w.backend.ExternalInfo(rctx, number)
	done()

	w.mu.Lock()
	if w.session != sid {
		w.mu.Unlock()
		return Notice{}, ErrStale
	}
	if ferr != nil {
		w.draft.Notice = Notice{Level: NoticeError, Text: "Erro ao buscar informações do Bling: " + apperr.PublicMessage(ferr)}
		notify, err = w.fire(EvExternalFailed)
	} else {
		w.draft.ExternalInfoFetched = true
		filled := w.draft.applyExternal(info)
		if len(filled) > 0 {
			w.draft.Notice = Notice{Level: NoticeSuccess, Text: "Informações obtidas do Bling: " + strings.Join(filled, ", ") + "."}
		} else {
			w.draft.Notice = Notice{Level: NoticeInfo, Text: MsgNothingFound}
		}
		notify, err = w.fire(EvExternalFetched)
	}
	n := w.draft.Notice
	w.mu.Unlock()
	if err != nil {
		return n, err
	}
	notify()
	if ferr != nil {
		return n, ferr
	}
	return n, nil
}

// Edit mutates the draft form fields. The order number and the lookup flag are
// owned by the workflow and survive fn.
func (w *Workflow) Edit(fn func(d *Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.machine.State() {
	case DetailsLoaded, ExternalInfoPending, ReadyToSubmit:
	default:
		return &InvalidTransitionError{State: w.machine.State(), Event: EvLoaded}
	}
	number, fetched, reserved := w.draft.OrderNumber, w.draft.ExternalInfoFetched, w.draft.Reserved
	fn(w.draft)
	w.draft.OrderNumber, w.draft.ExternalInfoFetched, w.draft.Reserved = number, fetched, reserved
	return nil
}

// Validate checks the client-side preconditions for submitting.
func (w *Workflow) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.validate()
	return err
}

// validate must be called with w.mu held.
func (w *Workflow) validate() ([]api.PackageLine, error) {
	if !w.draft.ExternalInfoFetched {
		return nil, apperr.InvalidErr(MsgExternalRequired, nil)
	}
	if w.draft.Packages == nil {
		return nil, apperr.InvalidErr(MsgNoPackages, nil)
	}
	lines := w.draft.Packages.Lines()
	if len(lines) == 0 {
		return nil, apperr.InvalidErr(MsgNoPackages, nil)
	}
	return lines, nil
}

// Submit updates the order fields and then finalizes it. The two calls are not
// atomic: if the second fails the order keeps the updated fields and stays
// reserved, and the operator submits again.
func (w *Workflow) Submit(ctx context.Context) (api.FinalizeResult, error) {
	w.mu.Lock()
	if w.machine.State() == Closed {
		w.mu.Unlock()
		return api.FinalizeResult{}, &InvalidTransitionError{State: Closed, Event: EvSubmit}
	}
	lines, verr := w.validate()
	if verr != nil {
		w.draft.Notice = Notice{Level: NoticeError, Text: apperr.PublicMessage(verr)}
		w.mu.Unlock()
		return api.FinalizeResult{}, verr
	}
	sid, sctx, number := w.session, w.ctx, w.draft.OrderNumber
	update := w.draft.orderUpdate()
	req := w.draft.finalizeRequest(lines)
	notify, err := w.fire(EvSubmit)
	w.mu.Unlock()
	if err != nil {
		return api.FinalizeResult{}, err
	}
	notify()

	rctx, done := requestContext(ctx, sctx)
	defer done()
	if err := w.backend.UpdateOrder(rctx, number, update); err != nil {
		return api.FinalizeResult{}, w.submitFailed(sid, "update", err)
	}
	res, err := w.backend.Finalize(rctx, number, req)
	if err != nil {
		return api.FinalizeResult{}, w.submitFailed(sid, "finalize", err)
	}

	w.mu.Lock()
	if w.session != sid {
		w.mu.Unlock()
		return res, ErrStale
	}
	// the backend drops the reservation as part of finalizing
	w.draft.Reserved = false
	w.draft.Notice = Notice{Level: NoticeSuccess, Text: MsgFinalized}
	notify, err = w.fire(EvSubmitted)
	w.endSession()
	w.mu.Unlock()
	if err != nil {
		return res, err
	}
	notify()
	w.log.LogAttrs(ctx, slog.LevelInfo, "order_finalized", slog.String("order", number), slog.Int("packages", len(lines)))
	return res, nil
}

func (w *Workflow) submitFailed(sid, step string, cause error) error {
	w.mu.Lock()
	if w.session != sid {
		w.mu.Unlock()
		return ErrStale
	}
	w.draft.Notice = Notice{Level: NoticeError, Text: apperr.PublicMessage(cause)}
	number := w.draft.OrderNumber
	notify, err := w.fire(EvSubmitFailed)
	w.mu.Unlock()
	w.log.LogAttrs(context.Background(), slog.LevelWarn, "finalize_failed",
		slog.String("order", number), slog.String("step", step), slog.String("error", cause.Error()))
	if err == nil {
		notify()
	}
	return cause
}

// Cancel closes the workflow and returns without waiting on the network. A held
// reservation is released in the background on a best-effort basis; a failed
// release is logged and otherwise ignored. Cancel is refused while a submission
// is in flight.
func (w *Workflow) Cancel() bool {
	w.mu.Lock()
	if w.machine.State() == Closed {
		w.mu.Unlock()
		return true
	}
	if !w.machine.Can(EvCancel, w.draft) {
		w.mu.Unlock()
		return false
	}
	number, reserved := w.draft.OrderNumber, w.draft.Reserved
	notify, _ := w.fire(EvCancel)
	w.endSession()
	w.draft = &Draft{}
	w.mu.Unlock()
	notify()

	if reserved {
		w.releaseAsync(number)
	}
	return true
}

// Wait blocks until every release started by Cancel has finished.
func (w *Workflow) Wait() {
	w.releasing.Wait()
}

func (w *Workflow) releaseAsync(number string) {
	w.releasing.Add(1)
	go func() {
		defer w.releasing.Done()
		w.release(number)
	}()
}

// endSession must be called with w.mu held.
func (w *Workflow) endSession() {
	if w.cancel != nil {
		w.cancel()
	}
	w.session, w.ctx, w.cancel = "", nil, nil
}

func (w *Workflow) release(number string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := w.backend.Release(ctx, number)
	if err != nil {
		w.log.LogAttrs(ctx, slog.LevelWarn, "release_failed", slog.String("order", number), slog.String("error", err.Error()))
	} else {
		w.log.LogAttrs(ctx, slog.LevelInfo, "reservation_released", slog.String("order", number))
	}
	w.mu.Lock()
	hooks := append([]func(string, error){}, w.released...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn(number, err)
	}
}
