package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
	"github.com/jask/despacho/internal/packaging"
	"github.com/jask/despacho/internal/workflow"
)

// orderForm is the modal editing one order: finalizing an open order or
// correcting a finalized one.
type orderForm interface {
	kind() modalState
	title() string
	labels() []string
	view() orderView
	set(i int, v string)
	editRows(fn func(e *packaging.Editor))
}

type orderView struct {
	number   string
	state    string
	values   []string
	pkgs     *packaging.Editor
	catalog  []api.Package
	notice   workflow.Notice
	editable bool
	external bool
}

type finalizeForm struct{ wf *workflow.Workflow }

func (f finalizeForm) kind() modalState { return modalFinalize }
func (f finalizeForm) title() string    { return "Finalizar pedido" }

func (f finalizeForm) labels() []string {
	return []string{"Marketplace", "Frete cliente", "Peso (kg)", "Transportadora", "Rastreio", "Observações", "Custo Mandaê"}
}

func (f finalizeForm) view() orderView {
	st, d := f.wf.Snapshot()
	v := orderView{
		number:   d.OrderNumber,
		state:    stateLabel(st, d.Reserved),
		values:   []string{d.Marketplace, d.Freight, d.Weight, d.Carrier, d.TrackingCode, d.Notes, d.ShippingCost},
		pkgs:     d.Packages,
		catalog:  d.Catalog,
		notice:   d.Notice,
		external: d.ExternalInfoFetched,
	}
	switch st {
	case workflow.DetailsLoaded, workflow.ExternalInfoPending, workflow.ReadyToSubmit:
		v.editable = true
	}
	return v
}

func (f finalizeForm) set(i int, v string) {
	_ = f.wf.Edit(func(d *workflow.Draft) {
		switch i {
		case 0:
			d.Marketplace = v
		case 1:
			d.Freight = v
		case 2:
			d.Weight = v
		case 3:
			d.Carrier = v
		case 4:
			d.TrackingCode = v
		case 5:
			d.Notes = v
		case 6:
			d.ShippingCost = v
		}
	})
}

func (f finalizeForm) editRows(fn func(e *packaging.Editor)) {
	_ = f.wf.Edit(func(d *workflow.Draft) {
		if d.Packages == nil {
			d.Packages = packaging.NewEditor(nil)
		}
		fn(d.Packages)
	})
}

type correctionForm struct{ c *workflow.Correction }

func (f correctionForm) kind() modalState { return modalCorrection }
func (f correctionForm) title() string    { return "Editar pedido finalizado" }

func (f correctionForm) labels() []string {
	return []string{"Marketplace", "Frete cliente", "Peso (kg)", "Transportadora", "Rastreio", "Custo Mandaê"}
}

func (f correctionForm) view() orderView {
	open, d := f.c.Snapshot()
	return orderView{
		number:   d.OrderNumber,
		values:   []string{d.Marketplace, d.Freight, d.Weight, d.Carrier, d.TrackingCode, d.ShippingCost},
		pkgs:     d.Packages,
		catalog:  d.Catalog,
		notice:   d.Notice,
		editable: open,
		external: true,
	}
}

func (f correctionForm) set(i int, v string) {
	f.c.Edit(func(d *workflow.CorrectionDraft) {
		switch i {
		case 0:
			d.Marketplace = v
		case 1:
			d.Freight = v
		case 2:
			d.Weight = v
		case 3:
			d.Carrier = v
		case 4:
			d.TrackingCode = v
		case 5:
			d.ShippingCost = v
		}
	})
}

func (f correctionForm) editRows(fn func(e *packaging.Editor)) {
	f.c.Edit(func(d *workflow.CorrectionDraft) {
		if d.Packages == nil {
			d.Packages = packaging.NewEditor(nil)
		}
		fn(d.Packages)
	})
}

func stateLabel(st workflow.State, reserved bool) string {
	var s string
	switch st {
	case workflow.Reserving:
		s = "reservando"
	case workflow.Reserved:
		s = "carregando"
	case workflow.DetailsLoaded:
		s = "aguardando consulta ao Bling"
	case workflow.ExternalInfoPending:
		s = "consultando Bling"
	case workflow.ReadyToSubmit:
		s = "pronto para finalizar"
	case workflow.Submitting:
		s = "finalizando"
	default:
		return "fechado"
	}
	if reserved {
		s += " · reservado para você"
	}
	return s
}

func (a *App) startOrderForm(of orderForm) {
	a.modal = of.kind()
	a.of = of
	a.ofForm = newForm(of.labels()...)
	a.ofRow, a.qtyBuf, a.ofBusy = -1, "", true
}

func (a *App) openFinalize(number string) tea.Cmd {
	if a.svc.Finalize == nil {
		return nil
	}
	a.startOrderForm(finalizeForm{a.svc.Finalize})
	wf, ctx := a.svc.Finalize, a.reqCtx()
	return func() tea.Msg {
		return workflowResultMsg{op: "open", err: wf.Open(ctx, number)}
	}
}

func (a *App) openCorrection(number string) tea.Cmd {
	if a.svc.Correction == nil {
		return nil
	}
	a.startOrderForm(correctionForm{a.svc.Correction})
	c, ctx := a.svc.Correction, a.reqCtx()
	return func() tea.Msg {
		return workflowResultMsg{op: "open", err: c.Open(ctx, number)}
	}
}

// refreshOrderForm copies the draft into the inputs, leaving the field being
// typed in alone.
func (a *App) refreshOrderForm() {
	if a.of == nil || a.ofForm == nil {
		return
	}
	v := a.of.view()
	for i, val := range v.values {
		if i == a.ofForm.Focused() && a.ofRow < 0 && a.ofForm.Raw(i) != "" {
			continue
		}
		if a.ofForm.Raw(i) != val {
			a.ofForm.SetValue(i, val)
		}
	}
	if v.pkgs != nil && a.ofRow >= v.pkgs.Len() {
		a.ofRow = v.pkgs.Len() - 1
	}
}

func (a *App) focusField(i int) {
	a.ofRow, a.qtyBuf = -1, ""
	a.ofForm.FocusIndex(i)
}

func (a *App) focusRow(r int) {
	a.ofRow, a.qtyBuf = r, ""
	a.ofForm.FocusIndex(a.ofForm.Len())
}

// moveFocus walks text fields then package rows, wrapping at both ends.
func (a *App) moveFocus(delta int) {
	rows := 1
	if p := a.of.view().pkgs; p != nil {
		rows = p.Len()
	}
	fields := a.ofForm.Len()
	pos := a.ofForm.Focused()
	if a.ofRow >= 0 {
		pos = fields + a.ofRow
	}
	pos = (pos + delta + fields + rows) % (fields + rows)
	if pos < fields {
		a.focusField(pos)
	} else {
		a.focusRow(pos - fields)
	}
}

func (a *App) handleOrderFormKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.String()
	if k == "esc" {
		return a.closeOrderForm()
	}
	if a.ofBusy {
		return a, nil
	}
	v := a.of.view()

	switch k {
	case "tab":
		a.moveFocus(1)
		return a, nil
	case "shift+tab":
		a.moveFocus(-1)
		return a, nil
	case "ctrl+s":
		return a.submitOrderForm(v)
	case "ctrl+b":
		if wf, ok := a.finalizeWorkflow(); ok {
			a.ofBusy = true
			ctx := a.reqCtx()
			return a, func() tea.Msg {
				_, err := wf.FetchExternal(ctx)
				return workflowResultMsg{op: "external", err: err}
			}
		}
		return a, nil
	case "ctrl+r":
		if wf, ok := a.finalizeWorkflow(); ok && wf.State() == workflow.Reserved {
			a.ofBusy = true
			return a, func() tea.Msg {
				return workflowResultMsg{op: "reload", err: wf.Reload()}
			}
		}
		return a, nil
	case "ctrl+t":
		if cf, ok := a.of.(correctionForm); ok {
			a.ofBusy = true
			ctx := a.reqCtx()
			return a, func() tea.Msg {
				_, err := cf.c.SyncTracking(ctx)
				return workflowResultMsg{op: "tracking", err: err}
			}
		}
		return a, nil
	}

	if !v.editable {
		return a, nil
	}

	switch k {
	case "ctrl+a":
		var row int
		a.of.editRows(func(e *packaging.Editor) { row = e.Add() })
		a.focusRow(row)
		return a, nil
	case "ctrl+d":
		if a.ofRow >= 0 {
			row := a.ofRow
			a.of.editRows(func(e *packaging.Editor) { e.Remove(row) })
			a.focusRow(max(row-1, 0))
		}
		return a, nil
	}

	if a.ofRow < 0 {
		changed, cmd := a.ofForm.Update(m)
		if changed {
			a.of.set(a.ofForm.Focused(), a.ofForm.Raw(a.ofForm.Focused()))
		}
		return a, cmd
	}
	return a.handleRowKey(k, v)
}

func (a *App) handleRowKey(k string, v orderView) (tea.Model, tea.Cmd) {
	row := a.ofRow
	if v.pkgs == nil {
		return a, nil
	}
	switch {
	case k == "enter":
		a.picker = packaging.NewPicker(v.catalog)
		if r, ok := v.pkgs.Row(row); ok && r.PackageID != 0 {
			a.picker.Focus(r.PackageID)
		}
		a.pickFor = row
		a.modal = modalPicker
	case k == "up":
		a.moveFocus(-1)
	case k == "down":
		a.moveFocus(1)
	case k == "backspace":
		if r := []rune(a.qtyBuf); len(r) > 0 {
			a.qtyBuf = string(r[:len(r)-1])
		}
		buf := a.qtyBuf
		a.of.editRows(func(e *packaging.Editor) { e.SetQuantity(row, buf) })
	case len(k) == 1 && k[0] >= '0' && k[0] <= '9':
		a.qtyBuf += k
		buf := a.qtyBuf
		var got int
		a.of.editRows(func(e *packaging.Editor) { got = e.SetQuantity(row, buf) })
		// the editor clamps; keep the buffer in step with what it stored
		a.qtyBuf = fmt.Sprint(got)
	}
	return a, nil
}

func (a *App) finalizeWorkflow() (*workflow.Workflow, bool) {
	f, ok := a.of.(finalizeForm)
	if !ok {
		return nil, false
	}
	return f.wf, true
}

func (a *App) submitOrderForm(v orderView) (tea.Model, tea.Cmd) {
	ctx := a.reqCtx()
	switch f := a.of.(type) {
	case finalizeForm:
		if err := f.wf.Validate(); err != nil {
			a.setError(err)
			return a, nil
		}
		a.ofBusy = true
		return a, func() tea.Msg {
			res, err := f.wf.Submit(ctx)
			return workflowResultMsg{op: "submit", err: err, msg: res.Message}
		}
	case correctionForm:
		a.ofBusy = true
		rec := a.svc.Recorder
		return a, func() tea.Msg {
			res, err := f.c.Save(ctx)
			if err == nil && rec != nil {
				rec.Record(repository.Entry{Kind: journal.KindEdited, OrderNo: v.number, Message: res.Message})
			}
			return workflowResultMsg{op: "save", err: err, msg: res.Message}
		}
	}
	return a, nil
}

func (a *App) closeOrderForm() (tea.Model, tea.Cmd) {
	switch f := a.of.(type) {
	case finalizeForm:
		if !f.wf.Cancel() {
			a.setStatus("Aguarde a finalização terminar.")
			return a, nil
		}
	case correctionForm:
		f.c.Close()
	}
	a.closeModal()
	return a, nil
}

func (a *App) onWorkflowResult(m workflowResultMsg) (tea.Model, tea.Cmd) {
	if m.op == "add" {
		a.ofBusy = false
		if m.err != nil {
			a.setError(m.err)
			return a, nil
		}
		a.closeModal()
		a.setStatus(m.msg)
		return a, a.fetchOrders(a.open, a.open.ctrl.Load())
	}
	if errors.Is(m.err, workflow.ErrStale) || a.of == nil {
		return a, nil
	}
	a.ofBusy = false
	if errors.Is(m.err, workflow.ErrBusy) {
		a.closeModal()
		a.setError(&apperr.AppError{Kind: apperr.Conflict, PublicMsg: "Já existe um pedido aberto para finalização.", Err: m.err})
		return a, nil
	}
	switch m.op {
	case "submit", "save":
		if m.err != nil {
			a.refreshOrderForm()
			a.setError(m.err)
			return a, nil
		}
		a.closeModal()
		msg := strings.TrimSpace(m.msg)
		if msg == "" {
			msg = workflow.MsgFinalized
		}
		a.setStatus(msg)
		if m.op == "save" {
			return a, a.fetchOrders(a.finalized, a.finalized.ctrl.Load())
		}
		// the order moved from open to finalized; both lists and the totals change
		return a, tea.Batch(
			a.fetchOrders(a.open, a.open.ctrl.Load()),
			a.fetchOrders(a.finalized, a.finalized.ctrl.LoadPage(1)),
			a.loadDashboard(),
		)
	}
	// open, reload, external and tracking report through the notice line
	a.refreshOrderForm()
	if m.op == "open" && m.err == nil {
		a.focusField(0)
	}
	return a, nil
}

func (a *App) handlePickerKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.picker == nil || a.of == nil {
		a.closeModal()
		return a, nil
	}
	res := a.picker.HandleKey(m.String())
	switch res.Action {
	case packaging.PickerActionSelected:
		row, id := a.pickFor, res.Package.ID
		a.of.editRows(func(e *packaging.Editor) { e.SetPackage(row, id) })
		fallthrough
	case packaging.PickerActionCancelled:
		a.picker = nil
		a.modal = a.of.kind()
	}
	return a, nil
}

func (a *App) renderPicker() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Escolher embalagem") + "\n")
	b.WriteString("busca: " + a.picker.Query() + "▏\n\n")
	items := a.picker.Items()
	if len(items) == 0 {
		b.WriteString(dimStyle.Render("Nenhuma embalagem encontrada.") + "\n")
	}
	for i, p := range items {
		line := fmt.Sprintf("  %-24s %10s  estoque %d", truncate(p.Name, 24), a.money(p.UnitCost), p.Stock)
		if i == a.picker.Cursor() {
			line = selectedLine.Render("▶" + line[1:])
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n[enter] Selecionar  [esc] Voltar")
	return b.String()
}

func (a *App) renderOrderForm() string {
	v := a.of.view()
	var b strings.Builder
	title := a.of.title()
	if v.number != "" {
		title += " " + v.number
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	if v.state != "" {
		b.WriteString(dimStyle.Render(v.state) + "\n")
	}
	if t := v.notice.Text; t != "" {
		switch v.notice.Level {
		case workflow.NoticeError:
			b.WriteString(errorStyle.Render(t))
		case workflow.NoticeWarning:
			b.WriteString(warnStyle.Render(t))
		case workflow.NoticeSuccess:
			b.WriteString(okStyle.Render(t))
		default:
			b.WriteString(t)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + a.ofForm.View() + "\n\n")

	b.WriteString(titleStyle.Render("Embalagens") + "\n")
	names := map[int]api.Package{}
	for _, p := range v.catalog {
		names[p.ID] = p
	}
	if v.pkgs != nil {
		for _, r := range v.pkgs.Rows() {
			name := "(selecione)"
			if p, ok := names[r.PackageID]; ok {
				name = p.Name
			} else if r.PackageID != 0 {
				name = fmt.Sprintf("#%d", r.PackageID)
			}
			line := fmt.Sprintf("  %d. %-24s x %d", r.Index+1, truncate(name, 24), r.Quantity)
			if r.Index == a.ofRow {
				line = selectedLine.Render("▶" + line[1:])
			}
			b.WriteString(line + "\n")
		}
		b.WriteString(dimStyle.Render("Custo das embalagens: "+a.money(v.pkgs.Cost(v.catalog))) + "\n")
	}

	b.WriteString("\n")
	if _, ok := a.of.(finalizeForm); ok {
		lookup := "[ctrl+b] Obter informações do pedido"
		if !v.external {
			lookup = warnStyle.Render(lookup)
		}
		b.WriteString(lookup + "  [ctrl+s] Finalizar  [ctrl+r] Recarregar\n")
	} else {
		b.WriteString("[ctrl+t] Sincronizar rastreio  [ctrl+s] Salvar\n")
	}
	b.WriteString("[tab] Campo  [enter] Embalagem  [0-9] Quantidade  [ctrl+a] Adicionar  [ctrl+d] Remover  [esc] Fechar")
	return b.String()
}
