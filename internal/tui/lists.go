package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/listing"
	"github.com/jask/despacho/internal/workflow"
)

func (a *App) handleListKey(l *orderList, m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Up):
		if l.cursor > 0 {
			l.cursor--
		}
		return a, nil
	case key.Matches(m, a.keys.Down):
		if l.cursor < len(l.orders)-1 {
			l.cursor++
		}
		return a, nil
	case key.Matches(m, a.keys.Next):
		if req, ok := l.ctrl.Next(); ok {
			l.cursor = 0
			return a, a.fetchOrders(l, req)
		}
		return a, nil
	case key.Matches(m, a.keys.Prev):
		if req, ok := l.ctrl.Prev(); ok {
			l.cursor = 0
			return a, a.fetchOrders(l, req)
		}
		return a, nil
	case key.Matches(m, a.keys.Search):
		l.searching = true
		return a, l.search.Focus()
	case key.Matches(m, a.keys.Store):
		a.openStoreChooser(l, false)
		return a, nil
	case key.Matches(m, a.keys.Clear):
		l.search.SetValue("")
		l.cursor = 0
		return a, a.fetchOrders(l, l.ctrl.Reset())
	}

	if l.id == pageOpen {
		return a.handleOpenKey(l, m)
	}
	return a.handleFinalizedKey(l, m)
}

func (a *App) handleOpenKey(l *orderList, m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "enter":
		o, ok := l.selected()
		if !ok {
			return a, nil
		}
		return a, a.openFinalize(o.Number)
	case "e":
		o, ok := l.selected()
		if !ok {
			return a, nil
		}
		a.openEditOrder(o)
	case "m":
		a.openStoreChooser(l, true)
	case "s":
		return a, a.syncCmd()
	case "a":
		a.modal = modalAddOrder
		a.addForm = newForm("ID no Bling", "Número do pedido", "Marketplace", "Frete (R$)")
		a.addBling = nil
	case "t":
		return a, a.batchTrackingCmd()
	case "u":
		a.modal = modalUpload
		a.upForm = newForm("Arquivo")
	case "d":
		o, ok := l.selected()
		if !ok {
			return a, nil
		}
		a.askConfirm("Excluir pedido?", "O pedido "+o.Number+" será removido do painel.", a.deleteOrderCmd(o.Number))
	}
	return a, nil
}

func (a *App) handleFinalizedKey(l *orderList, m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "enter", "e":
		o, ok := l.selected()
		if !ok {
			return a, nil
		}
		return a, a.openCorrection(o.Number)
	case "[":
		l.sortCol = (l.sortCol + len(listing.SortColumns) - 1) % len(listing.SortColumns)
	case "]":
		l.sortCol = (l.sortCol + 1) % len(listing.SortColumns)
	case "o":
		if req, ok := l.ctrl.ToggleSort(listing.SortColumns[l.sortCol]); ok {
			l.cursor = 0
			return a, a.fetchOrders(l, req)
		}
	case "w":
		return a, a.exportFinalizedCmd()
	}
	return a, nil
}

func (a *App) handleSearchKey(l *orderList, m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc", "enter":
		l.searching = false
		l.search.Blur()
		return a, nil
	}
	before := l.search.Value()
	var cmd tea.Cmd
	l.search, cmd = l.search.Update(m)
	if l.search.Value() == before {
		return a, cmd
	}
	return a, tea.Batch(cmd, a.debounceSearch(l))
}

func (a *App) openStoreChooser(l *orderList, marketplace bool) {
	a.modal = modalStore
	a.storeCursor = 0
	current := l.ctrl.Query().Store
	switch {
	case marketplace:
		a.storeTarget = storeMarketplace
		current = l.ctrl.Query().Marketplace
	case l.id == pageOpen:
		a.storeTarget = storeOpenFilter
	default:
		a.storeTarget = storeFinalizedFilter
	}
	for i, s := range a.stores {
		if s == current {
			a.storeCursor = i + 1
		}
	}
}

func (a *App) handleStoreKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc":
		a.closeModal()
	case "up", "k":
		if a.storeCursor > 0 {
			a.storeCursor--
		}
	case "down", "j":
		if a.storeCursor < len(a.stores) {
			a.storeCursor++
		}
	case "enter":
		choice := ""
		if a.storeCursor > 0 && a.storeCursor <= len(a.stores) {
			choice = a.stores[a.storeCursor-1]
		}
		target := a.storeTarget
		a.closeModal()
		switch target {
		case storeMarketplace:
			return a, a.fetchOrders(a.open, a.open.ctrl.SetMarketplace(choice))
		case storeOpenFilter:
			return a, a.fetchOrders(a.open, a.open.ctrl.SetStore(choice))
		default:
			return a, a.fetchOrders(a.finalized, a.finalized.ctrl.SetStore(choice))
		}
	}
	return a, nil
}

func (a *App) renderStoreChooser() string {
	title := "Filtrar por loja"
	if a.storeTarget == storeMarketplace {
		title = "Pedidos por marketplace"
	}
	out := titleStyle.Render(title) + "\n"
	options := append([]string{"Todas"}, a.stores...)
	for i, opt := range options {
		marker := " "
		if i == a.storeCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s %s\n", marker, opt)
	}
	return out + "[enter] Selecionar  [esc] Cancelar"
}

func (a *App) handleAddOrderKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.ofBusy {
		return a, nil
	}
	switch m.String() {
	case "esc":
		a.closeModal()
		return a, nil
	case "tab", "down":
		a.addForm.FocusIndex((a.addForm.Focused() + 1) % a.addForm.Len())
		return a, nil
	case "shift+tab", "up":
		a.addForm.FocusIndex((a.addForm.Focused() + a.addForm.Len() - 1) % a.addForm.Len())
		return a, nil
	case "ctrl+b":
		id := a.addForm.Value(0)
		if id == "" {
			a.setError(apperr.InvalidErr("Informe o ID do pedido no Bling.", nil))
			return a, nil
		}
		a.ofBusy = true
		a.setStatus("Buscando pedido no Bling...")
		return a, a.lookupBlingCmd(id)
	case "enter":
		if a.addForm.Focused() == 0 && a.addBling == nil && a.addForm.Value(0) != "" {
			a.ofBusy = true
			a.setStatus("Buscando pedido no Bling...")
			return a, a.lookupBlingCmd(a.addForm.Value(0))
		}
		o, err := a.newOrderFromForm()
		if err != nil {
			a.setError(err)
			return a, nil
		}
		a.ofBusy = true
		return a, a.createOrderCmd(o)
	}
	_, cmd := a.addForm.Update(m)
	return a, cmd
}

func (a *App) newOrderFromForm() (api.NewOrder, error) {
	number, marketplace := a.addForm.Value(1), a.addForm.Value(2)
	if number == "" || marketplace == "" {
		return api.NewOrder{}, apperr.InvalidErr("Número do pedido e marketplace são obrigatórios.", nil)
	}
	o := api.NewOrder{Number: number, Marketplace: marketplace, Freight: decimal.Zero}
	if v := workflow.ParseMoney(a.addForm.Value(3)); v.Valid {
		o.Freight = v.Decimal
	}
	if b := a.addBling; b != nil {
		o.BlingID = b.BlingID.String()
		o.StoreID = b.StoreID.String()
		o.StoreNumber = b.StoreNumber.String()
	}
	return o, nil
}

func (a *App) onBlingLookup(m blingLookupMsg) (tea.Model, tea.Cmd) {
	a.ofBusy = false
	if a.modal != modalAddOrder {
		return a, nil
	}
	if m.err != nil {
		a.setError(m.err)
		return a, nil
	}
	b := m.order
	a.addBling = &b
	a.addForm.SetValue(1, b.Number.String())
	mp := b.Marketplace
	if mp == "" {
		mp = b.StoreName
	}
	a.addForm.SetValue(2, mp)
	if b.Freight.Valid {
		a.addForm.SetValue(3, b.Freight.Decimal.StringFixed(2))
	}
	a.addForm.FocusIndex(1)
	a.setStatus("Pedido encontrado. Confira os dados e confirme.")
	return a, nil
}

func (a *App) renderAddOrder() string {
	out := titleStyle.Render("Adicionar pedido") + "\n" + a.addForm.View()
	if b := a.addBling; b != nil {
		out += "\n\n" + dimStyle.Render(fmt.Sprintf("Bling: loja %s  transportadora %s  rastreio %s",
			orDash(b.StoreName), orDash(b.Carrier), orDash(b.TrackingCode)))
	}
	return out + "\n\n[ctrl+b] Buscar no Bling  [enter] Adicionar  [esc] Cancelar"
}

func (a *App) openEditOrder(o api.Order) {
	a.modal = modalEditOrder
	a.editNumber = o.Number
	a.editForm = newForm("Marketplace", "Frete cliente", "Peso (kg)", "Transportadora", "Rastreio")
	a.editForm.SetValue(0, o.Marketplace)
	if o.Freight.Valid {
		a.editForm.SetValue(1, o.Freight.Decimal.String())
	}
	if o.Weight.Valid {
		a.editForm.SetValue(2, o.Weight.Decimal.String())
	}
	a.editForm.SetValue(3, o.Carrier)
	a.editForm.SetValue(4, o.TrackingCode)
}

func (a *App) handleEditOrderKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := a.editForm
	switch m.String() {
	case "esc":
		a.closeModal()
		return a, nil
	case "tab", "down":
		f.FocusIndex((f.Focused() + 1) % f.Len())
		return a, nil
	case "shift+tab", "up":
		f.FocusIndex((f.Focused() + f.Len() - 1) % f.Len())
		return a, nil
	case "enter":
		if f.Value(0) == "" {
			a.setError(apperr.InvalidErr("Marketplace é obrigatório.", map[string]string{"marketplace": "obrigatório"}))
			return a, nil
		}
		u := api.OrderUpdate{
			Marketplace: f.Value(0),
			Freight:     workflow.ParseMoney(f.Value(1)).Decimal,
			Weight:      workflow.ParseMoney(f.Value(2)),
		}
		if v := f.Value(3); v != "" {
			u.Carrier = &v
		}
		if v := f.Value(4); v != "" {
			u.TrackingCode = &v
		}
		number := a.editNumber
		a.closeModal()
		return a, a.updateOrderCmd(number, u)
	}
	_, cmd := f.Update(m)
	return a, cmd
}

func (a *App) handleUploadKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc":
		a.closeModal()
		return a, nil
	case "enter":
		path := a.upForm.Value(0)
		a.closeModal()
		return a, a.uploadCmd(path)
	}
	_, cmd := a.upForm.Update(m)
	return a, cmd
}

func (a *App) renderList(l *orderList) string {
	q := l.ctrl.Query()
	title := "Pedidos em aberto"
	if l.id == pageFinalized {
		title = "Pedidos finalizados"
	}
	if q.Marketplace != "" {
		title += " - " + q.Marketplace
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n")

	var filters []string
	if q.Store != "" {
		filters = append(filters, "loja: "+q.Store)
	}
	if l.id == pageFinalized {
		col := listing.SortColumns[l.sortCol]
		label := "ordem: " + columnLabel(q.OrderBy) + " " + string(q.Sort)
		if col != q.OrderBy {
			label += "  (coluna: " + columnLabel(col) + ")"
		}
		filters = append(filters, label)
	}
	if sync := l.ctrl.LastSync(); sync != "" && l.id == pageOpen {
		filters = append(filters, "última sincronização: "+sync)
	}
	if len(filters) > 0 {
		b.WriteString(dimStyle.Render(strings.Join(filters, "  ·  ")) + "\n")
	}
	if l.searching || l.search.Value() != "" {
		b.WriteString(l.search.View() + "\n")
	}
	b.WriteString("\n")

	switch {
	case l.loading && len(l.orders) == 0:
		b.WriteString("Carregando...\n")
	case len(l.orders) == 0:
		b.WriteString("Nenhum pedido encontrado.\n")
	default:
		for i, o := range l.orders {
			marker := " "
			if i == l.cursor {
				marker = "▶"
			}
			line := fmt.Sprintf("%s %-14s %-16s %10s  %-18s %-20s", marker, o.Number, truncate(o.Store(), 16),
				a.moneyNull(o.Freight), truncate(orDash(o.Carrier), 18), truncate(orDash(o.TrackingCode), 20))
			if l.id == pageFinalized {
				line += "  " + o.FinalizedAt
			} else if o.ReservedBy != nil {
				line += "  " + warnStyle.Render("reservado por "+displayName(*o.ReservedBy))
			}
			if i == l.cursor {
				line = selectedLine.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	total := l.ctrl.TotalPages()
	if total == 0 {
		total = 1
	}
	b.WriteString(fmt.Sprintf("\nPágina %d de %d  (%d pedidos)\n", q.Page, total, l.ctrl.Total()))
	if l.id == pageOpen {
		b.WriteString("[enter] Finalizar  [e] Editar  [m] Marketplace  [s] Sincronizar  [a] Adicionar  [t] Rastreios  [u] Planilha Mandaê  [d] Excluir")
	} else {
		b.WriteString("[enter] Editar  [ [ ] ] Coluna  [o] Ordenar  [w] Exportar Excel")
	}
	return b.String()
}

var columnLabels = map[string]string{
	listing.ColNumber:      "pedido",
	listing.ColMarketplace: "marketplace",
	listing.ColFreight:     "frete",
	listing.ColWeight:      "peso",
	listing.ColCarrier:     "transportadora",
	listing.ColTracking:    "rastreio",
	listing.ColFinalizedAt: "finalização",
}

func columnLabel(col string) string {
	if l, ok := columnLabels[col]; ok {
		return l
	}
	return col
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (a *App) money(d decimal.Decimal) string {
	return a.cfg.UI.CurrencySymbol + " " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func (a *App) moneyNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return a.money(d.Decimal)
}
