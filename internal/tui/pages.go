package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/config"
	"github.com/jask/despacho/internal/workflow"
)

type reportKind int

const (
	reportDaily reportKind = iota
	reportPeriod
	reportChannel
)

func (k reportKind) String() string {
	switch k {
	case reportPeriod:
		return "Período"
	case reportChannel:
		return "Por canal"
	}
	return "Diário"
}

func (a *App) renderLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Despacho · Painel de pedidos") + "\n\n")
	b.WriteString(a.login.View() + "\n\n")
	if a.loginBusy {
		b.WriteString(dimStyle.Render("Entrando...") + "\n")
	}
	b.WriteString("[enter] Entrar  [tab] Próximo campo  [esc] Sair")
	return b.String()
}

// dashboard

func (a *App) handleDashboardKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "g":
		if !a.isAdmin() {
			a.setError(&apperr.AppError{Kind: apperr.Forbidden, PublicMsg: "Apenas administradores podem alterar a meta."})
			return a, nil
		}
		a.modal = modalGoal
		a.goalForm = newForm("Pedidos por dia")
		if a.dashboard != nil && a.dashboard.Accumulated.DailyGoal > 0 {
			a.goalForm.SetValue(0, strconv.Itoa(a.dashboard.Accumulated.DailyGoal))
		}
	case "w":
		return a, a.exportDashboardCmd()
	}
	return a, nil
}

func (a *App) handleGoalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc":
		a.closeModal()
		return a, nil
	case "enter":
		n, err := strconv.Atoi(a.goalForm.Value(0))
		if err != nil || n <= 0 {
			a.setError(apperr.InvalidErr("Meta diária deve ser um número inteiro positivo.", nil))
			return a, nil
		}
		a.closeModal()
		return a, a.setGoalCmd(n)
	}
	_, cmd := a.goalForm.Update(m)
	return a, cmd
}

func (a *App) renderDashboard() string {
	d := a.dashboard
	if d == nil {
		return "Carregando dashboard..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Hoje") + "\n")
	fmt.Fprintf(&b, "Pedidos em aberto: %d\n", d.OpenOrders)
	fmt.Fprintf(&b, "Finalizados hoje: %d (ontem: %d)\n", d.Today.TotalOrders, d.Yesterday.TotalOrders)
	fmt.Fprintf(&b, "Frete cobrado: %s  Frete real: %s\n", a.money(d.Today.Freight), a.money(d.Today.FreightReal))
	fmt.Fprintf(&b, "Custo de embalagens: %s  Resultado: %s\n\n", a.money(d.Today.TotalCost), a.signed(d.Today.NetGain))

	b.WriteString(titleStyle.Render("Mês") + "\n")
	acc := d.Accumulated
	fmt.Fprintf(&b, "Total: %d  Média diária: %s", acc.Total, acc.DailyAverage.StringFixed(1))
	if acc.DailyGoal > 0 {
		fmt.Fprintf(&b, "  Meta: %d/dia (%s%%)", acc.DailyGoal, acc.GoalPercent.StringFixed(0))
	}
	b.WriteString("\n\n")

	width := a.width - 4
	if width <= 0 {
		width = 60
	}
	b.WriteString(renderDailyChart(d.Daily, width) + "\n\n")

	if len(d.Channels) > 0 {
		b.WriteString(titleStyle.Render("Por canal") + "\n")
		for _, c := range d.Channels {
			fmt.Fprintf(&b, "%-18s %5d  frete %12s  real %12s  embalagens %12s  resultado %12s\n",
				truncate(c.Channel, 18), c.Quantity, a.money(c.Freight), a.money(c.FreightReal),
				a.money(c.PackagingCost), a.signed(c.NetGain))
		}
		b.WriteString("\n")
	}

	p := d.Packaging
	b.WriteString(titleStyle.Render("Embalagens") + "\n")
	fmt.Fprintf(&b, "Usadas no mês: %d  Em estoque: %d  Valor no mês: %s\n", p.UsedThisMonth, p.Available, a.money(p.MonthValue))
	for _, u := range p.Breakdown {
		fmt.Fprintf(&b, "  %-24s %5d  %12s\n", truncate(u.Name, 24), u.Quantity, a.money(u.TotalCost))
	}
	b.WriteString("\n[w] Exportar Excel")
	if a.isAdmin() {
		b.WriteString("  [g] Meta diária")
	}
	return b.String()
}

func (a *App) signed(d decimal.Decimal) string {
	s := a.money(d)
	switch d.Sign() {
	case 1:
		return okStyle.Render(s)
	case -1:
		return errorStyle.Render(s)
	}
	return s
}

// packaging

func (a *App) handlePackagingKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "up", "k":
		if a.pkgCursor > 0 {
			a.pkgCursor--
		}
	case "down", "j":
		if a.pkgCursor < len(a.packages)-1 {
			a.pkgCursor++
		}
	case "a":
		a.pkgShowAll = !a.pkgShowAll
		return a, a.loadPackages()
	case "n":
		a.openPackageForm(nil)
	case "enter", "e":
		if a.pkgCursor < len(a.packages) {
			p := a.packages[a.pkgCursor]
			a.openPackageForm(&p)
		}
	case "d":
		if a.pkgCursor < len(a.packages) {
			p := a.packages[a.pkgCursor]
			a.askConfirm("Desativar embalagem?", p.Name+" deixará de aparecer na finalização.", a.deactivatePackageCmd(p))
		}
	}
	return a, nil
}

func (a *App) openPackageForm(p *api.Package) {
	a.modal = modalPackageForm
	a.pkgForm = newForm("Nome", "Custo (R$)", "Altura (cm)", "Largura (cm)", "Comprimento (cm)", "Peso (kg)", "Estoque")
	a.pkgEditing = 0
	if p == nil {
		return
	}
	a.pkgEditing = p.ID
	a.pkgForm.SetValue(0, p.Name)
	a.pkgForm.SetValue(1, p.UnitCost.StringFixed(2))
	a.pkgForm.SetValue(2, formatFloat(p.Height))
	a.pkgForm.SetValue(3, formatFloat(p.Width))
	a.pkgForm.SetValue(4, formatFloat(p.Length))
	if p.Weight != nil {
		a.pkgForm.SetValue(5, formatFloat(*p.Weight))
	}
	a.pkgForm.SetValue(6, strconv.Itoa(p.Stock))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// packageInput reads the form; blank numeric fields are zero and a blank weight
// is left unset.
func (a *App) packageInput() (api.PackageInput, error) {
	f := a.pkgForm
	in := api.PackageInput{Name: f.Value(0)}
	bad := map[string]string{}
	if v := workflow.ParseMoney(f.Value(1)); v.Valid {
		in.Cost = v.Decimal
	} else if f.Value(1) != "" {
		bad["custo"] = "valor inválido"
	}
	for i, dst := range []*float64{&in.Height, &in.Width, &in.Length} {
		v, ok := parseFloat(f.Value(2 + i))
		if !ok {
			bad[strings.ToLower(f.labels[2+i])] = "número inválido"
		}
		*dst = v
	}
	if f.Value(5) != "" {
		w, ok := parseFloat(f.Value(5))
		if !ok {
			bad["peso"] = "número inválido"
		}
		in.Weight = &w
	}
	if f.Value(6) != "" {
		n, err := strconv.Atoi(f.Value(6))
		if err != nil {
			bad["estoque"] = "número inteiro inválido"
		}
		in.Stock = n
	}
	if len(bad) > 0 {
		return in, apperr.InvalidErr("Verifique os campos da embalagem.", bad)
	}
	if err := apperr.Validate("Verifique os campos da embalagem.", in); err != nil {
		return in, err
	}
	return in, nil
}

func (a *App) handlePackageFormKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := a.pkgForm
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
		in, err := a.packageInput()
		if err != nil {
			a.setError(err)
			return a, nil
		}
		id := a.pkgEditing
		a.closeModal()
		return a, a.savePackageCmd(id, in)
	}
	_, cmd := f.Update(m)
	return a, cmd
}

func (a *App) renderPackaging() string {
	var b strings.Builder
	title := "Embalagens ativas"
	if a.pkgShowAll {
		title = "Todas as embalagens"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	if len(a.packages) == 0 {
		b.WriteString("Nenhuma embalagem cadastrada.\n")
	}
	for i, p := range a.packages {
		marker := " "
		if i == a.pkgCursor {
			marker = "▶"
		}
		dims := fmt.Sprintf("%sx%sx%s", formatFloat(p.Height), formatFloat(p.Width), formatFloat(p.Length))
		line := fmt.Sprintf("%s %-24s %10s  %-14s estoque %4d", marker, truncate(p.Name, 24), a.money(p.UnitCost), dims, p.Stock)
		if !p.Active() {
			line += dimStyle.Render("  (inativa)")
		}
		if i == a.pkgCursor {
			line = selectedLine.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n[n] Nova  [enter] Editar  [d] Desativar  [a] Mostrar inativas")
	return b.String()
}

// reports

func (a *App) handleReportsKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "d":
		a.reportKind = reportDaily
		return a, a.runReport()
	case "p":
		a.reportKind = reportPeriod
		return a, a.runReport()
	case "c":
		a.reportKind = reportChannel
		return a, a.runReport()
	case "i":
		a.modal = modalReportRange
		if a.reportKind == reportDaily {
			a.reportForm = newForm("Data")
			a.reportForm.SetValue(0, a.reportDay.Format(time.DateOnly))
		} else {
			a.reportForm = newForm("Início", "Fim")
			a.reportForm.SetValue(0, a.reportStart.Format(time.DateOnly))
			a.reportForm.SetValue(1, a.reportEnd.Format(time.DateOnly))
		}
	case "enter":
		return a, a.runReport()
	case "w":
		return a, a.exportReportCmd()
	}
	return a, nil
}

func (a *App) handleReportRangeKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := a.reportForm
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
		if err := a.applyReportRange(); err != nil {
			a.setError(err)
			return a, nil
		}
		a.closeModal()
		return a, a.runReport()
	}
	_, cmd := f.Update(m)
	return a, cmd
}

func (a *App) applyReportRange() error {
	f := a.reportForm
	parse := func(i int) (time.Time, error) {
		t, err := time.ParseInLocation(time.DateOnly, f.Value(i), time.Local)
		if err != nil {
			return time.Time{}, apperr.InvalidErr("Data inválida: use o formato AAAA-MM-DD.", nil)
		}
		return t, nil
	}
	if a.reportKind == reportDaily {
		d, err := parse(0)
		if err != nil {
			return err
		}
		a.reportDay = d
		return nil
	}
	start, err := parse(0)
	if err != nil {
		return err
	}
	end, err := parse(1)
	if err != nil {
		return err
	}
	if _, err := api.ReportRange(start, end); err != nil {
		return err
	}
	a.reportStart, a.reportEnd = start, end
	return nil
}

func (a *App) renderReports() string {
	var b strings.Builder
	var kinds []string
	for _, k := range []reportKind{reportDaily, reportPeriod, reportChannel} {
		label := k.String()
		if k == a.reportKind {
			label = selectedLine.Render("[" + label + "]")
		}
		kinds = append(kinds, label)
	}
	b.WriteString(strings.Join(kinds, "  ") + "\n")
	if a.reportKind == reportDaily {
		b.WriteString(dimStyle.Render("Dia "+a.reportDay.Format(a.cfg.UI.DateFormat)) + "\n\n")
	} else {
		b.WriteString(dimStyle.Render(fmt.Sprintf("De %s a %s", a.reportStart.Format(a.cfg.UI.DateFormat), a.reportEnd.Format(a.cfg.UI.DateFormat))) + "\n\n")
	}
	if a.reportText == "" {
		b.WriteString("Carregando relatório...\n")
	} else {
		b.WriteString(a.reportText + "\n")
	}
	b.WriteString("\n[d] Diário  [p] Período  [c] Por canal  [i] Datas  [enter] Atualizar  [w] Exportar Excel")
	return b.String()
}

func renderUsage(b *strings.Builder, used []api.PackageUsage, money func(decimal.Decimal) string) {
	if len(used) == 0 {
		return
	}
	b.WriteString("\nEmbalagens utilizadas\n")
	for _, u := range used {
		fmt.Fprintf(b, "  %-24s %5d x %10s = %12s\n", truncate(u.Name, 24), u.Quantity, money(u.UnitCost), money(u.TotalCost))
	}
}

func renderDailyReport(r api.DailyReport, money func(decimal.Decimal) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data: %s\n", r.Date)
	fmt.Fprintf(&b, "Pedidos finalizados: %d\n", r.TotalOrders)
	fmt.Fprintf(&b, "Frete cobrado: %s  Frete real: %s\n", money(r.Freight), money(r.FreightReal))
	fmt.Fprintf(&b, "Custo de embalagens: %s\n", money(r.TotalCost))
	fmt.Fprintf(&b, "Ganhos: %s  Perdas: %s  Margem média: %s%%\n", money(r.Gain), money(r.Loss), r.AvgMargin.StringFixed(1))
	renderUsage(&b, r.PackagesUsed, money)
	return b.String()
}

func renderPeriodReport(r api.PeriodReport, money func(decimal.Decimal) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Período: %s a %s (%d dias)\n", r.Start, r.End, r.Days)
	fmt.Fprintf(&b, "Pedidos finalizados: %d\n", r.TotalOrders)
	fmt.Fprintf(&b, "Frete cobrado: %s  Frete real: %s\n", money(r.Freight), money(r.FreightReal))
	fmt.Fprintf(&b, "Custo de embalagens: %s\n", money(r.TotalCost))
	fmt.Fprintf(&b, "Resultado líquido: %s\n", money(r.NetGain))
	renderUsage(&b, r.PackagesUsed, money)
	return b.String()
}

func renderChannelReport(r api.ChannelReport, money func(decimal.Decimal) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Período: %s a %s\n", r.Start, r.End)
	if len(r.Channels) == 0 {
		b.WriteString("Nenhum pedido finalizado no período.\n")
		return b.String()
	}
	for _, c := range r.Channels {
		fmt.Fprintf(&b, "\n%s: %d pedidos\n", c.Channel, c.TotalOrders)
		fmt.Fprintf(&b, "  Frete %s  Real %s  Embalagens %s  Resultado %s\n",
			money(c.Freight), money(c.FreightReal), money(c.TotalCost), money(c.NetGain))
		for _, u := range c.Boxes {
			fmt.Fprintf(&b, "    %-22s %5d  %12s\n", truncate(u.Name, 22), u.Quantity, money(u.TotalCost))
		}
	}
	return b.String()
}

// settings

func (a *App) handleSettingsKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "p":
		on := !a.cfg.UI.FilterResetsPage
		a.cfg.UI.FilterResetsPage = on
		a.open.ctrl.SetFilterResetsPage(on)
		a.finalized.ctrl.SetFilterResetsPage(on)
		if err := config.Save(a.cfg); err != nil {
			a.setError(err)
			return a, nil
		}
		a.setStatus("Preferência salva.")
	case "W":
		if !a.isAdmin() {
			a.setError(&apperr.AppError{Kind: apperr.Forbidden, PublicMsg: "Apenas administradores podem limpar os dados."})
			return a, nil
		}
		a.askConfirm("Limpar todos os pedidos?",
			"Remove pedidos, custos de frete e auditoria no servidor e o histórico local. Não pode ser desfeito.",
			a.wipeCmd())
	case "J":
		a.askConfirm("Apagar histórico local?", "As entradas do histórico deste computador serão removidas.", a.resetJournalCmd())
	}
	return a, nil
}

func (a *App) renderSettings() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ajustes") + "\n\n")
	b.WriteString(fmt.Sprintf("Servidor: %s\n", a.cfg.API.BaseURL))
	if u, ok := a.user(); ok {
		b.WriteString(fmt.Sprintf("Usuário: %s (%s)\n", displayName(u), strings.ToLower(u.Role)))
	}
	switch {
	case a.integration == nil:
		b.WriteString("Bling: verificando...\n")
	case a.integration.Connected:
		b.WriteString("Bling: " + okStyle.Render("conectado") + "\n")
	default:
		b.WriteString("Bling: " + errorStyle.Render("desconectado") + "\n")
	}
	reset := "mantém a página"
	if a.cfg.UI.FilterResetsPage {
		reset = "volta para a página 1"
	}
	b.WriteString(fmt.Sprintf("Filtro por loja: %s\n", reset))
	b.WriteString(fmt.Sprintf("Exportações: %s\n\n", a.exportTarget()))

	b.WriteString(titleStyle.Render("Histórico recente") + "\n")
	if len(a.entries) == 0 {
		b.WriteString(dimStyle.Render("Sem atividade registrada.") + "\n")
	}
	for _, e := range a.entries {
		line := fmt.Sprintf("%s  %-18s %-14s", e.RecordedAt.Local().Format("02/01 15:04"), e.Kind, e.OrderNo)
		if e.Message != "" {
			line += "  " + truncate(e.Message, 50)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n[p] Alternar filtro por loja  [J] Apagar histórico local")
	if a.isAdmin() {
		b.WriteString("  [W] Limpar dados")
	}
	return b.String()
}

func (a *App) exportTarget() string {
	e := a.cfg.Exports
	if e.Driver == "s3" {
		return "s3://" + e.S3.Bucket + "/" + e.S3.Prefix
	}
	return e.Dir
}
