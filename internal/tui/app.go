package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/config"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
	"github.com/jask/despacho/internal/listing"
	"github.com/jask/despacho/internal/packaging"
	"github.com/jask/despacho/internal/service"
	"github.com/jask/despacho/internal/session"
	"github.com/jask/despacho/internal/workflow"
)

// App ties together views.
type App struct {
	ctx  context.Context
	svc  Services
	cfg  config.Config
	send func(tea.Msg)

	keys   keyMap
	help   help.Model
	width  int
	height int

	page      page
	modal     modalState
	status    string
	statusErr bool

	login     *form
	loginBusy bool

	open      *orderList
	finalized *orderList
	stores    []string

	storeTarget storeTarget
	storeCursor int

	dashboard *api.Dashboard
	goalForm  *form

	packages    []api.Package
	pkgCursor   int
	pkgShowAll  bool
	pkgForm     *form
	pkgEditing  int
	reportKind  reportKind
	reportStart time.Time
	reportEnd   time.Time
	reportDay   time.Time
	reportForm  *form
	reportText  string

	entries     []repository.Entry
	integration *api.IntegrationStatus

	confirm *confirmation

	// finalize / correction modal
	of       orderForm
	ofForm   *form
	ofRow    int // -1 while a text field has focus
	qtyBuf   string
	ofBusy   bool
	picker   *packaging.Picker
	pickFor  int
	addForm  *form
	addBling *api.BlingOrder
	upForm   *form

	editForm   *form
	editNumber string
}

// Services are the components the panel drives.
type Services struct {
	API         *api.Client
	Session     *session.Manager
	Finalize    *workflow.Workflow
	Correction  *workflow.Correction
	Exports     *service.ExportService
	Uploads     *service.UploadService
	Maintenance *service.MaintenanceService
	Journal     *repository.JournalRepo
	Recorder    *journal.Recorder
}

type page string

const (
	pageLogin     page = "login"
	pageDashboard page = "dashboard"
	pageOpen      page = "open"
	pageFinalized page = "finalized"
	pagePackaging page = "packaging"
	pageReports   page = "reports"
	pageSettings  page = "settings"
)

type modalState string

const (
	modalNone        modalState = ""
	modalFinalize    modalState = "finalize"
	modalCorrection  modalState = "correction"
	modalPicker      modalState = "picker"
	modalConfirm     modalState = "confirm"
	modalStore       modalState = "store"
	modalAddOrder    modalState = "addOrder"
	modalEditOrder   modalState = "editOrder"
	modalPackageForm modalState = "packageForm"
	modalGoal        modalState = "goal"
	modalUpload      modalState = "upload"
	modalReportRange modalState = "reportRange"
)

type storeTarget int

const (
	storeOpenFilter storeTarget = iota
	storeFinalizedFilter
	storeMarketplace
)

type confirmation struct {
	title string
	body  string
	run   tea.Cmd
}

// orderList is one paginated order list with its search box.
type orderList struct {
	id        page
	ctrl      *listing.Controller
	orders    []api.Order
	cursor    int
	loading   bool
	search    textinput.Model
	searching bool
	sortCol   int
}

func newOrderList(id page, opts listing.Options) *orderList {
	ti := textinput.New()
	ti.Prompt = "busca: "
	ti.Placeholder = "número, rastreio ou transportadora"
	ti.CharLimit = 80
	return &orderList{id: id, ctrl: listing.New(opts), search: ti, sortCol: len(listing.SortColumns) - 1}
}

func (l *orderList) selected() (api.Order, bool) {
	if l.cursor < 0 || l.cursor >= len(l.orders) {
		return api.Order{}, false
	}
	return l.orders[l.cursor], true
}

func New(ctx context.Context, cfg config.Config, svc Services) *App {
	openOpts := listing.OpenOrders(cfg.UI.PerPage, cfg.UI.FilterResetsPage)
	finOpts := listing.FinalizedOrders(cfg.UI.PerPage, cfg.UI.FilterResetsPage)
	if cfg.UI.SearchDebounce > 0 {
		openOpts.Debounce, finOpts.Debounce = cfg.UI.SearchDebounce, cfg.UI.SearchDebounce
	}
	if cfg.UI.CurrencySymbol == "" {
		cfg.UI.CurrencySymbol = "R$"
	}
	if cfg.UI.DateFormat == "" {
		cfg.UI.DateFormat = "02/01/2006"
	}
	now := time.Now()
	a := &App{
		ctx:         ctx,
		svc:         svc,
		cfg:         cfg,
		keys:        defaultKeys(),
		help:        help.New(),
		page:        pageLogin,
		open:        newOrderList(pageOpen, openOpts),
		finalized:   newOrderList(pageFinalized, finOpts),
		ofRow:       -1,
		reportDay:   now,
		reportStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
		reportEnd:   now,
	}
	a.login = newForm("E-mail", "Senha")
	a.login.Mask(1)
	if svc.Session != nil && svc.Session.Authenticated() {
		a.page = pageDashboard
	}
	return a
}

// Attach wires component notifications into the running program. send must be
// safe to call from any goroutine (tea.Program.Send is).
func (a *App) Attach(send func(tea.Msg)) {
	a.send = send
	if a.svc.Session != nil {
		a.svc.Session.Subscribe(func(c session.Change) { a.notify(sessionChangedMsg(c)) })
	}
	if a.svc.Finalize != nil {
		a.svc.Finalize.Subscribe(func(c workflow.Change) { a.notify(workflowChangedMsg(c)) })
	}
}

// notify never blocks: listeners may fire from inside Update.
func (a *App) notify(msg tea.Msg) {
	if a.send == nil {
		return
	}
	go a.send(msg)
}

func (a *App) Init() tea.Cmd {
	if a.page == pageLogin {
		return textinput.Blink
	}
	return a.enterPage(pageDashboard)
}

// reqCtx is cancelled when the operator logs out.
func (a *App) reqCtx() context.Context {
	if a.svc.Session != nil {
		return a.svc.Session.Context()
	}
	return a.ctx
}

func (a *App) user() (api.User, bool) {
	if a.svc.Session == nil {
		return api.User{}, false
	}
	return a.svc.Session.User()
}

func (a *App) isAdmin() bool {
	u, ok := a.user()
	return ok && u.IsAdmin()
}

func (a *App) setStatus(s string) {
	a.status, a.statusErr = s, false
}

func (a *App) setError(err error) {
	a.status, a.statusErr = apperr.PublicMessage(err), true
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.help.Width = m.Width
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)

	case sessionChangedMsg:
		return a.onSessionChanged(session.Change(m))
	case workflowChangedMsg:
		a.refreshOrderForm()
		return a, nil

	case loginMsg:
		a.loginBusy = false
		if m.err != nil {
			a.setError(m.err)
			return a, nil
		}
		a.login.SetValue(1, "")
		a.setStatus("Bem-vindo, " + displayName(m.user))
		return a, a.enterPage(pageDashboard)

	case ordersMsg:
		return a.onOrders(m)
	case searchDueMsg:
		l := a.list(m.list)
		if l == nil {
			return a, nil
		}
		req, ok := l.ctrl.SearchDue(m.token)
		if !ok {
			return a, nil
		}
		return a, a.fetchOrders(l, req)
	case syncDoneMsg:
		if m.err != nil {
			a.setError(m.err)
			return a, nil
		}
		a.setStatus("Sincronização concluída. Os pedidos foram atualizados.")
		return a, a.fetchOrders(a.open, a.open.ctrl.Load())
	case storesMsg:
		a.stores = []string(m)
		return a, nil
	case dashboardMsg:
		d := api.Dashboard(m)
		a.dashboard = &d
		return a, nil
	case goalMsg:
		if a.dashboard != nil {
			a.dashboard.Accumulated.DailyGoal = m.DailyGoal
		}
		a.setStatus(fmt.Sprintf("Meta diária atualizada para %d.", m.DailyGoal))
		return a, a.loadDashboard()
	case packagesMsg:
		a.packages = []api.Package(m)
		if a.pkgCursor >= len(a.packages) {
			a.pkgCursor = max(len(a.packages)-1, 0)
		}
		return a, nil
	case reportMsg:
		a.reportText = string(m)
		return a, nil
	case journalMsg:
		a.entries = []repository.Entry(m)
		return a, nil
	case integrationMsg:
		st := api.IntegrationStatus(m)
		a.integration = &st
		return a, nil

	case workflowResultMsg:
		return a.onWorkflowResult(m)
	case blingLookupMsg:
		return a.onBlingLookup(m)

	case statusMsg:
		a.setStatus(string(m))
		return a, nil
	case reloadMsg:
		a.setStatus(m.status)
		return a, a.enterPage(a.page)
	case errMsg:
		a.setError(m.error)
		return a, nil
	}
	return a, nil
}

func (a *App) onSessionChanged(c session.Change) (tea.Model, tea.Cmd) {
	if a.svc.Session != nil && a.svc.Session.Authenticated() {
		return a, nil
	}
	a.toLogin(c.Reason)
	return a, nil
}

// logout closes the modals at once and ends the session only after a pending
// reservation release has gone out, so the release still carries the token.
func (a *App) logout() (tea.Model, tea.Cmd) {
	sess, wf := a.svc.Session, a.svc.Finalize
	id := sess.ID()
	a.toLogin(nil)
	return a, func() tea.Msg {
		if wf != nil {
			wf.Wait()
		}
		// the operator may have logged in again meanwhile
		if sess.ID() != id {
			return nil
		}
		sess.Logout()
		return sessionChangedMsg{}
	}
}

func (a *App) toLogin(reason error) {
	if a.svc.Finalize != nil {
		a.svc.Finalize.Cancel()
	}
	if a.svc.Correction != nil {
		a.svc.Correction.Close()
	}
	a.closeModal()
	a.page = pageLogin
	a.login.FocusIndex(0)
	if reason != nil {
		a.setError(reason)
	} else {
		a.setStatus("Sessão encerrada.")
	}
}

func (a *App) list(id page) *orderList {
	switch id {
	case pageOpen:
		return a.open
	case pageFinalized:
		return a.finalized
	}
	return nil
}

func (a *App) onOrders(m ordersMsg) (tea.Model, tea.Cmd) {
	l := a.list(m.list)
	if l == nil || !l.ctrl.Current(m.seq) {
		return a, nil
	}
	l.loading = false
	if m.err != nil {
		l.orders = nil
		a.setError(m.err)
		return a, nil
	}
	l.ctrl.Apply(m.seq, m.page)
	l.orders = m.page.Orders
	if l.cursor >= len(l.orders) {
		l.cursor = max(len(l.orders)-1, 0)
	}
	return a, nil
}

// enterPage switches pages and loads what the page shows.
func (a *App) enterPage(p page) tea.Cmd {
	a.page = p
	switch p {
	case pageDashboard:
		return a.loadDashboard()
	case pageOpen:
		return tea.Batch(a.fetchOrders(a.open, a.open.ctrl.Load()), a.loadStores())
	case pageFinalized:
		return tea.Batch(a.fetchOrders(a.finalized, a.finalized.ctrl.Load()), a.loadStores())
	case pagePackaging:
		return a.loadPackages()
	case pageReports:
		return a.runReport()
	case pageSettings:
		return tea.Batch(a.loadJournal(), a.loadIntegration())
	}
	return nil
}

func (a *App) closeModal() {
	a.modal = modalNone
	a.confirm = nil
	a.of, a.ofForm, a.ofRow, a.qtyBuf, a.ofBusy = nil, nil, -1, "", false
	a.picker = nil
	a.addForm, a.addBling = nil, nil
	a.editForm, a.editNumber = nil, ""
	a.pkgForm, a.goalForm, a.upForm, a.reportForm = nil, nil, nil, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.String() == "ctrl+c" {
		if a.svc.Finalize != nil {
			a.svc.Finalize.Cancel()
		}
		return a, tea.Quit
	}
	if a.page == pageLogin {
		return a.handleLoginKey(m)
	}
	// logging out also closes whatever modal is open
	if key.Matches(m, a.keys.Logout) {
		return a.logout()
	}
	if a.modal != modalNone {
		return a.handleModalKey(m)
	}
	if l := a.list(a.page); l != nil && l.searching {
		return a.handleSearchKey(l, m)
	}

	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Refresh):
		return a, a.enterPage(a.page)
	case key.Matches(m, a.keys.Dashboard):
		return a, a.enterPage(pageDashboard)
	case key.Matches(m, a.keys.Open):
		return a, a.enterPage(pageOpen)
	case key.Matches(m, a.keys.Finalized):
		return a, a.enterPage(pageFinalized)
	case key.Matches(m, a.keys.Packaging):
		return a, a.enterPage(pagePackaging)
	case key.Matches(m, a.keys.Reports):
		return a, a.enterPage(pageReports)
	case key.Matches(m, a.keys.Settings):
		return a, a.enterPage(pageSettings)
	}

	switch a.page {
	case pageDashboard:
		return a.handleDashboardKey(m)
	case pageOpen, pageFinalized:
		return a.handleListKey(a.list(a.page), m)
	case pagePackaging:
		return a.handlePackagingKey(m)
	case pageReports:
		return a.handleReportsKey(m)
	case pageSettings:
		return a.handleSettingsKey(m)
	}
	return a, nil
}

func (a *App) handleLoginKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.loginBusy {
		return a, nil
	}
	switch m.String() {
	case "esc":
		return a, tea.Quit
	case "tab", "down":
		a.login.FocusIndex((a.login.Focused() + 1) % a.login.Len())
		return a, nil
	case "shift+tab", "up":
		a.login.FocusIndex((a.login.Focused() + a.login.Len() - 1) % a.login.Len())
		return a, nil
	case "enter":
		if a.login.Focused() == 0 {
			a.login.FocusIndex(1)
			return a, nil
		}
		a.loginBusy = true
		a.setStatus("Entrando...")
		return a, a.loginCmd(a.login.Value(0), a.login.Raw(1))
	}
	_, cmd := a.login.Update(m)
	return a, cmd
}

func (a *App) handleConfirmKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "y", "Y", "s", "S":
		run := a.confirm.run
		a.closeModal()
		return a, run
	case "n", "N", "esc":
		a.closeModal()
	}
	return a, nil
}

func (a *App) askConfirm(title, body string, run tea.Cmd) {
	a.modal = modalConfirm
	a.confirm = &confirmation{title: title, body: body, run: run}
}

func (a *App) handleModalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.modal {
	case modalConfirm:
		return a.handleConfirmKey(m)
	case modalFinalize, modalCorrection:
		return a.handleOrderFormKey(m)
	case modalPicker:
		return a.handlePickerKey(m)
	case modalStore:
		return a.handleStoreKey(m)
	case modalAddOrder:
		return a.handleAddOrderKey(m)
	case modalEditOrder:
		return a.handleEditOrderKey(m)
	case modalPackageForm:
		return a.handlePackageFormKey(m)
	case modalGoal:
		return a.handleGoalKey(m)
	case modalUpload:
		return a.handleUploadKey(m)
	case modalReportRange:
		return a.handleReportRangeKey(m)
	}
	return a, nil
}

// messages
type errMsg struct{ error }

type statusMsg string

// reloadMsg sets the status and reloads the current page.
type reloadMsg struct{ status string }

type loginMsg struct {
	user api.User
	err  error
}

type ordersMsg struct {
	list page
	seq  uint64
	page api.OrderPage
	err  error
}

type searchDueMsg struct {
	list  page
	token uint64
}

type syncDoneMsg struct{ err error }

type storesMsg []string

type dashboardMsg api.Dashboard

type goalMsg api.DailyGoal

type packagesMsg []api.Package

type reportMsg string

type journalMsg []repository.Entry

type integrationMsg api.IntegrationStatus

type sessionChangedMsg session.Change

type workflowChangedMsg workflow.Change

// workflowResultMsg is the outcome of a blocking workflow call.
type workflowResultMsg struct {
	op  string
	err error
	msg string
}

type blingLookupMsg struct {
	order api.BlingOrder
	err   error
}

// styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	selectedLine = lipgloss.NewStyle().Bold(true)
)

func (a *App) View() string {
	var body string
	switch a.page {
	case pageLogin:
		body = a.renderLogin()
	case pageOpen, pageFinalized:
		body = a.renderList(a.list(a.page))
	case pagePackaging:
		body = a.renderPackaging()
	case pageReports:
		body = a.renderReports()
	case pageSettings:
		body = a.renderSettings()
	default:
		body = a.renderDashboard()
	}
	if a.page != pageLogin {
		body = a.renderHeader() + "\n\n" + body + "\n\n" + a.help.View(a.keys)
	}
	if a.status != "" {
		if a.statusErr {
			body += "\n" + errorStyle.Render(a.status)
		} else {
			body += "\n" + a.status
		}
	}
	if a.modal != modalNone {
		return renderPopup(body, a.renderModal(), a.width, a.height)
	}
	return body
}

func (a *App) renderHeader() string {
	tabs := []struct {
		p     page
		label string
	}{
		{pageDashboard, "Dashboard"},
		{pageOpen, "Em aberto"},
		{pageFinalized, "Finalizados"},
		{pagePackaging, "Embalagens"},
		{pageReports, "Relatórios"},
		{pageSettings, "Ajustes"},
	}
	var parts []string
	for i, t := range tabs {
		label := fmt.Sprintf("%d %s", i+1, t.label)
		if t.p == a.page {
			label = selectedLine.Render("[" + label + "]")
		}
		parts = append(parts, label)
	}
	out := strings.Join(parts, "  ")
	if u, ok := a.user(); ok {
		out += dimStyle.Render("   " + displayName(u))
	}
	return out
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalConfirm:
		return titleStyle.Render(a.confirm.title) + "\n" + a.confirm.body + "\n\n[y] Sim  [n] Não"
	case modalFinalize, modalCorrection:
		return a.renderOrderForm()
	case modalPicker:
		return a.renderPicker()
	case modalStore:
		return a.renderStoreChooser()
	case modalAddOrder:
		return a.renderAddOrder()
	case modalEditOrder:
		return titleStyle.Render("Editar pedido "+a.editNumber) + "\n" + a.editForm.View() + "\n\n[enter] Salvar  [tab] Próximo campo  [esc] Cancelar"
	case modalPackageForm:
		title := "Nova embalagem"
		if a.pkgEditing != 0 {
			title = "Editar embalagem"
		}
		return titleStyle.Render(title) + "\n" + a.pkgForm.View() + "\n\n[enter] Salvar  [tab] Próximo campo  [esc] Cancelar"
	case modalGoal:
		return titleStyle.Render("Meta diária") + "\n" + a.goalForm.View() + "\n\n[enter] Salvar  [esc] Cancelar"
	case modalUpload:
		return titleStyle.Render("Planilha Mandaê") + "\nCaminho do arquivo (.csv, .xlsx ou .xls)\n" + a.upForm.View() + "\n\n[enter] Enviar  [esc] Cancelar"
	case modalReportRange:
		return titleStyle.Render("Datas do relatório") + "\n" + a.reportForm.View() + "\n\nFormato AAAA-MM-DD\n[enter] Aplicar  [tab] Próximo campo  [esc] Cancelar"
	}
	return ""
}

func displayName(u api.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
