package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/listing"
)

func (a *App) loginCmd(email, password string) tea.Cmd {
	return func() tea.Msg {
		u, err := a.svc.Session.Login(a.ctx, email, password)
		return loginMsg{user: u, err: err}
	}
}

func (a *App) fetchOrders(l *orderList, req listing.Request) tea.Cmd {
	l.loading = true
	ctx := a.reqCtx()
	id := l.id
	return func() tea.Msg {
		page, err := a.svc.API.ListOrders(ctx, req.Params)
		return ordersMsg{list: id, seq: req.Seq, page: page, err: err}
	}
}

// debounceSearch records the search text and schedules the fetch. Keystrokes
// inside the window supersede earlier ones.
func (a *App) debounceSearch(l *orderList) tea.Cmd {
	token := l.ctrl.Type(l.search.Value())
	id := l.id
	return tea.Tick(l.ctrl.Debounce(), func(time.Time) tea.Msg {
		return searchDueMsg{list: id, token: token}
	})
}

func (a *App) syncCmd() tea.Cmd {
	req := a.open.ctrl.Sync()
	ctx := a.reqCtx()
	a.setStatus("Sincronizando com Bling... Isso pode levar alguns minutos.")
	return func() tea.Msg {
		_, err := a.svc.API.ListOrders(ctx, req.Params)
		return syncDoneMsg{err: err}
	}
}

func (a *App) loadStores() tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		stores, err := a.svc.API.Stores(ctx)
		if err != nil {
			return errMsg{err}
		}
		return storesMsg(stores)
	}
}

func (a *App) loadDashboard() tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		d, err := a.svc.API.Dashboard(ctx)
		if err != nil {
			return errMsg{err}
		}
		return dashboardMsg(d)
	}
}

func (a *App) setGoalCmd(goal int) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		g, err := a.svc.API.SetDailyGoal(ctx, goal)
		if err != nil {
			return errMsg{err}
		}
		if g.DailyGoal == 0 {
			g.DailyGoal = goal
		}
		return goalMsg(g)
	}
}

func (a *App) loadPackages() tea.Cmd {
	ctx := a.reqCtx()
	status := "ativo"
	if a.pkgShowAll {
		status = ""
	}
	return func() tea.Msg {
		pkgs, err := a.svc.API.Packages(ctx, status)
		if err != nil {
			return errMsg{err}
		}
		return packagesMsg(pkgs)
	}
}

func (a *App) savePackageCmd(id int, in api.PackageInput) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		var err error
		if id == 0 {
			_, err = a.svc.API.CreatePackage(ctx, in)
		} else {
			_, err = a.svc.API.UpdatePackage(ctx, id, in)
		}
		if err != nil {
			return errMsg{err}
		}
		return reloadMsg{status: "Embalagem salva."}
	}
}

func (a *App) deactivatePackageCmd(p api.Package) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		if err := a.svc.API.DeactivatePackage(ctx, p.ID); err != nil {
			return errMsg{err}
		}
		return reloadMsg{status: "Embalagem " + p.Name + " desativada."}
	}
}

func (a *App) deleteOrderCmd(number string) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		if err := a.svc.API.DeleteOrder(ctx, number); err != nil {
			return errMsg{err}
		}
		return reloadMsg{status: "Pedido " + number + " excluído."}
	}
}

func (a *App) updateOrderCmd(number string, u api.OrderUpdate) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		if err := a.svc.API.UpdateOrder(ctx, number, u); err != nil {
			return errMsg{err}
		}
		return reloadMsg{status: "Pedido " + number + " atualizado."}
	}
}

func (a *App) batchTrackingCmd() tea.Cmd {
	ctx := a.reqCtx()
	a.setStatus("Buscando códigos de rastreio...")
	return func() tea.Msg {
		res, err := a.svc.API.BatchTracking(ctx)
		if err != nil {
			return errMsg{err}
		}
		s := fmt.Sprintf("%d pedido(s) atualizado(s).", res.Updated)
		if len(res.Errors) > 0 {
			s += fmt.Sprintf(" %d com erro.", len(res.Errors))
		}
		return reloadMsg{status: s}
	}
}

func (a *App) uploadCmd(path string) tea.Cmd {
	ctx := a.reqCtx()
	a.setStatus("Enviando planilha...")
	return func() tea.Msg {
		res, err := a.svc.Uploads.Upload(ctx, path)
		if err != nil {
			return errMsg{err}
		}
		s := res.Message
		if s == "" {
			s = fmt.Sprintf("%d pedido(s) atualizado(s).", res.Updated)
		}
		return reloadMsg{status: s}
	}
}

func (a *App) lookupBlingCmd(id string) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		o, err := a.svc.API.LookupBling(ctx, id)
		return blingLookupMsg{order: o, err: err}
	}
}

func (a *App) createOrderCmd(o api.NewOrder) tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		if _, err := a.svc.API.CreateOrder(ctx, o); err != nil {
			return workflowResultMsg{op: "add", err: err}
		}
		return workflowResultMsg{op: "add", msg: "Pedido adicionado com sucesso!"}
	}
}

func (a *App) exportCmd(what string, run func() (string, error)) tea.Cmd {
	a.setStatus("Exportando " + what + "...")
	return func() tea.Msg {
		loc, err := run()
		if err != nil {
			return errMsg{err}
		}
		return statusMsg("Planilha salva em " + loc)
	}
}

func (a *App) exportFinalizedCmd() tea.Cmd {
	ctx := a.reqCtx()
	q := a.finalized.ctrl.Query()
	return a.exportCmd("finalizados", func() (string, error) {
		res, err := a.svc.Exports.Finalized(ctx, q.Store, q.Search)
		return res.Location, err
	})
}

func (a *App) exportDashboardCmd() tea.Cmd {
	ctx := a.reqCtx()
	return a.exportCmd("dashboard", func() (string, error) {
		res, err := a.svc.Exports.Dashboard(ctx)
		return res.Location, err
	})
}

func (a *App) exportReportCmd() tea.Cmd {
	ctx := a.reqCtx()
	kind, day, start, end := a.reportKind, a.reportDay, a.reportStart, a.reportEnd
	return a.exportCmd("relatório", func() (string, error) {
		var (
			loc string
			err error
		)
		switch kind {
		case reportPeriod:
			res, e := a.svc.Exports.PeriodReport(ctx, start, end)
			loc, err = res.Location, e
		case reportChannel:
			res, e := a.svc.Exports.ChannelReport(ctx, start, end)
			loc, err = res.Location, e
		default:
			res, e := a.svc.Exports.DailyReport(ctx, day)
			loc, err = res.Location, e
		}
		return loc, err
	})
}

func (a *App) runReport() tea.Cmd {
	ctx := a.reqCtx()
	kind, day, start, end := a.reportKind, a.reportDay, a.reportStart, a.reportEnd
	money := a.money
	return func() tea.Msg {
		switch kind {
		case reportPeriod:
			r, err := a.svc.API.PeriodReport(ctx, start, end)
			if err != nil {
				return errMsg{err}
			}
			return reportMsg(renderPeriodReport(r, money))
		case reportChannel:
			r, err := a.svc.API.ChannelReport(ctx, start, end)
			if err != nil {
				return errMsg{err}
			}
			return reportMsg(renderChannelReport(r, money))
		default:
			r, err := a.svc.API.DailyReport(ctx, day)
			if err != nil {
				return errMsg{err}
			}
			return reportMsg(renderDailyReport(r, money))
		}
	}
}

func (a *App) loadJournal() tea.Cmd {
	return func() tea.Msg {
		if a.svc.Journal == nil {
			return journalMsg(nil)
		}
		entries, err := a.svc.Journal.Recent(a.ctx, 15)
		if err != nil {
			return errMsg{err}
		}
		return journalMsg(entries)
	}
}

func (a *App) loadIntegration() tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		st, err := a.svc.API.BlingStatus(ctx)
		if err != nil {
			return errMsg{err}
		}
		return integrationMsg(st)
	}
}

func (a *App) wipeCmd() tea.Cmd {
	ctx := a.reqCtx()
	return func() tea.Msg {
		res, err := a.svc.Maintenance.Wipe(ctx)
		if err != nil {
			return errMsg{err}
		}
		msg := strings.TrimSpace(res.Message)
		if msg == "" {
			msg = fmt.Sprintf("%d pedidos removidos.", res.Deleted.Orders)
		}
		return reloadMsg{status: msg}
	}
}

func (a *App) resetJournalCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.svc.Maintenance.ResetJournal(a.ctx); err != nil {
			return errMsg{err}
		}
		return reloadMsg{status: "Histórico local apagado."}
	}
}
