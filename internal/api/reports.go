package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jask/despacho/internal/apperr"
)

// MaxReportDays bounds period and channel reports.
const MaxReportDays = 90

// ReportRange validates an inclusive date range for the period reports.
func ReportRange(start, end time.Time) (url.Values, error) {
	if start.IsZero() || end.IsZero() {
		return nil, apperr.InvalidErr("Parâmetros inicio e fim são obrigatórios (formato YYYY-MM-DD)", nil)
	}
	if end.Before(start) {
		return nil, apperr.InvalidErr("Data final deve ser maior ou igual à inicial", nil)
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > MaxReportDays {
		return nil, apperr.InvalidErr("Período máximo de 90 dias", nil)
	}
	return url.Values{
		"inicio": {start.Format(time.DateOnly)},
		"fim":    {end.Format(time.DateOnly)},
	}, nil
}

func (c *Client) DailyReport(ctx context.Context, day time.Time) (DailyReport, error) {
	var out DailyReport
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/diario/" + day.Format(time.DateOnly)}, &out)
	return out, err
}

func (c *Client) DailyReportExcel(ctx context.Context, day time.Time) (Download, error) {
	d := day.Format(time.DateOnly)
	return c.download(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/diario/" + d + "/excel"}, "relatorio-"+d+".xlsx")
}

func (c *Client) PeriodReport(ctx context.Context, start, end time.Time) (PeriodReport, error) {
	q, err := ReportRange(start, end)
	if err != nil {
		return PeriodReport{}, err
	}
	var out PeriodReport
	err = c.call(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/periodo", Query: q}, &out)
	return out, err
}

func (c *Client) PeriodReportExcel(ctx context.Context, start, end time.Time) (Download, error) {
	q, err := ReportRange(start, end)
	if err != nil {
		return Download{}, err
	}
	name := "relatorio-" + q.Get("inicio") + "-" + q.Get("fim") + ".xlsx"
	return c.download(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/periodo/excel", Query: q}, name)
}

func (c *Client) ChannelReport(ctx context.Context, start, end time.Time) (ChannelReport, error) {
	q, err := ReportRange(start, end)
	if err != nil {
		return ChannelReport{}, err
	}
	var out ChannelReport
	err = c.call(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/por-canal", Query: q}, &out)
	return out, err
}

func (c *Client) ChannelReportExcel(ctx context.Context, start, end time.Time) (Download, error) {
	q, err := ReportRange(start, end)
	if err != nil {
		return Download{}, err
	}
	name := "relatorio-canais-" + q.Get("inicio") + "-" + q.Get("fim") + ".xlsx"
	return c.download(ctx, Request{Method: http.MethodGet, Path: "/api/relatorios/por-canal/excel", Query: q}, name)
}
