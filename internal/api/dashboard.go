package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jask/despacho/internal/apperr"
)

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/dashboard"}, &out)
	return out, err
}

func (c *Client) DashboardExcel(ctx context.Context) (Download, error) {
	name := "dashboard-" + time.Now().Format(time.DateOnly) + ".xlsx"
	return c.download(ctx, Request{Method: http.MethodGet, Path: "/api/dashboard/excel"}, name)
}

func (c *Client) DailyGoal(ctx context.Context) (DailyGoal, error) {
	var out DailyGoal
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/dashboard/meta"}, &out)
	return out, err
}

// SetDailyGoal is admin only; the backend answers 403 otherwise.
func (c *Client) SetDailyGoal(ctx context.Context, goal int) (DailyGoal, error) {
	if goal < 1 {
		return DailyGoal{}, apperr.InvalidErr("Meta diária deve ser um número inteiro positivo", map[string]string{"meta_diaria": "mínimo 1"})
	}
	var out DailyGoal
	err := c.call(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/dashboard/meta",
		Body:   map[string]int{"meta_diaria": goal},
	}, &out)
	return out, err
}
