package api

import (
	"context"
	"net/http"
)

type WipeResult struct {
	Message string `json:"mensagem"`
	Deleted struct {
		FreightCosts int `json:"custos_frete"`
		Orders       int `json:"pedidos"`
		AuditEntries int `json:"auditoria_pedidos"`
	} `json:"deletados"`
}

// WipeOrders removes every order and freight cost on the backend. Users and
// packaging survive.
func (c *Client) WipeOrders(ctx context.Context) (WipeResult, error) {
	var out WipeResult
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/api/admin/limpar-dados"}, &out)
	return out, err
}

// BlingStatus reports whether the backend holds Bling OAuth tokens.
func (c *Client) BlingStatus(ctx context.Context) (IntegrationStatus, error) {
	var out IntegrationStatus
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/bling/status", Anonymous: true}, &out)
	return out, err
}
