package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jask/despacho/internal/apperr"
)

func orderPath(number string, suffix string) string {
	return "/api/pedidos/" + escape(strings.TrimSpace(number)) + suffix
}

func (c *Client) ListOrders(ctx context.Context, p ListParams) (OrderPage, error) {
	var out OrderPage
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/pedidos", RawQuery: p.Encode()}, &out)
	return out, err
}

// Stores lists the sales channel names used by the store filter.
func (c *Client) Stores(ctx context.Context) ([]string, error) {
	var out struct {
		Stores []string `json:"lojas"`
	}
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/pedidos/lojas"}, &out)
	return out.Stores, err
}

func (c *Client) OrderDetails(ctx context.Context, number string) (Order, error) {
	var out Order
	err := c.call(ctx, Request{Method: http.MethodGet, Path: orderPath(number, "/detalhes")}, &out)
	return out, err
}

// ExternalInfo asks the backend to look the order up in Bling. A null body yields nil.
func (c *Client) ExternalInfo(ctx context.Context, number string) (*ExternalInfo, error) {
	var out *ExternalInfo
	err := c.call(ctx, Request{Method: http.MethodGet, Path: orderPath(number, "/detalhes-bling")}, &out)
	return out, err
}

func (c *Client) Reserve(ctx context.Context, number string) (Reservation, error) {
	var out Reservation
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number, "/reservar")}, &out)
	return out, err
}

func (c *Client) Release(ctx context.Context, number string) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: orderPath(number, "/reservar")}, nil)
}

func (c *Client) UpdateOrder(ctx context.Context, number string, u OrderUpdate) error {
	return c.call(ctx, Request{Method: http.MethodPut, Path: orderPath(number, ""), Body: u}, nil)
}

func (c *Client) Finalize(ctx context.Context, number string, req FinalizeRequest) (FinalizeResult, error) {
	var out FinalizeResult
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number, "/finalizar"), Body: req}, &out)
	return out, err
}

func (c *Client) EditFinalized(ctx context.Context, number string, req EditFinalizedRequest) (FinalizeResult, error) {
	var out FinalizeResult
	err := c.call(ctx, Request{Method: http.MethodPatch, Path: orderPath(number, "/editar-finalizado"), Body: req}, &out)
	return out, err
}

func (c *Client) SyncTracking(ctx context.Context, number string) (TrackingSync, error) {
	var out TrackingSync
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number, "/sincronizar-rastreio")}, &out)
	return out, err
}

func (c *Client) DeleteOrder(ctx context.Context, number string) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: orderPath(number, "")}, nil)
}

func (c *Client) CreateOrder(ctx context.Context, o NewOrder) (Order, error) {
	if err := apperr.Validate("", o); err != nil {
		return Order{}, err
	}
	var out Order
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/api/pedidos", Body: o}, &out)
	return out, err
}

// LookupBling fetches an order straight from Bling to prefill a manual add.
func (c *Client) LookupBling(ctx context.Context, blingID string) (BlingOrder, error) {
	blingID = strings.TrimSpace(blingID)
	if blingID == "" {
		return BlingOrder{}, apperr.InvalidErr("ID do pedido (Bling) é obrigatório", nil)
	}
	var out BlingOrder
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/pedidos/bling/" + escape(blingID)}, &out)
	return out, err
}

type SyncResult struct {
	Message  string `json:"mensagem"`
	Inserted int    `json:"inseridos"`
}

// SyncOrders forces a pull of open orders from Bling.
func (c *Client) SyncOrders(ctx context.Context) (SyncResult, error) {
	var out SyncResult
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/api/pedidos/sincronizar"}, &out)
	return out, err
}

func (c *Client) BatchTracking(ctx context.Context) (BatchTrackingResult, error) {
	var out BatchTrackingResult
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/api/pedidos/obter-rastreio-em-lote"}, &out)
	return out, err
}

// UploadSpreadsheet sends a Mandaê freight spreadsheet as the "planilha" form field.
func (c *Client) UploadSpreadsheet(ctx context.Context, filename string, r io.Reader) (SpreadsheetResult, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
	default:
		return SpreadsheetResult{}, apperr.InvalidErr("Formato não suportado. Use .csv, .xlsx ou .xls.", nil)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("planilha", filepath.Base(filename))
	if err != nil {
		return SpreadsheetResult{}, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return SpreadsheetResult{}, fmt.Errorf("read spreadsheet: %w", err)
	}
	if err := mw.Close(); err != nil {
		return SpreadsheetResult{}, err
	}
	var out SpreadsheetResult
	err = c.call(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/api/pedidos/planilha-mandae",
		RawBody:     buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}, &out)
	return out, err
}

// ExportFinalized downloads the finalized orders workbook with the list filters applied.
func (c *Client) ExportFinalized(ctx context.Context, store, search string) (Download, error) {
	q := url.Values{}
	if s := strings.TrimSpace(store); s != "" {
		q.Set("loja", s)
	}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("busca", s)
	}
	name := "finalizados-" + time.Now().Format(time.DateOnly) + ".xlsx"
	return c.download(ctx, Request{Method: http.MethodGet, Path: "/api/pedidos/exportar-finalizados", Query: q}, name)
}
