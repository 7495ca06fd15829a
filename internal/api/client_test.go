package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/retry"
)

type fakeSession struct {
	mu         sync.Mutex
	token      string
	terminated []error
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Terminate(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.terminated = append(s.terminated, reason)
}

func fastPolicy() retry.Policy {
	p := retry.Default()
	p.Delay = time.Millisecond
	return p
}

func newTestClient(t *testing.T, r http.Handler) (*Client, *fakeSession) {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	sess := &fakeSession{token: "tok-1"}
	return New(srv.URL, WithPolicy(fastPolicy()), WithSession(sess)), sess
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestBearerTokenAttached(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReqID string
	r := chi.NewRouter()
	r.Get("/api/pedidos/lojas", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		writeJSON(w, 200, map[string]any{"lojas": []string{"Loja A", "Loja B"}})
	})
	c, _ := newTestClient(t, r)

	stores, err := c.Stores(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Loja A", "Loja B"}, stores)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.NotEmpty(t, gotReqID)
}

func TestUnauthorizedEndsSession(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]string{"msg": "Token has expired"})
	})
	c, sess := newTestClient(t, r)

	_, err := c.Dashboard(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.SessionExpired, apperr.KindOf(err))
	require.Equal(t, "Sessão expirada", apperr.PublicMessage(err))
	require.Len(t, sess.terminated, 1)
	require.Empty(t, sess.Token())
}

func TestUnprocessableEndsSessionAsInvalid(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, map[string]string{"msg": "Signature verification failed"})
	})
	c, sess := newTestClient(t, r)

	_, err := c.Dashboard(context.Background())
	require.Equal(t, apperr.InvalidSession, apperr.KindOf(err))
	require.Len(t, sess.terminated, 1)
	require.Equal(t, apperr.InvalidSession, apperr.KindOf(sess.terminated[0]))
}

func TestLoginFailureDoesNotTerminate(t *testing.T) {
	t.Parallel()

	var gotAuth string
	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, 401, map[string]string{"erro": "Email ou senha inválidos"})
	})
	c, sess := newTestClient(t, r)

	_, err := c.Login(context.Background(), Credentials{Email: "op@example.com", Password: "x"})
	require.Error(t, err)
	require.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	require.Equal(t, "Email ou senha inválidos", apperr.PublicMessage(err))
	require.Empty(t, gotAuth)
	require.Empty(t, sess.terminated)
}

func TestLoginValidatesCredentials(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:1")
	_, err := c.Login(context.Background(), Credentials{Email: "not-an-email"})
	require.Equal(t, apperr.Invalid, apperr.KindOf(err))
	ae, _ := apperr.As(err)
	require.Contains(t, ae.Fields, "email")
	require.Contains(t, ae.Fields, "senha")
}

func TestRateLimitRetriesThenReturnsLastResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/pedidos", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 429, map[string]string{"erro": "limite"})
	})
	c, _ := newTestClient(t, r)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/pedidos"})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.EqualValues(t, 3, calls.Load())

	_, err = c.ListOrders(context.Background(), ListParams{Status: "aberto"})
	require.Equal(t, apperr.RateLimited, apperr.KindOf(err))
	require.EqualValues(t, 6, calls.Load())
}

func TestRateLimitRecovers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/pedidos", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(429)
			return
		}
		require.Equal(t, "aberto", r.URL.Query().Get("status"))
		require.Equal(t, "100", r.URL.Query().Get("per_page"))
		writeJSON(w, 200, map[string]any{
			"pedidos": []map[string]any{{"numero_pedido": "123", "loja_id": 2045, "frete_cliente": 12.5}},
			"total":   1, "page": 1, "per_page": 100, "total_pages": 1,
		})
	})
	c, _ := newTestClient(t, r)

	page, err := c.ListOrders(context.Background(), ListParams{Status: "aberto", Page: 1, PerPage: 100})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
	require.Len(t, page.Orders, 1)
	require.Equal(t, FlexString("2045"), page.Orders[0].StoreID)
	require.True(t, page.Orders[0].Freight.Decimal.Equal(decimal.RequireFromString("12.5")))
}

func TestNetworkFailureRetriesThenFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	var attempts []int
	p := fastPolicy()
	c := New(base, WithPolicy(p))
	c.policy.RetryOn = retry.Any(func(resp *http.Response, err error) bool {
		attempts = append(attempts, len(attempts)+1)
		return false
	}, p.RetryOn)

	_, err := c.Dashboard(context.Background())
	require.Equal(t, apperr.Network, apperr.KindOf(err))
	require.Len(t, attempts, 3)
}

func TestBackendErrorMessageSurfaced(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/api/pedidos/{numero}/reservar", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 409, map[string]string{"erro": "Pedido já está reservado por Ana"})
	})
	c, sess := newTestClient(t, r)

	_, err := c.Reserve(context.Background(), "777")
	require.Equal(t, apperr.Conflict, apperr.KindOf(err))
	require.Equal(t, "Pedido já está reservado por Ana", apperr.PublicMessage(err))
	require.Empty(t, sess.terminated)
}

func TestExternalInfoNullBody(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/pedidos/{numero}/detalhes-bling", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "numero") == "1" {
			_, _ = io.WriteString(w, "null")
			return
		}
		writeJSON(w, 200, map[string]any{"numero_loja": "MLB-9", "frete": 20.1, "contato_nome": "Correios"})
	})
	c, _ := newTestClient(t, r)

	info, err := c.ExternalInfo(context.Background(), "1")
	require.NoError(t, err)
	require.Nil(t, info)

	info, err = c.ExternalInfo(context.Background(), "2")
	require.NoError(t, err)
	require.Equal(t, FlexString("MLB-9"), info.StoreNumber)
	require.Equal(t, FlexString("Correios"), info.Carrier)
	require.True(t, info.Freight.Valid)
}

func TestFinalizeBodyOmitsLegacyFieldsWhenUnset(t *testing.T) {
	t.Parallel()

	var body map[string]any
	r := chi.NewRouter()
	r.Post("/api/pedidos/{numero}/finalizar", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 200, map[string]any{"mensagem": "ok"})
	})
	c, _ := newTestClient(t, r)

	_, err := c.Finalize(context.Background(), "55", FinalizeRequest{
		Packages: []PackageLine{{PackageID: 1, Quantity: 2}, {PackageID: 3, Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotContains(t, body, "id_embalagem")
	require.NotContains(t, body, "quantidade_embalagem")
	require.Len(t, body["embalagens"], 2)
}

func TestUploadSpreadsheet(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/api/pedidos/planilha-mandae", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("planilha")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		require.Equal(t, "fretes.csv", hdr.Filename)
		require.Equal(t, "pedido;valor\n1;10\n", string(data))
		writeJSON(w, 200, map[string]any{"mensagem": "Planilha processada.", "atualizados": 1})
	})
	c, _ := newTestClient(t, r)

	res, err := c.UploadSpreadsheet(context.Background(), "/tmp/fretes.csv", strings.NewReader("pedido;valor\n1;10\n"))
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)

	_, err = c.UploadSpreadsheet(context.Background(), "fretes.pdf", strings.NewReader(""))
	require.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestExportUsesContentDisposition(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/pedidos/exportar-finalizados", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Loja A", r.URL.Query().Get("loja"))
		w.Header().Set("Content-Disposition", `attachment; filename="finalizados-2026-01-02.xlsx"`)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK"))
	})
	c, _ := newTestClient(t, r)

	d, err := c.ExportFinalized(context.Background(), "Loja A", " ")
	require.NoError(t, err)
	require.Equal(t, "finalizados-2026-01-02.xlsx", d.Filename)
	require.Equal(t, []byte("PK"), d.Body)
}

func TestReportRange(t *testing.T) {
	t.Parallel()

	day := func(s string) time.Time {
		d, err := time.Parse(time.DateOnly, s)
		require.NoError(t, err)
		return d
	}
	q, err := ReportRange(day("2026-01-01"), day("2026-03-31"))
	require.NoError(t, err)
	require.Equal(t, "2026-01-01", q.Get("inicio"))

	_, err = ReportRange(day("2026-01-01"), day("2026-04-01"))
	require.Equal(t, apperr.Invalid, apperr.KindOf(err))

	_, err = ReportRange(day("2026-02-01"), day("2026-01-01"))
	require.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestSetDailyGoalRejectsNonPositive(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:1")
	_, err := c.SetDailyGoal(context.Background(), 0)
	require.Equal(t, apperr.Invalid, apperr.KindOf(err))
}
