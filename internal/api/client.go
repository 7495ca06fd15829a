// Package api is the HTTP client for the logistics backend. Every call goes through
// Client.Do, which attaches the bearer token, retries per the retry policy and ends
// the session when the backend rejects it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/logging"
	"github.com/jask/despacho/internal/retry"
)

// Session is what the client needs from the session owner.
type Session interface {
	Token() string
	// Terminate clears the session after the backend rejected it.
	Terminate(reason error)
}

type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	session Session
	log     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithPolicy(p retry.Policy) Option { return func(c *Client) { c.policy = p } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithSession(s Session) Option { return func(c *Client) { c.session = s } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  retry.Default(),
		log:     logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UseSession attaches the session owner after construction; the session manager
// itself needs a client to log in.
func (c *Client) UseSession(s Session) { c.session = s }

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// RawQuery is used as is when Query is empty.
	RawQuery string
	// Body is JSON-encoded when RawBody is nil.
	Body        any
	RawBody     []byte
	ContentType string
	Header      http.Header
	// Anonymous skips the bearer token and the session termination on 401/422.
	Anonymous bool
}

// Do sends the request and returns the raw response. The caller owns the body.
// A 429 that survives every retry is returned as a response, not an error.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	body := req.RawBody
	contentType := req.ContentType
	if body == nil && req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		body = b
	}
	if contentType == "" {
		contentType = "application/json"
	}

	target := c.baseURL + req.Path
	switch {
	case len(req.Query) > 0:
		target += "?" + req.Query.Encode()
	case req.RawQuery != "":
		target += "?" + req.RawQuery
	}
	requestID := uuid.NewString()

	policy := c.policy
	policy.Notify = func(attempt int, resp *http.Response, err error, wait time.Duration) {
		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
		}
		if resp != nil {
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		c.log.LogAttrs(ctx, slog.LevelWarn, "api_retry", attrs...)
	}

	resp, err := policy.Do(ctx, func(attempt int) (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		hr, err := http.NewRequestWithContext(ctx, req.Method, target, rd)
		if err != nil {
			return nil, err
		}
		hr.Header.Set("Content-Type", contentType)
		hr.Header.Set("X-Request-ID", requestID)
		if !req.Anonymous && c.session != nil {
			if tok := c.session.Token(); tok != "" {
				hr.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		for k, vs := range req.Header {
			hr.Header.Del(k)
			for _, v := range vs {
				hr.Header.Add(k, v)
			}
		}

		start := time.Now()
		r, err := c.http.Do(hr)
		c.logRequest(ctx, requestID, req, attempt, r, err, time.Since(start))
		return r, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperr.NetworkErr(err)
	}

	if !req.Anonymous {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			drain(resp)
			return nil, c.terminate(apperr.SessionExpiredErr())
		case http.StatusUnprocessableEntity:
			drain(resp)
			return nil, c.terminate(apperr.InvalidSessionErr())
		}
	}
	return resp, nil
}

func (c *Client) terminate(err *apperr.AppError) error {
	if c.session != nil {
		c.session.Terminate(err)
	}
	return err
}

func (c *Client) logRequest(ctx context.Context, id string, req Request, attempt int, resp *http.Response, err error, latency time.Duration) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("request_id", id),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("attempt", attempt),
		slog.Duration("latency", latency),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
		if resp.StatusCode >= 500 {
			level = slog.LevelError
		} else if resp.StatusCode >= 400 {
			level = slog.LevelWarn
		}
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.log.LogAttrs(ctx, level, "api_request", attrs...)
}

// call runs req and decodes a 2xx JSON body into out (when out is non-nil).
// Non-2xx responses become *apperr.AppError carrying the backend message.
func (c *Client) call(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.NetworkErr(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err))
	}
	return nil
}

func (c *Client) download(ctx context.Context, req Request, fallbackName string) (Download, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Download{}, err
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Download{}, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, apperr.NetworkErr(err)
	}
	name := fallbackName
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return Download{Filename: name, ContentType: resp.Header.Get("Content-Type"), Body: data}, nil
}

type errorBody struct {
	Erro     string `json:"erro"`
	Error    string `json:"error"`
	Mensagem string `json:"mensagem"`
	Msg      string `json:"msg"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := firstNonEmpty(eb.Erro, eb.Error, eb.Mensagem, eb.Msg)

	ae := &apperr.AppError{Kind: kindForStatus(resp.StatusCode), PublicMsg: msg, Status: resp.StatusCode}
	if msg == "" {
		ae.PublicMsg = defaultMessageFor(ae.Kind)
	}
	ae.Err = errors.New(http.StatusText(resp.StatusCode))
	return ae
}

func kindForStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusBadRequest:
		return apperr.Invalid
	case status == http.StatusUnauthorized:
		return apperr.Unauthorized
	case status == http.StatusForbidden:
		return apperr.Forbidden
	case status == http.StatusNotFound:
		return apperr.NotFound
	case status == http.StatusConflict:
		return apperr.Conflict
	case status == http.StatusUnprocessableEntity:
		return apperr.Invalid
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited
	default:
		return apperr.Internal
	}
}

func defaultMessageFor(k apperr.Kind) string {
	switch k {
	case apperr.RateLimited:
		return "Muitas requisições. Tente novamente em instantes."
	case apperr.Forbidden:
		return "Acesso negado."
	case apperr.NotFound:
		return "Não encontrado."
	default:
		return "Erro na requisição."
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func escape(s string) string { return url.PathEscape(s) }
