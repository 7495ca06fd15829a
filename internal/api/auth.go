package api

import (
	"context"
	"net/http"

	"github.com/jask/despacho/internal/apperr"
)

// Login exchanges credentials for a token. The response is returned as decoded;
// the session manager decides whether it is complete.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	if err := apperr.Validate("", creds); err != nil {
		return LoginResponse{}, err
	}
	var out LoginResponse
	err := c.call(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/api/auth/login",
		Body:      creds,
		Anonymous: true,
	}, &out)
	return out, err
}
