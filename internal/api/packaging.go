package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jask/despacho/internal/apperr"
)

// Packages lists the catalog. An empty status returns every entry.
func (c *Client) Packages(ctx context.Context, status string) ([]Package, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out []Package
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/api/embalagens", Query: q}, &out)
	return out, err
}

func (c *Client) ActivePackages(ctx context.Context) ([]Package, error) {
	return c.Packages(ctx, "ativo")
}

func (c *Client) CreatePackage(ctx context.Context, in PackageInput) (Package, error) {
	if err := apperr.Validate("", in); err != nil {
		return Package{}, err
	}
	var out Package
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/api/embalagens", Body: in}, &out)
	return out, err
}

func (c *Client) UpdatePackage(ctx context.Context, id int, in PackageInput) (Package, error) {
	if err := apperr.Validate("", in); err != nil {
		return Package{}, err
	}
	var out Package
	err := c.call(ctx, Request{Method: http.MethodPut, Path: "/api/embalagens/" + strconv.Itoa(id), Body: in}, &out)
	return out, err
}

// DeactivatePackage soft-deletes a catalog entry.
func (c *Client) DeactivatePackage(ctx context.Context, id int) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: "/api/embalagens/" + strconv.Itoa(id)}, nil)
}
