package workflow

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/packaging"
)

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// Notice is the inline message shown above the form.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Draft is the form state of one finalization. Text fields hold what the operator
// typed; they are parsed only when the order is submitted.
type Draft struct {
	OrderNumber         string
	Reserved            bool
	ExternalInfoFetched bool

	Marketplace  string
	Freight      string
	Weight       string
	Carrier      string
	TrackingCode string
	Notes        string
	ShippingCost string

	Packages *packaging.Editor

	Order   api.Order
	Catalog []api.Package
	Stores  []string
	Notice  Notice
}

func (d *Draft) clone() Draft {
	out := *d
	if d.Packages != nil {
		out.Packages = d.Packages.Clone()
	}
	out.Catalog = append([]api.Package(nil), d.Catalog...)
	out.Stores = append([]string(nil), d.Stores...)
	return out
}

// prefill copies the stored order into the form.
func (d *Draft) prefill(o api.Order, catalog []api.Package, stores []string) {
	d.Order = o
	d.Catalog = catalog
	d.Stores = stores
	d.Marketplace = o.Marketplace
	d.Freight = decimalText(o.Freight)
	d.Weight = decimalText(o.Weight)
	d.Carrier = o.Carrier
	d.TrackingCode = o.TrackingCode
	d.Packages = packaging.FromOrder(o)
}

// applyExternal fills the fields the lookup returned and names them.
func (d *Draft) applyExternal(info *api.ExternalInfo) []string {
	if info == nil {
		return nil
	}
	var filled []string
	if info.Freight.Valid {
		d.Freight = info.Freight.Decimal.String()
		filled = append(filled, "Frete")
	}
	if s := strings.TrimSpace(info.TrackingCode.String()); s != "" {
		d.TrackingCode = s
		filled = append(filled, "Código de rastreamento")
	}
	if s := strings.TrimSpace(info.Carrier.String()); s != "" {
		d.Carrier = s
		filled = append(filled, "Transportadora")
	}
	switch {
	case strings.TrimSpace(info.StoreNumber.String()) != "":
		d.Marketplace = strings.TrimSpace(info.StoreNumber.String())
		filled = append(filled, "Marketplace")
	case strings.TrimSpace(info.StoreID.String()) != "":
		d.Marketplace = strings.TrimSpace(info.StoreID.String())
		filled = append(filled, "Marketplace")
	}
	return filled
}

const defaultMarketplace = "site"

// orderUpdate is the first submission step.
func (d *Draft) orderUpdate() api.OrderUpdate {
	u := api.OrderUpdate{
		Marketplace:  strings.TrimSpace(d.Marketplace),
		Freight:      ParseMoney(d.Freight).Decimal,
		Weight:       ParseMoney(d.Weight),
		Carrier:      optional(d.Carrier),
		TrackingCode: optional(d.TrackingCode),
	}
	if u.Marketplace == "" {
		u.Marketplace = defaultMarketplace
	}
	return u
}

// finalizeRequest is the second submission step. A single package line is also
// sent in the legacy single-package fields.
func (d *Draft) finalizeRequest(lines []api.PackageLine) api.FinalizeRequest {
	req := api.FinalizeRequest{Packages: lines, Notes: d.Notes}
	if len(lines) == 1 {
		id, qty := lines[0].PackageID, lines[0].Quantity
		req.LegacyPackageID, req.LegacyQuantity = &id, &qty
	}
	if c := ParseMoney(d.ShippingCost); c.Valid && !c.Decimal.IsNegative() {
		req.ShippingCost = &c.Decimal
	}
	return req
}

// ParseMoney reads a decimal typed with either a dot or a comma. Blank or
// unparseable input is invalid.
func ParseMoney(s string) decimal.NullDecimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

func decimalText(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.String()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
