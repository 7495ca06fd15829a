package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// the backend reads money fields as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

// FlexString accepts either a JSON string or a JSON number. Several backend
// fields (loja_id, numero_loja, id_bling) come back as both depending on origin.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
	default:
		*f = FlexString(s)
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

// User is the authenticated operator.
type User struct {
	ID     int    `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"nome"`
	Role   string `json:"categoria"`
	Status string `json:"status,omitempty"`
}

func (u User) IsAdmin() bool { return strings.EqualFold(u.Role, "ADMIN") }

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"senha" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// Package is a packaging catalog entry (embalagem).
type Package struct {
	ID       int             `json:"id"`
	Name     string          `json:"nome"`
	UnitCost decimal.Decimal `json:"custo"`
	Height   float64         `json:"altura"`
	Width    float64         `json:"largura"`
	Length   float64         `json:"comprimento"`
	Weight   *float64        `json:"peso"`
	Stock    int             `json:"estoque"`
	Status   string          `json:"status"`
}

func (p Package) Active() bool { return p.Status == "" || p.Status == "ativo" }

// PackageInput creates or updates a catalog entry.
type PackageInput struct {
	Name   string          `json:"nome" validate:"required"`
	Cost   decimal.Decimal `json:"custo"`
	Height float64         `json:"altura" validate:"gte=0"`
	Width  float64         `json:"largura" validate:"gte=0"`
	Length float64         `json:"comprimento" validate:"gte=0"`
	Weight *float64        `json:"peso"`
	Stock  int             `json:"estoque" validate:"gte=0"`
}

// OrderPackage is one package line stored on an order.
type OrderPackage struct {
	ID        int      `json:"id"`
	PackageID int      `json:"embalagem_id"`
	Package   *Package `json:"embalagem"`
	Quantity  int      `json:"quantidade"`
}

// PackageLine is the wire form of a package selection.
type PackageLine struct {
	PackageID int `json:"embalagem_id"`
	Quantity  int `json:"quantidade"`
}

type Order struct {
	ID             int                 `json:"id"`
	Number         string              `json:"numero_pedido"`
	BlingID        FlexString          `json:"id_bling"`
	Marketplace    string              `json:"marketplace"`
	Status         string              `json:"status"`
	Freight        decimal.NullDecimal `json:"frete_cliente"`
	Carrier        string              `json:"transportadora"`
	TrackingCode   string              `json:"tracking_code"`
	Weight         decimal.NullDecimal `json:"peso"`
	StoreNumber    FlexString          `json:"numero_loja"`
	StoreID        FlexString          `json:"loja_id"`
	StoreName      string              `json:"loja_nome"`
	LegacyPackage  *Package            `json:"embalagem"`
	LegacyQuantity int                 `json:"quantidade_embalagem"`
	Packages       []OrderPackage      `json:"embalagens"`
	Notes          string              `json:"observacoes"`
	OpenedAt       string              `json:"data_abertura"`
	FinalizedAt    string              `json:"data_finalizacao"`
	ReservedBy     *User               `json:"usuario_reservado"`
	ShippingCost   decimal.NullDecimal `json:"custo_mandae"`
}

// Store returns the best label for the sales channel.
func (o Order) Store() string {
	switch {
	case o.StoreName != "":
		return o.StoreName
	case o.StoreNumber != "":
		return o.StoreNumber.String()
	default:
		return o.Marketplace
	}
}

type OrderPage struct {
	Orders     []Order `json:"pedidos"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
	LastSync   string  `json:"ultima_sincronizacao"`
}

// ListParams are the query parameters of GET /api/pedidos.
type ListParams struct {
	Page        int
	PerPage     int
	Status      string
	Marketplace string
	Store       string
	Search      string
	OrderBy     string
	Sort        string
	Sync        bool
}

// Encode renders the query in a fixed order: paging first, then sort, then filters.
func (p ListParams) Encode() string {
	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	if p.Page > 0 {
		add("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		add("per_page", strconv.Itoa(p.PerPage))
	}
	if p.OrderBy != "" {
		add("order_by", p.OrderBy)
	}
	if p.Sort != "" {
		add("sort", p.Sort)
	}
	if p.Marketplace != "" {
		add("marketplace", p.Marketplace)
	}
	if p.Store != "" {
		add("loja", p.Store)
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		add("busca", s)
	}
	if p.Status != "" {
		add("status", p.Status)
	}
	if p.Sync {
		add("sincronizar", "1")
	}
	return b.String()
}

// ExternalInfo is the Bling lookup used before finalizing an order.
type ExternalInfo struct {
	StoreNumber  FlexString          `json:"numero_loja"`
	StoreID      FlexString          `json:"loja_id"`
	Freight      decimal.NullDecimal `json:"frete"`
	Carrier      FlexString          `json:"contato_nome"`
	TrackingCode FlexString          `json:"codigo_rastreamento"`
}

// OrderUpdate is the body of PUT /api/pedidos/{numero}.
type OrderUpdate struct {
	Marketplace  string              `json:"marketplace"`
	Freight      decimal.Decimal     `json:"frete_cliente"`
	Weight       decimal.NullDecimal `json:"peso"`
	Carrier      *string             `json:"transportadora"`
	TrackingCode *string             `json:"tracking_code"`
}

type FinalizeRequest struct {
	Packages        []PackageLine    `json:"embalagens"`
	Notes           string           `json:"observacoes"`
	LegacyPackageID *int             `json:"id_embalagem,omitempty"`
	LegacyQuantity  *int             `json:"quantidade_embalagem,omitempty"`
	ShippingCost    *decimal.Decimal `json:"custo_mandae,omitempty"`
}

// EditFinalizedRequest only carries fields the operator filled in.
type EditFinalizedRequest struct {
	Packages     []PackageLine    `json:"embalagens"`
	Marketplace  *string          `json:"marketplace,omitempty"`
	Freight      *decimal.Decimal `json:"frete_cliente,omitempty"`
	Weight       *decimal.Decimal `json:"peso,omitempty"`
	Carrier      *string          `json:"transportadora,omitempty"`
	TrackingCode *string          `json:"tracking_code,omitempty"`
	ShippingCost *decimal.Decimal `json:"custo_mandae,omitempty"`
}

type Reservation struct {
	Message string `json:"mensagem"`
	Order   *Order `json:"pedido"`
}

type FinalizeResult struct {
	Message string `json:"mensagem"`
	Order   *Order `json:"pedido"`
}

// BlingOrder is the lookup result used to add an order manually.
type BlingOrder struct {
	Number       FlexString          `json:"numero_pedido"`
	BlingID      FlexString          `json:"id_bling"`
	Freight      decimal.NullDecimal `json:"frete_cliente"`
	Carrier      string              `json:"transportadora"`
	TrackingCode string              `json:"tracking_code"`
	StoreID      FlexString          `json:"loja_id"`
	StoreNumber  FlexString          `json:"numero_loja"`
	StoreName    string              `json:"loja_nome"`
	Marketplace  string              `json:"marketplace"`
}

type NewOrder struct {
	Number      string          `json:"numero_pedido" validate:"required"`
	Marketplace string          `json:"marketplace" validate:"required"`
	Freight     decimal.Decimal `json:"frete_cliente"`
	BlingID     string          `json:"id_bling,omitempty"`
	StoreID     string          `json:"loja_id,omitempty"`
	StoreNumber string          `json:"numero_loja,omitempty"`
}

type TrackingSync struct {
	Message      string `json:"mensagem"`
	TrackingCode string `json:"tracking_code"`
}

type BatchTrackingResult struct {
	Updated int `json:"atualizados"`
	Errors  []struct {
		Number string `json:"numero_pedido"`
		Error  string `json:"erro"`
	} `json:"erros"`
}

type SpreadsheetResult struct {
	Message string `json:"mensagem"`
	Updated int    `json:"atualizados"`
}

type Message struct {
	Message string `json:"mensagem"`
}

// Dashboard mirrors GET /api/dashboard.
type Dashboard struct {
	OpenOrders int `json:"pedidos_abertos"`
	Today      struct {
		Date        string          `json:"data"`
		TotalOrders int             `json:"total_pedidos"`
		TotalCost   decimal.Decimal `json:"custo_total"`
		Freight     decimal.Decimal `json:"frete_total"`
		FreightReal decimal.Decimal `json:"frete_real_total"`
		NetGain     decimal.Decimal `json:"ganho_perda_liquido"`
	} `json:"hoje"`
	Yesterday struct {
		TotalOrders int `json:"total_pedidos"`
	} `json:"ontem"`
	Accumulated struct {
		Total        int             `json:"total"`
		DailyAverage decimal.Decimal `json:"media_diaria"`
		DailyGoal    int             `json:"meta_diaria"`
		GoalPercent  decimal.Decimal `json:"percentual_meta"`
	} `json:"acumulado"`
	Channels         []ChannelSummary `json:"por_canal"`
	Daily            []DailyPoint     `json:"grafico_diario"`
	PackagingCostAll decimal.Decimal  `json:"custo_embalagem_total_geral"`
	Packaging        struct {
		UsedThisMonth int             `json:"usadas_mes"`
		Available     int             `json:"total_disponiveis"`
		MonthValue    decimal.Decimal `json:"valor_total_mes"`
		Breakdown     []PackageUsage  `json:"detalhadas"`
	} `json:"embalagens"`
}

type ChannelSummary struct {
	Channel       string          `json:"canal"`
	Quantity      int             `json:"quantidade"`
	Freight       decimal.Decimal `json:"frete_total"`
	FreightReal   decimal.Decimal `json:"frete_real_total"`
	PackagingCost decimal.Decimal `json:"custo_embalagem_total"`
	NetGain       decimal.Decimal `json:"ganho_perda_liquido"`
	AverageGain   decimal.Decimal `json:"ganho_perda_medio"`
}

type DailyPoint struct {
	Day      int    `json:"dia"`
	Date     string `json:"data"`
	Quantity int    `json:"quantidade"`
}

type PackageUsage struct {
	ID        int             `json:"id"`
	Name      string          `json:"nome"`
	Quantity  int             `json:"quantidade"`
	UnitCost  decimal.Decimal `json:"custo_unitario"`
	TotalCost decimal.Decimal `json:"valor_total"`
}

type DailyGoal struct {
	DailyGoal int    `json:"meta_diaria"`
	Message   string `json:"mensagem,omitempty"`
}

type DailyReport struct {
	Date         string          `json:"data"`
	TotalOrders  int             `json:"total_pedidos"`
	TotalCost    decimal.Decimal `json:"custo_total"`
	Freight      decimal.Decimal `json:"frete_total"`
	FreightReal  decimal.Decimal `json:"frete_real_total"`
	Gain         decimal.Decimal `json:"ganho_total"`
	Loss         decimal.Decimal `json:"perda_total"`
	AvgMargin    decimal.Decimal `json:"margem_media"`
	PackagesUsed []PackageUsage  `json:"embalagens_utilizadas"`
}

type PeriodReport struct {
	Start        string          `json:"inicio"`
	End          string          `json:"fim"`
	Days         int             `json:"dias"`
	TotalOrders  int             `json:"total_pedidos"`
	TotalCost    decimal.Decimal `json:"custo_total"`
	Freight      decimal.Decimal `json:"frete_total"`
	FreightReal  decimal.Decimal `json:"frete_real_total"`
	NetGain      decimal.Decimal `json:"ganho_perda_liquido"`
	PackagesUsed []PackageUsage  `json:"embalagens_utilizadas"`
}

type ChannelReport struct {
	Start    string `json:"inicio"`
	End      string `json:"fim"`
	Channels []struct {
		Channel     string          `json:"canal"`
		TotalOrders int             `json:"total_pedidos"`
		TotalCost   decimal.Decimal `json:"custo_total"`
		Freight     decimal.Decimal `json:"frete_total"`
		FreightReal decimal.Decimal `json:"frete_real_total"`
		NetGain     decimal.Decimal `json:"ganho_perda_liquido"`
		Boxes       []PackageUsage  `json:"caixas"`
	} `json:"canais"`
}

type IntegrationStatus struct {
	Connected bool `json:"conectado"`
	HasToken  bool `json:"tem_token"`
}

// Download is a binary response (Excel exports).
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}
