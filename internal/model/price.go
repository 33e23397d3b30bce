package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one immutable price observation of a product at a store
type PriceRecord struct {
	ID           string              `json:"id" db:"id"`
	ProductID    string              `json:"product_id" db:"product_id"`
	StoreID      string              `json:"store_id" db:"store_id"`
	RegularPrice decimal.NullDecimal `json:"regular_price" db:"regular_price"`
	SalePrice    decimal.NullDecimal `json:"sale_price" db:"sale_price"`
	UnitPrice    decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	OnSale       bool                `json:"on_sale" db:"on_sale"`
	PromoText    string              `json:"promo_text,omitempty" db:"promo_text"`
	CapturedAt   time.Time           `json:"captured_at" db:"captured_at"`
	InStock      bool                `json:"in_stock" db:"in_stock"`
	SourceURL    string              `json:"source_url,omitempty" db:"source_url"`
}

// EffectivePrice is the sale price when on sale and present, else the regular price
func (r *PriceRecord) EffectivePrice() decimal.NullDecimal {
	if r.OnSale && r.SalePrice.Valid {
		return r.SalePrice
	}
	return r.RegularPrice
}

// DiscountPercentage is (regular - sale) / regular * 100, rounded to 4 places
// before scaling. Zero when either price is missing or regular is zero.
func (r *PriceRecord) DiscountPercentage() float64 {
	if !r.RegularPrice.Valid || !r.SalePrice.Valid || r.RegularPrice.Decimal.IsZero() {
		return 0
	}
	diff := r.RegularPrice.Decimal.Sub(r.SalePrice.Decimal)
	return diff.DivRound(r.RegularPrice.Decimal, 4).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// ScrapedProduct is a raw listing as one store presents it
type ScrapedProduct struct {
	StoreProductID string              `json:"store_product_id"`
	Name           string              `json:"name"`
	Brand          string              `json:"brand,omitempty"`
	Size           string              `json:"size,omitempty"`
	Unit           string              `json:"unit,omitempty"`
	Category       string              `json:"category,omitempty"` // "code:name" or free text
	ImageURL       string              `json:"image_url,omitempty"`
	RegularPrice   decimal.NullDecimal `json:"regular_price"`
	EffectivePrice decimal.NullDecimal `json:"effective_price"`
	UnitPrice      decimal.NullDecimal `json:"unit_price"`
	OnSale         bool                `json:"on_sale"`
	PromoText      string              `json:"promo_text,omitempty"`
	InStock        bool                `json:"in_stock"`
	SourceURL      string              `json:"source_url,omitempty"`
}

// PriceDrop is a decrease in effective price between two observation windows
type PriceDrop struct {
	Product        *Product        `json:"product"`
	Store          *Store          `json:"store"`
	PreviousPrice  decimal.Decimal `json:"previous_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	DropAmount     decimal.Decimal `json:"drop_amount"`
	DropPercentage float64         `json:"drop_percentage"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// StorePrice is the latest effective price of a product at one store
type StorePrice struct {
	Store       *Store          `json:"store"`
	Price       decimal.Decimal `json:"price"`
	OnSale      bool            `json:"on_sale"`
	PromoText   string          `json:"promo_text,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
	SourceURL   string          `json:"source_url,omitempty"`
}

// PriceComparison lines up a product's latest prices across active stores
type PriceComparison struct {
	Product          *Product               `json:"product"`
	StorePrices      map[string]*StorePrice `json:"store_prices"`
	LowestPriceStore string                 `json:"lowest_price_store,omitempty"`
	LowestPrice      decimal.NullDecimal    `json:"lowest_price"`
}

// PricePoint is one entry of a product's price history
type PricePoint struct {
	Price     decimal.NullDecimal `json:"price"`
	OnSale    bool                `json:"on_sale"`
	Timestamp time.Time           `json:"timestamp"`
}

// PriceHistory is the deduplicated price series of a product at one store
type PriceHistory struct {
	Product     *Product     `json:"product"`
	Store       *Store       `json:"store"`
	PricePoints []PricePoint `json:"price_points"`
}

// DiscountedItem is a product currently sold below its regular price
type DiscountedItem struct {
	Product            *Product        `json:"product"`
	Store              *Store          `json:"store"`
	RegularPrice       decimal.Decimal `json:"regular_price"`
	SalePrice          decimal.Decimal `json:"sale_price"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	DiscountPercentage float64         `json:"discount_percentage"`
	PromoText          string          `json:"promo_text,omitempty"`
	CapturedAt         time.Time       `json:"captured_at"`
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
