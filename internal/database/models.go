package database

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// StoreType classifies a store by the storetype tag of the stores file.
type StoreType int

const (
	StoreTypeUnknown StoreType = iota
	StoreTypePhysical
	StoreTypeWeb
	StoreTypeBoth
)

// ParseStoreType maps the numeric storetype tag to the enum. Values
// outside 1..3 are unknown.
func ParseStoreType(v int) StoreType {
	switch v {
	case 1:
		return StoreTypePhysical
	case 2:
		return StoreTypeWeb
	case 3:
		return StoreTypeBoth
	}
	return StoreTypeUnknown
}

// Chain is a retail chain (or subchain) as published by the government
// catalog and refined by each chain's stores file. The (full_id,
// subchain_id) pair is the natural key; the display name may be rewritten
// by later stores files.
type Chain struct {
	bun.BaseModel `bun:"table:chains"`

	ID         int64  `bun:"id,pk,autoincrement"`
	FullID     int64  `bun:"full_id,notnull,unique:chains_full_sub"`
	SubchainID *int   `bun:"subchain_id,unique:chains_full_sub"`
	Name       string `bun:"name,notnull"`

	Stores    []*Store        `bun:"rel:has-many,join:id=chain_id"`
	WebAccess *ChainWebAccess `bun:"rel:has-one,join:id=chain_id"`
}

// ChainWebAccess holds the portal URL and credentials for one chain.
// Credentials default to empty strings, never NULL.
type ChainWebAccess struct {
	bun.BaseModel `bun:"table:chain_web_access"`

	ChainID  int64  `bun:"chain_id,pk"`
	URL      string `bun:"url,notnull"`
	Username string `bun:"username,notnull,default:''"`
	Password string `bun:"password,notnull,default:''"`
}

// Store is one physical or web store of a chain. StoreID is the
// chain-local id used in file names; the surrogate ID is ours.
type Store struct {
	bun.BaseModel `bun:"table:stores"`

	ID      int64     `bun:"id,pk,autoincrement"`
	ChainID int64     `bun:"chain_id,notnull,unique:stores_chain_store"`
	StoreID int       `bun:"store_id,notnull,unique:stores_chain_store"`
	Name    string    `bun:"name"`
	City    string    `bun:"city"`
	Address string    `bun:"address"`
	Type    StoreType `bun:"store_type,notnull,default:0"`

	Chain *Chain `bun:"rel:belongs-to,join:chain_id=id"`
}

// Item is a nationally-barcoded product, shared across chains. Only
// external products (manufacturer barcodes of 13+ digits) become Items;
// chain-internal codes stay StoreProducts without an Item link.
type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID       int64           `bun:"id,pk,autoincrement"`
	Code     int64           `bun:"code,notnull,unique"`
	Name     string          `bun:"name"`
	Quantity decimal.Decimal `bun:"quantity,type:decimal(12,2)"`
	Unit     Unit            `bun:"unit,notnull,default:0"`
}

// StoreProduct is one product as listed by one store. The (store, code)
// pair is unique; ItemID is filled by cross-snapshot linking for
// external products.
type StoreProduct struct {
	bun.BaseModel `bun:"table:store_products"`

	ID       int64  `bun:"id,pk,autoincrement"`
	StoreID  int64  `bun:"store_id,notnull,unique:store_products_store_code"`
	Code     int64  `bun:"code,notnull,unique:store_products_store_code"`
	ItemID   *int64 `bun:"item_id"`
	External bool   `bun:"external,notnull,default:false"`
	Name     string `bun:"name"`
	Quantity string `bun:"quantity"`
	Unit     string `bun:"unit"`

	Store *Store `bun:"rel:belongs-to,join:store_id=id"`
	Item  *Item  `bun:"rel:belongs-to,join:item_id=id"`
}

// PriceHistory is one price interval of a store product. EndDate is NULL
// while the interval is open; (store_product_id, start_date) is unique so
// re-running a day's snapshot is idempotent.
type PriceHistory struct {
	bun.BaseModel `bun:"table:price_history"`

	ID             int64           `bun:"id,pk,autoincrement"`
	StoreProductID int64           `bun:"store_product_id,notnull,unique:price_history_product_start"`
	StartDate      time.Time       `bun:"start_date,notnull,unique:price_history_product_start"`
	EndDate        *time.Time      `bun:"end_date"`
	Price          decimal.Decimal `bun:"price,notnull,type:decimal(12,2)"`

	StoreProduct *StoreProduct `bun:"rel:belongs-to,join:store_product_id=id"`
}

// CurrentPrice is the materialized open price of a store product,
// maintained only for today's snapshots.
type CurrentPrice struct {
	bun.BaseModel `bun:"table:current_prices"`

	StoreProductID int64           `bun:"store_product_id,pk"`
	Price          decimal.Decimal `bun:"price,notnull,type:decimal(12,2)"`
}

// Promotion is one promotion as published by one store.
type Promotion struct {
	bun.BaseModel `bun:"table:promotions"`

	ID          int64     `bun:"id,pk,autoincrement"`
	StoreID     int64     `bun:"store_id,notnull,unique:promotions_store_code"`
	Code        int64     `bun:"internal_code,notnull,unique:promotions_store_code"`
	Description string    `bun:"description"`
	StartDate   time.Time `bun:"start_date,notnull"`
	EndDate     time.Time `bun:"end_date,notnull"`

	Store *Store `bun:"rel:belongs-to,join:store_id=id"`
}

// PromotionProduct links a promotion to a store product it covers.
type PromotionProduct struct {
	bun.BaseModel `bun:"table:promotion_products"`

	PromotionID    int64 `bun:"promotion_id,pk"`
	StoreProductID int64 `bun:"store_product_id,pk"`
}

// RestrictionKind enumerates promotion restrictions.
type RestrictionKind int

const (
	RestrictionMinQuantity RestrictionKind = iota + 1
	RestrictionMaxQuantity
	RestrictionBasketPrice
	RestrictionClubID
	RestrictionSpecificItem
)

// Restriction is one restriction attached to a promotion. Amount carries
// quantity/amount kinds; StoreProductID carries gift-product kinds.
type Restriction struct {
	bun.BaseModel `bun:"table:restrictions"`

	ID             int64           `bun:"id,pk,autoincrement"`
	PromotionID    int64           `bun:"promotion_id,notnull"`
	Kind           RestrictionKind `bun:"kind,notnull"`
	Amount         *int64          `bun:"amount"`
	StoreProductID *int64          `bun:"store_product_id"`
}

// PriceFunctionKind enumerates how a promotion's discount applies:
// a percentage off or a total discounted price.
type PriceFunctionKind int

const (
	PriceFunctionPercentage PriceFunctionKind = iota
	PriceFunctionTotalPrice
)

// PriceFunction is the discount formula of a promotion, at most one per
// promotion.
type PriceFunction struct {
	bun.BaseModel `bun:"table:price_functions"`

	PromotionID int64             `bun:"promotion_id,pk"`
	Kind        PriceFunctionKind `bun:"kind,notnull"`
	Value       decimal.Decimal   `bun:"value,notnull,type:decimal(12,2)"`
}

// Models lists every mapped model in table-creation order.
func Models() []interface{} {
	return []interface{}{
		(*Chain)(nil),
		(*ChainWebAccess)(nil),
		(*Store)(nil),
		(*Item)(nil),
		(*StoreProduct)(nil),
		(*PriceHistory)(nil),
		(*CurrentPrice)(nil),
		(*Promotion)(nil),
		(*PromotionProduct)(nil),
		(*Restriction)(nil),
		(*PriceFunction)(nil),
	}
}
