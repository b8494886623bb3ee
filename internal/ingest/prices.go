package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/metrics"
	"github.com/elikochva/openprices/internal/xmlfile"
)

// priceTolerance is the absolute price difference below which two prices
// are considered equal; supplier files round inconsistently.
var priceTolerance = decimal.RequireFromString("0.01")

// maxQuantity clamps nonsense quantity values some stores publish.
var maxQuantity = decimal.NewFromInt(1000)

// parsedProduct is one product row of a prices file.
type parsedProduct struct {
	code     int64
	external bool
	name     string
	quantity decimal.Decimal
	unit     string
	price    decimal.Decimal
}

// parseProducts extracts every product of a prices file. Duplicate codes
// keep the last occurrence. Product elements are <item>, with <product>
// as the fallback a few chains switched to.
func parseProducts(root *xmlfile.Element) map[int64]parsedProduct {
	items := root.Iter("item")
	if len(items) == 0 {
		items = root.Iter("product")
	}

	products := make(map[int64]parsedProduct, len(items))
	for _, el := range items {
		code := el.AsInt64("itemcode")
		quantity := el.AsDecimal("quantity")
		if quantity.GreaterThan(maxQuantity) {
			quantity = decimal.Zero
		}
		products[code] = parsedProduct{
			code:     code,
			external: el.AsBool("itemtype") && len(strconv.FormatInt(code, 10)) >= 13,
			name:     el.AsString("itemname"),
			quantity: quantity,
			unit:     el.AsString("unitqty"),
			price:    el.AsDecimal("itemprice"),
		}
	}
	return products
}

// ParseStorePrices reconciles one store's prices file for one date into
// the database. The four stages run in order inside a single
// transaction: register unseen barcoded items, register unseen store
// products, reconcile price history intervals, and materialize current
// prices when the snapshot is today's.
//
// Snapshots are assumed to arrive in date order; feeding an older file
// after a newer one was reconciled corrupts interval boundaries.
func (p *Parser) ParseStorePrices(ctx context.Context, store *database.Store, root *xmlfile.Element, date time.Time) error {
	products := parseProducts(root)
	if len(products) == 0 {
		// Reconciliation still runs: every open interval of the store
		// counts as disappeared and closes at day-1.
		p.log.Warn().Int64("store", store.ID).Msg("prices file has no products")
	}
	day := truncateToDay(date)

	err := p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := p.registerItems(ctx, tx, products); err != nil {
			return err
		}
		idByCode, err := p.registerStoreProducts(ctx, tx, store, products)
		if err != nil {
			return err
		}
		if err := p.reconcileHistory(ctx, tx, store, products, idByCode, day); err != nil {
			return err
		}
		if day.Equal(truncateToDay(time.Now())) {
			if err := p.refreshCurrentPrices(ctx, tx, store); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reconciling store %d for %s: %w", store.ID, day.Format("2006-01-02"), err)
	}

	metrics.SnapshotsReconciled.Inc()
	return nil
}

// registerItems inserts barcoded items not yet in the items table.
// Internal (store-specific) codes never become items.
func (p *Parser) registerItems(ctx context.Context, tx bun.Tx, products map[int64]parsedProduct) error {
	var codes []int64
	for code, prod := range products {
		if prod.external {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil
	}

	var existing []database.Item
	if err := tx.NewSelect().
		Model(&existing).
		Column("code").
		Where("code IN (?)", bun.In(codes)).
		Scan(ctx); err != nil {
		return fmt.Errorf("loading existing items: %w", err)
	}
	known := make(map[int64]bool, len(existing))
	for _, it := range existing {
		known[it.Code] = true
	}

	var fresh []*database.Item
	for _, code := range codes {
		if known[code] {
			continue
		}
		prod := products[code]
		fresh = append(fresh, &database.Item{
			Code:     code,
			Name:     prod.name,
			Quantity: prod.quantity,
			Unit:     database.NormalizeUnit(prod.unit),
		})
	}
	if len(fresh) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&fresh).Exec(ctx); err != nil {
		return fmt.Errorf("inserting items: %w", err)
	}
	p.log.Debug().Int("items", len(fresh)).Msg("registered new items")
	return nil
}

// registerStoreProducts inserts products unseen at this store and
// returns the store's code -> store_product id mapping.
func (p *Parser) registerStoreProducts(ctx context.Context, tx bun.Tx, store *database.Store, products map[int64]parsedProduct) (map[int64]int64, error) {
	var existing []database.StoreProduct
	if err := tx.NewSelect().
		Model(&existing).
		Column("id", "code").
		Where("store_id = ?", store.ID).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading store products: %w", err)
	}
	idByCode := make(map[int64]int64, len(products))
	for _, sp := range existing {
		idByCode[sp.Code] = sp.ID
	}

	var fresh []*database.StoreProduct
	for code, prod := range products {
		if _, ok := idByCode[code]; ok {
			continue
		}
		fresh = append(fresh, &database.StoreProduct{
			StoreID:  store.ID,
			Code:     code,
			External: prod.external,
			Name:     prod.name,
			Quantity: prod.quantity.String(),
			Unit:     prod.unit,
		})
	}
	if len(fresh) > 0 {
		if _, err := tx.NewInsert().Model(&fresh).Exec(ctx); err != nil {
			return nil, fmt.Errorf("inserting store products: %w", err)
		}
		for _, sp := range fresh {
			idByCode[sp.Code] = sp.ID
		}
		p.log.Debug().Int("products", len(fresh)).Int64("store", store.ID).Msg("registered new store products")
	}
	return idByCode, nil
}

// reconcileHistory applies one day's snapshot to the price_history
// table: products without an open interval get one starting at day;
// open intervals for products missing from the snapshot close at day-1;
// products whose price moved beyond the tolerance close their interval
// at day-1 and open a new one at day.
func (p *Parser) reconcileHistory(ctx context.Context, tx bun.Tx, store *database.Store, products map[int64]parsedProduct, idByCode map[int64]int64, day time.Time) error {
	var open []database.PriceHistory
	if err := tx.NewSelect().
		Model(&open).
		Join("JOIN store_products AS sp ON sp.id = price_history.store_product_id").
		Where("sp.store_id = ?", store.ID).
		Where("price_history.end_date IS NULL").
		Scan(ctx); err != nil {
		return fmt.Errorf("loading open intervals: %w", err)
	}
	openByProduct := make(map[int64]*database.PriceHistory, len(open))
	for i := range open {
		openByProduct[open[i].StoreProductID] = &open[i]
	}

	parsedIDs := make(map[int64]bool, len(products))
	var newIntervals []*database.PriceHistory
	var closeIDs []int64

	for code, prod := range products {
		productID, ok := idByCode[code]
		if !ok {
			continue
		}
		parsedIDs[productID] = true

		current, hasOpen := openByProduct[productID]
		switch {
		case !hasOpen:
			newIntervals = append(newIntervals, &database.PriceHistory{
				StoreProductID: productID,
				StartDate:      day,
				Price:          prod.price,
			})
		case current.Price.Sub(prod.price).Abs().GreaterThan(priceTolerance):
			closeIDs = append(closeIDs, current.ID)
			newIntervals = append(newIntervals, &database.PriceHistory{
				StoreProductID: productID,
				StartDate:      day,
				Price:          prod.price,
			})
			metrics.PriceChanges.Inc()
		}
	}

	for productID, current := range openByProduct {
		if !parsedIDs[productID] {
			closeIDs = append(closeIDs, current.ID)
		}
	}

	if len(closeIDs) > 0 {
		yesterday := day.AddDate(0, 0, -1)
		if _, err := tx.NewUpdate().
			Model((*database.PriceHistory)(nil)).
			Set("end_date = ?", yesterday).
			Where("id IN (?)", bun.In(closeIDs)).
			Exec(ctx); err != nil {
			return fmt.Errorf("closing intervals: %w", err)
		}
		metrics.IntervalsClosed.Add(float64(len(closeIDs)))
	}
	if len(newIntervals) > 0 {
		if _, err := tx.NewInsert().Model(&newIntervals).Exec(ctx); err != nil {
			return fmt.Errorf("inserting intervals: %w", err)
		}
	}
	p.log.Debug().
		Int64("store", store.ID).
		Int("opened", len(newIntervals)).
		Int("closed", len(closeIDs)).
		Msg("reconciled price history")
	return nil
}

// refreshCurrentPrices rebuilds the store's current_prices rows from its
// open intervals. Delete-and-reinsert beats diffing at this table's
// size.
func (p *Parser) refreshCurrentPrices(ctx context.Context, tx bun.Tx, store *database.Store) error {
	if _, err := tx.NewDelete().
		Model((*database.CurrentPrice)(nil)).
		Where("store_product_id IN (SELECT id FROM store_products WHERE store_id = ?)", store.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("clearing current prices: %w", err)
	}

	var openNow []database.PriceHistory
	if err := tx.NewSelect().
		Model(&openNow).
		Join("JOIN store_products AS sp ON sp.id = price_history.store_product_id").
		Where("sp.store_id = ?", store.ID).
		Where("price_history.end_date IS NULL").
		Scan(ctx); err != nil {
		return fmt.Errorf("loading open intervals: %w", err)
	}
	if len(openNow) == 0 {
		return nil
	}

	current := make([]*database.CurrentPrice, 0, len(openNow))
	for _, ph := range openNow {
		current = append(current, &database.CurrentPrice{
			StoreProductID: ph.StoreProductID,
			Price:          ph.Price,
		})
	}
	if _, err := tx.NewInsert().Model(&current).Exec(ctx); err != nil {
		return fmt.Errorf("inserting current prices: %w", err)
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
