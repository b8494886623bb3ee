package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/xmlfile"
)

var hundred = decimal.NewFromInt(100)

// parsedPromo is one promotion of a promos file with its attachments.
type parsedPromo struct {
	code         int64
	description  string
	start, end   time.Time
	productCodes []int64
	restrictions []database.Restriction
	priceFunc    *database.PriceFunction
}

// parsePromos extracts every promotion of a promos file.
func parsePromos(root *xmlfile.Element, fileDate time.Time) []parsedPromo {
	var promos []parsedPromo
	for _, el := range root.Iter("promotion") {
		promo := parsedPromo{
			code:        el.AsInt64("promotionid"),
			description: el.AsString("promotiondescription"),
			start:       promoDate(el, "promotionstartdate", fileDate),
			end:         promoDate(el, "promotionenddate", fileDate),
		}
		for _, items := range el.Iter("promotionitems") {
			for _, item := range items.Iter("item") {
				if code := item.AsInt64("itemcode"); code != 0 {
					promo.productCodes = append(promo.productCodes, code)
				}
			}
		}
		promo.restrictions = parseRestrictions(el)
		promo.priceFunc = parsePriceFunction(el)
		promos = append(promos, promo)
	}
	return promos
}

func promoDate(el *xmlfile.Element, tag string, fallback time.Time) time.Time {
	if raw := el.AsString(tag); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return truncateToDay(fallback)
}

// parseRestrictions keeps only meaningful restrictions: zero quantities
// and empty club lists are noise, not constraints.
func parseRestrictions(el *xmlfile.Element) []database.Restriction {
	var out []database.Restriction
	if v := int64(el.AsInt("minqty")); v != 0 {
		amount := v
		out = append(out, database.Restriction{Kind: database.RestrictionMinQuantity, Amount: &amount})
	}
	if v := int64(el.AsInt("maxqty")); v != 0 {
		amount := v
		out = append(out, database.Restriction{Kind: database.RestrictionMaxQuantity, Amount: &amount})
	}
	for _, club := range el.Iter("clubs") {
		if v := int64(club.AsInt("clubid")); v != 0 {
			amount := v
			out = append(out, database.Restriction{Kind: database.RestrictionClubID, Amount: &amount})
		}
	}
	return out
}

// parsePriceFunction reads the discount formula. Percentage discounts
// published above 100 are basis points and get divided down.
func parsePriceFunction(el *xmlfile.Element) *database.PriceFunction {
	kind := database.PriceFunctionKind(el.AsInt("discounttype"))
	switch kind {
	case database.PriceFunctionPercentage:
		rate := el.AsDecimal("discountrate")
		if rate.GreaterThan(hundred) {
			rate = rate.Div(hundred)
		}
		return &database.PriceFunction{Kind: kind, Value: rate}
	case database.PriceFunctionTotalPrice:
		return &database.PriceFunction{Kind: kind, Value: el.AsDecimal("discountedprice")}
	}
	return nil
}

// ParseStorePromos persists one store's promotions file. Promotions
// already registered for the store (by internal code) are skipped;
// products the store never listed are dropped from the attachment list.
func (p *Parser) ParseStorePromos(ctx context.Context, store *database.Store, root *xmlfile.Element, date time.Time) error {
	promos := parsePromos(root, date)
	if len(promos) == 0 {
		p.log.Warn().Int64("store", store.ID).Msg("promos file has no promotions")
		return nil
	}

	err := p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var existing []database.Promotion
		if err := tx.NewSelect().
			Model(&existing).
			Column("internal_code").
			Where("store_id = ?", store.ID).
			Scan(ctx); err != nil {
			return fmt.Errorf("loading existing promotions: %w", err)
		}
		known := make(map[int64]bool, len(existing))
		for _, pr := range existing {
			known[pr.Code] = true
		}

		var products []database.StoreProduct
		if err := tx.NewSelect().
			Model(&products).
			Column("id", "code").
			Where("store_id = ?", store.ID).
			Scan(ctx); err != nil {
			return fmt.Errorf("loading store products: %w", err)
		}
		idByCode := make(map[int64]int64, len(products))
		for _, sp := range products {
			idByCode[sp.Code] = sp.ID
		}

		added := 0
		for _, promo := range promos {
			if known[promo.code] {
				continue
			}
			if err := p.insertPromotion(ctx, tx, store, promo, idByCode); err != nil {
				return err
			}
			known[promo.code] = true
			added++
		}
		p.log.Info().Int64("store", store.ID).Int("promotions", added).Msg("registered promotions")
		return nil
	})
	if err != nil {
		return fmt.Errorf("parsing promos for store %d: %w", store.ID, err)
	}
	return nil
}

func (p *Parser) insertPromotion(ctx context.Context, tx bun.Tx, store *database.Store, promo parsedPromo, idByCode map[int64]int64) error {
	row := &database.Promotion{
		StoreID:     store.ID,
		Code:        promo.code,
		Description: promo.description,
		StartDate:   promo.start,
		EndDate:     promo.end,
	}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("inserting promotion %d: %w", promo.code, err)
	}

	var links []*database.PromotionProduct
	seen := map[int64]bool{}
	for _, code := range promo.productCodes {
		productID, ok := idByCode[code]
		if !ok || seen[productID] {
			continue
		}
		seen[productID] = true
		links = append(links, &database.PromotionProduct{
			PromotionID:    row.ID,
			StoreProductID: productID,
		})
	}
	if len(links) > 0 {
		if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
			return fmt.Errorf("inserting promotion products: %w", err)
		}
	}

	if len(promo.restrictions) > 0 {
		restrictions := make([]*database.Restriction, len(promo.restrictions))
		for i := range promo.restrictions {
			r := promo.restrictions[i]
			r.PromotionID = row.ID
			restrictions[i] = &r
		}
		if _, err := tx.NewInsert().Model(&restrictions).Exec(ctx); err != nil {
			return fmt.Errorf("inserting restrictions: %w", err)
		}
	}

	if promo.priceFunc != nil {
		fn := *promo.priceFunc
		fn.PromotionID = row.ID
		if _, err := tx.NewInsert().Model(&fn).Exec(ctx); err != nil {
			return fmt.Errorf("inserting price function: %w", err)
		}
	}
	return nil
}
