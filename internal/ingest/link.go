package ingest

import (
	"context"
	"fmt"

	"github.com/elikochva/openprices/internal/database"
)

// defaultLinkPageSize bounds how many unlinked products are loaded per
// batch.
const defaultLinkPageSize = 100000

// LinkItems connects external store products to their shared Item rows
// by barcode. Only products still unlinked are touched, in id-ordered
// batches, so the call is incremental and safe to re-run. Products whose
// barcode has no Item yet stay unlinked for a later run.
func (p *Parser) LinkItems(ctx context.Context, pageSize int) error {
	if pageSize <= 0 {
		pageSize = defaultLinkPageSize
	}

	var items []database.Item
	if err := p.db.NewSelect().
		Model(&items).
		Column("id", "code").
		Scan(ctx); err != nil {
		return fmt.Errorf("loading item codes: %w", err)
	}
	itemByCode := make(map[int64]int64, len(items))
	for _, it := range items {
		itemByCode[it.Code] = it.ID
	}

	linked := 0
	lastID := int64(0)
	for {
		var products []database.StoreProduct
		if err := p.db.NewSelect().
			Model(&products).
			Column("id", "code").
			Where("external = ?", true).
			Where("item_id IS NULL").
			Where("id > ?", lastID).
			OrderExpr("id").
			Limit(pageSize).
			Scan(ctx); err != nil {
			return fmt.Errorf("loading unlinked products: %w", err)
		}
		if len(products) == 0 {
			break
		}
		lastID = products[len(products)-1].ID

		var batch []*database.StoreProduct
		for i := range products {
			itemID, ok := itemByCode[products[i].Code]
			if !ok {
				continue
			}
			products[i].ItemID = &itemID
			batch = append(batch, &products[i])
		}
		if len(batch) == 0 {
			continue
		}
		if _, err := p.db.NewUpdate().
			Model(&batch).
			Column("item_id").
			Bulk().
			Exec(ctx); err != nil {
			return fmt.Errorf("linking products: %w", err)
		}
		linked += len(batch)
	}

	p.log.Info().Int("linked", linked).Msg("linked store products to items")
	return nil
}
