package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/xmlfile"
)

// branchTagChains names the chains whose stores files wrap each store in
// a <branch> element instead of <store>. The field names inside are the
// same either way.
var branchTagChains = map[string]bool{
	"מחסני להב":  true,
	"מחסני השוק": true,
	"ויקטורי":    true,
}

// storeTag picks the per-store element name for a chain.
func storeTag(chainName string) string {
	if branchTagChains[chainName] {
		return "branch"
	}
	return "store"
}

// ParseStores reads a chain's stores file and inserts the stores that
// are not yet registered. Existing stores are never updated.
//
// Files covering several subchains carry a subchainid per store; only
// the stores of chain's own subchain are taken, and the chain display
// name is rewritten to the subchain name found in the file (the catalog
// only knows the umbrella name). The rename sticks until the next parse.
func (p *Parser) ParseStores(ctx context.Context, chain *database.Chain, root *xmlfile.Element) error {
	subchains := map[int]bool{}
	for _, el := range root.Iter("subchainid") {
		if id, err := strconv.Atoi(el.Value()); err == nil {
			subchains[id] = true
		}
	}
	multiSubchain := len(subchains) > 1

	chainSubchain := 0
	if chain.SubchainID != nil {
		chainSubchain = *chain.SubchainID
	}

	renamed := false
	var stores []*database.Store
	for _, el := range root.Iter(storeTag(chain.Name)) {
		if multiSubchain {
			if el.AsInt("subchainid") != chainSubchain {
				continue
			}
			if name := el.AsString("subchainname"); name != "" && name != chain.Name {
				chain.Name = name
				renamed = true
			}
		}
		stores = append(stores, &database.Store{
			ChainID: chain.ID,
			StoreID: el.AsInt("storeid"),
			Name:    el.AsString("storename"),
			City:    el.AsString("city"),
			Address: el.AsString("address"),
			Type:    database.ParseStoreType(el.AsInt("storetype")),
		})
	}
	if len(stores) == 0 {
		return fmt.Errorf("no stores in file for chain %s", chain.Name)
	}

	var existing []database.Store
	if err := p.db.NewSelect().
		Model(&existing).
		Column("store_id").
		Where("chain_id = ?", chain.ID).
		Scan(ctx); err != nil {
		return fmt.Errorf("loading existing stores: %w", err)
	}
	known := make(map[int]bool, len(existing))
	for _, s := range existing {
		known[s.StoreID] = true
	}

	var fresh []*database.Store
	for _, s := range stores {
		if !known[s.StoreID] {
			fresh = append(fresh, s)
			known[s.StoreID] = true
		}
	}

	if len(fresh) > 0 {
		if _, err := p.db.NewInsert().Model(&fresh).Exec(ctx); err != nil {
			return fmt.Errorf("inserting stores: %w", err)
		}
		p.log.Info().Str("chain", chain.Name).Int("stores", len(fresh)).Msg("registered new stores")
	}

	if renamed {
		if _, err := p.db.NewUpdate().
			Model(chain).
			Column("name").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("renaming chain: %w", err)
		}
		p.log.Info().Int64("chain_id", chain.ID).Str("name", chain.Name).Msg("renamed chain to subchain name")
	}
	return nil
}
