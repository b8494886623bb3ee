// Package ingest turns parsed supplier files into database state: the
// stores parser, the prices parser with its price-history
// reconciliation, the promotions parser, and cross-snapshot item
// linking.
package ingest

import (
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Parser persists parsed supplier data for one run. Safe for concurrent
// use across stores; per-store work runs in its own transaction.
type Parser struct {
	db  *bun.DB
	log zerolog.Logger
}

func NewParser(db *bun.DB, log zerolog.Logger) *Parser {
	return &Parser{
		db:  db,
		log: log.With().Str("component", "ingest").Logger(),
	}
}
