package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

// DefaultCatalogURL is the government price-transparency index page
// listing every regulated chain with its portal URL and credentials.
const DefaultCatalogURL = "http://www.economy.gov.il/Trade/ConsumerProtection/Pages/PriceTransparencyRegulations.aspx"

// Catalog discovers chains from the government index page and registers
// them in the database: one Chain row per (chain id, subchain id) pair
// plus one ChainWebAccess per chain.
type Catalog struct {
	db     *bun.DB
	client *httpx.Client
	cache  *storage.Cache
	url    string
	log    zerolog.Logger
}

// NewCatalog builds a Catalog. An empty url falls back to
// DefaultCatalogURL.
func NewCatalog(db *bun.DB, client *httpx.Client, cache *storage.Cache, url string, log zerolog.Logger) *Catalog {
	if url == "" {
		url = DefaultCatalogURL
	}
	return &Catalog{
		db:     db,
		client: client,
		cache:  cache,
		url:    url,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// catalogEntry is one row of the index page.
type catalogEntry struct {
	Name     string
	URL      string
	Username string
	Password string
}

// DiscoverChains parses the index page and registers every chain not
// already in the database. Chains whose portal has no scraper variant or
// cannot be reached are logged and skipped.
func (c *Catalog) DiscoverChains(ctx context.Context) error {
	entries, err := c.fetchEntries(ctx)
	if err != nil {
		return err
	}

	known, err := c.knownChains(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.registerChain(ctx, entry, known); err != nil {
			c.log.Warn().Err(err).Str("chain", entry.Name).Msg("skipping chain")
		}
	}
	return nil
}

func (c *Catalog) fetchEntries(ctx context.Context) ([]catalogEntry, error) {
	resp, err := c.client.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog page: %w", err)
	}
	return parseCatalog(doc)
}

// parseCatalog extracts the chain table: the first table containing a
// header cell, rows of [name, portal link, login details].
func parseCatalog(doc *goquery.Document) ([]catalogEntry, error) {
	table := doc.Find("table").FilterFunction(func(_ int, t *goquery.Selection) bool {
		return t.Find("th").Length() > 0
	}).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no chain table on catalog page")
	}

	var entries []catalogEntry
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		name := collapseSpaces(filterPrintable(cells.Eq(0).Text()))
		href, ok := cells.Eq(1).Find("a").Attr("href")
		if name == "" || !ok {
			return
		}
		user, pass := parseLoginCell(cells.Eq(2))
		entries = append(entries, catalogEntry{Name: name, URL: href, Username: user, Password: pass})
	})
	if len(entries) == 0 {
		return nil, fmt.Errorf("chain table has no usable rows")
	}
	return entries, nil
}

type chainKey struct {
	fullID   int64
	subchain int
}

func (c *Catalog) knownChains(ctx context.Context) (map[chainKey]bool, error) {
	var chains []database.Chain
	if err := c.db.NewSelect().
		Model(&chains).
		Column("full_id", "subchain_id").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading known chains: %w", err)
	}
	known := make(map[chainKey]bool, len(chains))
	for _, ch := range chains {
		sub := 0
		if ch.SubchainID != nil {
			sub = *ch.SubchainID
		}
		known[chainKey{ch.FullID, sub}] = true
	}
	return known, nil
}

func (c *Catalog) registerChain(ctx context.Context, entry catalogEntry, known map[chainKey]bool) error {
	scraper, err := New(Info{
		Name:     entry.Name,
		URL:      entry.URL,
		Username: entry.Username,
		Password: entry.Password,
	}, c.client, c.cache, c.log)
	if err != nil {
		return err
	}

	fullID, err := scraper.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("resolving chain id: %w", err)
	}
	subchains, err := scraper.SubchainIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolving subchains: %w", err)
	}

	for _, sub := range subchains {
		if known[chainKey{fullID, sub}] {
			c.log.Debug().Str("chain", entry.Name).Int("subchain", sub).Msg("already registered")
			continue
		}
		sub := sub
		chain := &database.Chain{FullID: fullID, SubchainID: &sub, Name: entry.Name}
		if _, err := c.db.NewInsert().Model(chain).Exec(ctx); err != nil {
			return fmt.Errorf("inserting chain: %w", err)
		}
		access := &database.ChainWebAccess{
			ChainID:  chain.ID,
			URL:      entry.URL,
			Username: entry.Username,
			Password: entry.Password,
		}
		if _, err := c.db.NewInsert().Model(access).Exec(ctx); err != nil {
			return fmt.Errorf("inserting web access: %w", err)
		}
		known[chainKey{fullID, sub}] = true
		c.log.Info().Str("chain", entry.Name).Int64("id", fullID).Int("subchain", sub).Msg("registered chain")
	}
	return nil
}

// filterPrintable keeps letters, digits, spaces, combining marks and
// punctuation; anything else (the page embeds stray control characters)
// becomes a space.
func filterPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) ||
			unicode.IsSpace(r) || unicode.IsMark(r) || unicode.IsPunct(r) {
			return r
		}
		return ' '
	}, s)
}

var multiSpace = regexp.MustCompile(` +`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

var credentialToken = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// parseLoginCell extracts the username and password out of the free-text
// login cell. Lines are labeled in Hebrew; the credential itself is the
// first latin token on the line. Missing values stay empty strings.
func parseLoginCell(cell *goquery.Selection) (user, pass string) {
	// <br> is the only line structure the cell has.
	cell.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	for _, line := range strings.Split(cell.Text(), "\n") {
		token := credentialToken.FindString(line)
		if token == "" {
			continue
		}
		switch {
		case strings.Contains(line, "שם משתמש"):
			user = token
		case strings.Contains(line, "סיסמא"), strings.Contains(line, "סיסמה"):
			pass = token
		}
	}
	return user, pass
}
