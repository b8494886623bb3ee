// Package scrape downloads supplier files from the chain portals. Each
// portal family gets one scraper variant; all variants share the
// capability interface below and are selected by URL substring in
// factory.go. Files land in the local cache and every lookup is
// offline-first: a file already cached for the requested pattern is
// never re-downloaded.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/elikochva/openprices/internal/filename"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/metrics"
	"github.com/elikochva/openprices/internal/storage"
	"github.com/elikochva/openprices/internal/xmlfile"
)

// ErrMissingFile reports that a portal has no file for the requested
// pattern. Callers may retry an earlier date.
var ErrMissingFile = errors.New("no matching file on portal")

// ErrUnknownPortal reports that no scraper variant handles a URL.
var ErrUnknownPortal = errors.New("unknown portal")

// Info identifies one chain's portal: the catalog display name, the
// registered chain id (0 when not yet known), and the web access row.
type Info struct {
	Name     string
	FullID   int64
	URL      string
	Username string
	Password string
}

// Scraper is the capability interface every portal variant implements.
// Paths returned are local cache paths.
type Scraper interface {
	// Name returns the chain display name.
	Name() string
	// Folder returns the cache folder for this chain.
	Folder() string
	// ChainID resolves the 13-digit registered chain id from the portal.
	ChainID(ctx context.Context) (int64, error)
	// SubchainIDs lists the subchain ids present in the stores file.
	// Chains without subchains report [0].
	SubchainIDs(ctx context.Context) ([]int, error)
	// StoresFile fetches the stores file, any date when date is nil.
	StoresFile(ctx context.Context, date *time.Time) (string, error)
	// PricesFile fetches the full prices file for one store and date.
	PricesFile(ctx context.Context, storeID int, date time.Time) (string, error)
	// PromosFile fetches the full promotions file for one store and date.
	PromosFile(ctx context.Context, storeID int, date time.Time) (string, error)
	// DownloadAll fetches every full-snapshot file for the date.
	DownloadAll(ctx context.Context, date time.Time) ([]string, error)
}

// folderAliases maps chain ids whose portals publish under a fixed name
// that differs from the catalog display name.
var folderAliases = map[int64]string{
	7290027600007: "שופרסל",
	7290055700007: "מגה",
}

// downloader is the one variant-specific operation: fetch every portal
// file matching a pattern into the cache.
type downloader interface {
	downloadByPattern(ctx context.Context, p filename.Pattern, date time.Time) ([]string, error)
}

// base carries the shared state and default capability implementations.
// Variants embed it and set dl to themselves.
type base struct {
	info   Info
	client *httpx.Client
	cache  *storage.Cache
	log    zerolog.Logger
	dl     downloader
}

func newBase(info Info, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) base {
	return base{
		info:   info,
		client: client,
		cache:  cache,
		log:    log.With().Str("component", "scrape").Str("chain", info.Name).Logger(),
	}
}

func (b *base) Name() string { return b.info.Name }

func (b *base) Folder() string {
	if alias, ok := folderAliases[b.info.FullID]; ok {
		return alias
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, b.info.Name)
}

// ChainID resolves the chain id from the stores file name. Variants with
// a cheaper listing override this.
func (b *base) ChainID(ctx context.Context) (int64, error) {
	if b.info.FullID != 0 {
		return b.info.FullID, nil
	}
	path, err := b.StoresFile(ctx, nil)
	if err != nil {
		return 0, err
	}
	info, ok := filename.File.Match(filepath.Base(path))
	if !ok {
		return 0, fmt.Errorf("stores file %s does not carry a chain id", path)
	}
	b.info.FullID = info.ChainID
	return info.ChainID, nil
}

// SubchainIDs downloads and parses the stores file. Files without
// subchain tags report the single pseudo-subchain 0.
func (b *base) SubchainIDs(ctx context.Context) ([]int, error) {
	path, err := b.StoresFile(ctx, nil)
	if err != nil {
		return nil, err
	}
	root, err := xmlfile.Load(path)
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	for _, el := range root.Iter("subchainid") {
		id, err := strconv.Atoi(el.Value())
		if err != nil {
			continue
		}
		seen[id] = true
	}
	if len(seen) == 0 {
		return []int{0}, nil
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (b *base) StoresFile(ctx context.Context, date *time.Time) (string, error) {
	pattern := filename.StoresFor(date)
	if path, ok := b.cache.Find(b.Folder(), pattern); ok {
		return path, nil
	}
	when := time.Now()
	if date != nil {
		when = *date
	}
	return b.firstByPattern(ctx, pattern, when, "stores file")
}

func (b *base) PricesFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	pattern := filename.PricesFor(storeID, date)
	if path, ok := b.cache.Find(b.Folder(), pattern); ok {
		return path, nil
	}
	return b.firstByPattern(ctx, pattern, date, fmt.Sprintf("prices file for store %d", storeID))
}

func (b *base) PromosFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	pattern := filename.PromosFor(storeID, date)
	if path, ok := b.cache.Find(b.Folder(), pattern); ok {
		return path, nil
	}
	return b.firstByPattern(ctx, pattern, date, fmt.Sprintf("promos file for store %d", storeID))
}

func (b *base) DownloadAll(ctx context.Context, date time.Time) ([]string, error) {
	return b.dl.downloadByPattern(ctx, filename.Full.WithDate(date), date)
}

func (b *base) firstByPattern(ctx context.Context, p filename.Pattern, date time.Time, what string) (string, error) {
	paths, err := b.dl.downloadByPattern(ctx, p, date)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%s for %s on %s: %w", what, b.info.Name, filename.Timestamp(date), ErrMissingFile)
	}
	return paths[0], nil
}

// download fetches url into target unless target already exists.
func (b *base) download(ctx context.Context, rawURL, target string) error {
	if b.cache.Exists(target) {
		return nil
	}
	resp, err := b.client.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := b.cache.Save(target, resp.Body); err != nil {
		return err
	}
	metrics.FilesDownloaded.Inc()
	b.log.Debug().Str("url", rawURL).Str("path", target).Msg("downloaded")
	return nil
}

// doc fetches a URL and parses it as HTML.
func (b *base) doc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := b.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing html from %s: %w", rawURL, err)
	}
	return doc, nil
}

// resolve joins a possibly-relative href against a page URL.
func resolve(pageURL, href string) string {
	basep, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.ReplaceAll(href, `\`, "/"))
	if err != nil {
		return href
	}
	return basep.ResolveReference(ref).String()
}

// fileNameOf strips portal path and query noise from a link, leaving the
// supplier file name.
func fileNameOf(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	return filepath.Base(strings.ReplaceAll(href, `\`, "/"))
}
