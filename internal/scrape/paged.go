package scrape

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/elikochva/openprices/internal/filename"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

// Category ids of the category-indexed portals (currently Shufersal).
const (
	categoryAll        = 0
	categoryPricesFull = 2
	categoryPromosFull = 4
	categoryStores     = 5
)

// maxPages bounds the pagination walk; the largest portal stays well
// under this.
const maxPages = 500

// paged scrapes portals that list files as anchor pages, optionally
// paginated with ">" links and optionally filterable by a category
// endpoint. Shufersal uses both; Bitan is a single flat page.
type paged struct {
	base
	categories bool
}

func newPaged(info Info, categories bool, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) *paged {
	s := &paged{base: newBase(info, client, cache, log), categories: categories}
	s.dl = s
	return s
}

func (s *paged) categoryURL(category, storeID int) string {
	return fmt.Sprintf("%s/FileObject/UpdateCategory?catID=%d&storeId=%d",
		strings.TrimRight(s.info.URL, "/"), category, storeID)
}

func (s *paged) ChainID(ctx context.Context) (int64, error) {
	if s.info.FullID != 0 {
		return s.info.FullID, nil
	}
	doc, err := s.doc(ctx, s.info.URL)
	if err != nil {
		return 0, err
	}

	var id int64
	doc.Find("a, td").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for _, candidate := range []string{strings.TrimSpace(sel.Text()), sel.AttrOr("href", "")} {
			if info, ok := filename.File.Match(candidate); ok {
				id = info.ChainID
				return false
			}
		}
		return true
	})
	if id == 0 {
		return 0, fmt.Errorf("chain id for %s: %w", s.info.Name, ErrMissingFile)
	}
	s.info.FullID = id
	return id, nil
}

func (s *paged) StoresFile(ctx context.Context, date *time.Time) (string, error) {
	if !s.categories {
		return s.base.StoresFile(ctx, date)
	}
	pattern := filename.StoresFor(date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	return s.firstFromPage(ctx, s.categoryURL(categoryStores, 0), pattern, "stores file")
}

func (s *paged) PricesFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	if !s.categories {
		return s.base.PricesFile(ctx, storeID, date)
	}
	pattern := filename.PricesFor(storeID, date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	return s.firstFromPage(ctx, s.categoryURL(categoryPricesFull, storeID), pattern,
		fmt.Sprintf("prices file for store %d", storeID))
}

func (s *paged) PromosFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	if !s.categories {
		return s.base.PromosFile(ctx, storeID, date)
	}
	pattern := filename.PromosFor(storeID, date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	return s.firstFromPage(ctx, s.categoryURL(categoryPromosFull, storeID), pattern,
		fmt.Sprintf("promos file for store %d", storeID))
}

// firstFromPage downloads the first pattern match on a category page.
func (s *paged) firstFromPage(ctx context.Context, pageURL string, p filename.Pattern, what string) (string, error) {
	paths, err := s.walk(ctx, pageURL, p)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%s for %s: %w", what, s.info.Name, ErrMissingFile)
	}
	return paths[0], nil
}

func (s *paged) downloadByPattern(ctx context.Context, p filename.Pattern, _ time.Time) ([]string, error) {
	start := s.info.URL
	if s.categories {
		start = s.categoryURL(categoryAll, 0)
	}
	return s.walk(ctx, start, p)
}

// walk processes pages from startURL, following ">" anchors, and
// downloads every link matching the pattern.
func (s *paged) walk(ctx context.Context, startURL string, p filename.Pattern) ([]string, error) {
	dir, err := s.cache.ChainDir(s.Folder())
	if err != nil {
		return nil, err
	}

	var paths []string
	pageURL := startURL
	for page := 0; page < maxPages; page++ {
		doc, err := s.doc(ctx, pageURL)
		if err != nil {
			return paths, err
		}

		doc.Find("a").Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			candidate := href
			if !p.MatchString(candidate) {
				candidate = strings.TrimSpace(a.Text())
				if !p.MatchString(candidate) {
					return
				}
			}
			target := filepath.Join(dir, fileNameOf(candidate))
			if err := s.download(ctx, resolve(pageURL, href), target); err != nil {
				s.log.Warn().Err(err).Str("href", href).Msg("download failed")
				return
			}
			paths = append(paths, target)
		})

		next, ok := nextPageHref(doc)
		if !ok {
			break
		}
		nextURL := resolve(s.info.URL, next)
		if nextURL == pageURL {
			break
		}
		pageURL = nextURL
	}
	return paths, nil
}

func nextPageHref(doc *goquery.Document) (string, bool) {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == ">" {
			href = a.AttrOr("href", "")
			return false
		}
		return true
	})
	return href, href != ""
}
