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

// tableListing scrapes the shared matrixcatalog.co.il hosting: one HTML
// table listing every hosted chain's files, with the chain name in the
// second column, the file name in the first, and the download link in
// the eighth. Rows are filtered by the chain display name.
type tableListing struct {
	base
}

func newTableListing(info Info, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) *tableListing {
	s := &tableListing{base: newBase(info, client, cache, log)}
	s.dl = s
	return s
}

const (
	colFileName = 0
	colChain    = 1
	colLink     = 7
)

// rows iterates the listing's table rows belonging to this chain.
func (s *tableListing) rows(ctx context.Context, visit func(cells *goquery.Selection) bool) error {
	doc, err := s.doc(ctx, s.info.URL)
	if err != nil {
		return err
	}
	doc.Find("table tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.Find("td")
		if cells.Length() <= colLink {
			return true
		}
		if strings.TrimSpace(cells.Eq(colChain).Text()) != s.info.Name {
			return true
		}
		return visit(cells)
	})
	return nil
}

func (s *tableListing) ChainID(ctx context.Context) (int64, error) {
	if s.info.FullID != 0 {
		return s.info.FullID, nil
	}
	var id int64
	err := s.rows(ctx, func(cells *goquery.Selection) bool {
		if info, ok := filename.File.Match(strings.TrimSpace(cells.Eq(colFileName).Text())); ok {
			id = info.ChainID
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("chain id for %s: %w", s.info.Name, ErrMissingFile)
	}
	s.info.FullID = id
	return id, nil
}

func (s *tableListing) downloadByPattern(ctx context.Context, p filename.Pattern, _ time.Time) ([]string, error) {
	dir, err := s.cache.ChainDir(s.Folder())
	if err != nil {
		return nil, err
	}

	var paths []string
	err = s.rows(ctx, func(cells *goquery.Selection) bool {
		href, ok := cells.Eq(colLink).Find("a").Attr("href")
		if !ok {
			return true
		}
		name := fileNameOf(href)
		if !p.MatchString(name) {
			return true
		}
		target := filepath.Join(dir, name)
		if err := s.download(ctx, resolve(s.info.URL, href), target); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("download failed")
			return true
		}
		paths = append(paths, target)
		return true
	})
	return paths, err
}
