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

// dateDir scrapes portals that publish one plain directory listing per
// day (<url>/<YYYYMMDD>/). Some nest the files one level deeper; suffix
// carries that segment. Downloads land in a per-date cache subfolder,
// mirroring the portal layout.
type dateDir struct {
	base
	suffix string
}

func newDateDir(info Info, suffix string, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) *dateDir {
	s := &dateDir{base: newBase(info, client, cache, log), suffix: suffix}
	s.dl = s
	return s
}

func (s *dateDir) listURL(date time.Time) string {
	u := strings.TrimRight(s.info.URL, "/") + "/" + filename.Timestamp(date) + "/"
	if s.suffix != "" {
		u += strings.Trim(s.suffix, "/") + "/"
	}
	return u
}

func (s *dateDir) ChainID(ctx context.Context) (int64, error) {
	if s.info.FullID != 0 {
		return s.info.FullID, nil
	}
	doc, err := s.doc(ctx, s.listURL(time.Now()))
	if err != nil {
		return 0, err
	}

	var id int64
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if info, ok := filename.File.Match(strings.TrimSpace(a.Text())); ok {
			id = info.ChainID
			return false
		}
		return true
	})
	if id == 0 {
		return 0, fmt.Errorf("chain id for %s: %w", s.info.Name, ErrMissingFile)
	}
	s.info.FullID = id
	return id, nil
}

func (s *dateDir) downloadByPattern(ctx context.Context, p filename.Pattern, date time.Time) ([]string, error) {
	listURL := s.listURL(date)
	doc, err := s.doc(ctx, listURL)
	if err != nil {
		return nil, err
	}
	dir, err := s.cache.ChainDir(s.Folder(), filename.Timestamp(date))
	if err != nil {
		return nil, err
	}

	var paths []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if !p.MatchString(name) {
			return
		}
		target := filepath.Join(dir, name)
		if err := s.download(ctx, resolve(listURL, a.AttrOr("href", name)), target); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("download failed")
			return
		}
		paths = append(paths, target)
	})
	return paths, nil
}
