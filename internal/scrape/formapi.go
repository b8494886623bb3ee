package scrape

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/elikochva/openprices/internal/filename"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

// formAPI scrapes portals that generate files on demand through form
// POSTs (currently Coop). There is no listing to walk: each file is
// requested per store, the server names it in the Content-Disposition
// header, and only today's snapshot exists.
type formAPI struct {
	base
}

func newFormAPI(info Info, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) *formAPI {
	s := &formAPI{base: newBase(info, client, cache, log)}
	s.dl = s
	return s
}

func (s *formAPI) endpoint(name string) string {
	return s.info.URL + name
}

// fetch posts a form and saves the response under its server-assigned
// name, verifying it against the expected pattern.
func (s *formAPI) fetch(ctx context.Context, endpoint string, form url.Values, p filename.Pattern) (string, error) {
	resp, err := s.client.PostForm(ctx, endpoint, form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	name := storage.FilenameFromResponse(resp)
	if name == "" || !p.MatchString(name) {
		return "", fmt.Errorf("response from %s (file %q): %w", endpoint, name, ErrMissingFile)
	}
	dir, err := s.cache.ChainDir(s.Folder())
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, name)
	if s.cache.Exists(target) {
		return target, nil
	}
	if err := s.cache.Save(target, resp.Body); err != nil {
		return "", err
	}
	return target, nil
}

func (s *formAPI) ChainID(ctx context.Context) (int64, error) {
	if s.info.FullID != 0 {
		return s.info.FullID, nil
	}
	path, err := s.StoresFile(ctx, nil)
	if err != nil {
		return 0, err
	}
	info, ok := filename.File.Match(filepath.Base(path))
	if !ok {
		return 0, fmt.Errorf("stores file %s does not carry a chain id", path)
	}
	s.info.FullID = info.ChainID
	return info.ChainID, nil
}

func (s *formAPI) StoresFile(ctx context.Context, date *time.Time) (string, error) {
	pattern := filename.StoresFor(date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	if date != nil {
		s.log.Warn().Msg("portal only serves today's files, requested date ignored")
	}
	return s.fetch(ctx, s.endpoint("branches_to_xml"), url.Values{}, pattern)
}

func (s *formAPI) PricesFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	pattern := filename.PricesFor(storeID, date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	form := url.Values{
		"product": {"0"},
		"branch":  {strconv.Itoa(storeID)},
		"type":    {"gzip"},
		"agree":   {"1"},
	}
	return s.fetch(ctx, s.endpoint("get_prices"), form, pattern)
}

func (s *formAPI) PromosFile(ctx context.Context, storeID int, date time.Time) (string, error) {
	pattern := filename.PromosFor(storeID, date)
	if path, ok := s.cache.Find(s.Folder(), pattern); ok {
		return path, nil
	}
	form := url.Values{
		"branch": {strconv.Itoa(storeID)},
		"type":   {"gzip"},
		"agree":  {"1"},
	}
	return s.fetch(ctx, s.endpoint("get_promo"), form, pattern)
}

// DownloadAll only fetches the stores file; per-store files are
// generated on demand during the parse phase.
func (s *formAPI) DownloadAll(ctx context.Context, _ time.Time) ([]string, error) {
	path, err := s.StoresFile(ctx, nil)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// downloadByPattern is unused: every capability is overridden above.
// It satisfies the downloader contract for the embedded base.
func (s *formAPI) downloadByPattern(context.Context, filename.Pattern, time.Time) ([]string, error) {
	return nil, fmt.Errorf("portal has no file listing: %w", ErrMissingFile)
}
