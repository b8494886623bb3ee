package scrape

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elikochva/openprices/internal/filename"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

// publishedPrices scrapes the shared publishedprices.co.il hosting used
// by several chains. Login posts the CSRF token from the login form;
// the file listing comes from a DataTables ajax endpoint whose JSON we
// only need file names out of, so it is scanned token-wise rather than
// decoded.
type publishedPrices struct {
	base

	mu       sync.Mutex
	loggedIn bool
}

func newPublishedPrices(info Info, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) *publishedPrices {
	s := &publishedPrices{base: newBase(info, client, cache, log)}
	s.dl = s
	return s
}

func (s *publishedPrices) login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		return nil
	}

	loginURL := s.info.URL + "/login"
	doc, err := s.doc(ctx, loginURL)
	if err != nil {
		return fmt.Errorf("loading login page: %w", err)
	}
	token, ok := doc.Find(`input[name="csrftoken"]`).Attr("value")
	if !ok {
		return fmt.Errorf("no csrf token on %s", loginURL)
	}

	form := url.Values{
		"url":       {loginURL},
		"username":  {s.info.Username},
		"password":  {s.info.Password},
		"csrftoken": {token},
	}
	resp, err := s.client.PostForm(ctx, loginURL+"/user", form)
	if err != nil {
		return fmt.Errorf("posting login: %w", err)
	}
	resp.Body.Close()

	s.loggedIn = true
	return nil
}

// listFiles returns every file name on the portal, newest first, capped
// at limit.
func (s *publishedPrices) listFiles(ctx context.Context, limit int) ([]string, error) {
	if err := s.login(ctx); err != nil {
		return nil, err
	}
	body, err := s.client.PostFormBytes(ctx, s.info.URL+"/file/ajax_dir",
		url.Values{"iDisplayLength": {fmt.Sprint(limit)}})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var names []string
	for _, tok := range strings.Split(string(body), `"`) {
		if filename.File.MatchString(tok) {
			names = append(names, tok)
		}
	}
	return names, nil
}

func (s *publishedPrices) ChainID(ctx context.Context) (int64, error) {
	if s.info.FullID != 0 {
		return s.info.FullID, nil
	}
	names, err := s.listFiles(ctx, 1)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		if info, ok := filename.File.Match(name); ok {
			s.info.FullID = info.ChainID
			return info.ChainID, nil
		}
	}
	return 0, fmt.Errorf("chain id for %s: %w", s.info.Name, ErrMissingFile)
}

func (s *publishedPrices) downloadByPattern(ctx context.Context, p filename.Pattern, _ time.Time) ([]string, error) {
	names, err := s.listFiles(ctx, 10000)
	if err != nil {
		return nil, err
	}
	dir, err := s.cache.ChainDir(s.Folder())
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, name := range names {
		if !p.MatchString(name) {
			continue
		}
		target := filepath.Join(dir, name)
		if err := s.download(ctx, s.info.URL+"/file/d/"+name, target); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("download failed")
			continue
		}
		paths = append(paths, target)
	}
	return paths, nil
}
