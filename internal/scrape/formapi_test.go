package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formAPIServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var priceCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/branches_to_xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="Stores7290058140886-202001100000.xml"`)
		fmt.Fprint(w, "<asx/>")
	})
	mux.HandleFunc("/get_prices", func(w http.ResponseWriter, r *http.Request) {
		priceCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "0", r.Form.Get("product"))
		assert.Equal(t, "1", r.Form.Get("agree"))
		branch, err := strconv.Atoi(r.Form.Get("branch"))
		require.NoError(t, err)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="PriceFull7290058140886-%03d-202001100600.gz"`, branch))
		fmt.Fprint(w, "gz")
	})
	mux.HandleFunc("/get_promo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="PromoFull7290058140886-001-202001100600.gz"`)
		fmt.Fprint(w, "gz")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &priceCalls
}

func TestFormAPIChainID(t *testing.T) {
	srv, _ := formAPIServer(t)
	client, cache, log := testDeps(t)
	s := newFormAPI(Info{Name: "קואופ", URL: srv.URL + "/"}, client, cache, log)

	id, err := s.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7290058140886), id)
}

func TestFormAPIPricesFile(t *testing.T) {
	srv, priceCalls := formAPIServer(t)
	client, cache, log := testDeps(t)
	s := newFormAPI(Info{Name: "קואופ", URL: srv.URL + "/"}, client, cache, log)
	date := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)

	path, err := s.PricesFile(context.Background(), 1, date)
	require.NoError(t, err)
	assert.Equal(t, "PriceFull7290058140886-001-202001100600.gz", filepath.Base(path))

	// Second request resolves from the cache without touching the portal.
	_, err = s.PricesFile(context.Background(), 1, date)
	require.NoError(t, err)
	assert.Equal(t, int32(1), priceCalls.Load())
}

func TestFormAPIPromosFile(t *testing.T) {
	srv, _ := formAPIServer(t)
	client, cache, log := testDeps(t)
	s := newFormAPI(Info{Name: "קואופ", URL: srv.URL + "/"}, client, cache, log)

	path, err := s.PromosFile(context.Background(), 1, time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "PromoFull7290058140886-001-202001100600.gz", filepath.Base(path))
}

func TestFormAPIWrongDateIsMiss(t *testing.T) {
	srv, _ := formAPIServer(t)
	client, cache, log := testDeps(t)
	s := newFormAPI(Info{Name: "קואופ", URL: srv.URL + "/"}, client, cache, log)

	// The portal only generates today's snapshot; the served name carries
	// 2020-01-10, so asking for another date fails the pattern check.
	_, err := s.PricesFile(context.Background(), 1, time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrMissingFile)
}

func TestFormAPIDownloadAll(t *testing.T) {
	srv, _ := formAPIServer(t)
	client, cache, log := testDeps(t)
	s := newFormAPI(Info{Name: "קואופ", URL: srv.URL + "/"}, client, cache, log)

	paths, err := s.DownloadAll(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Stores7290058140886-202001100000.xml", filepath.Base(paths[0]))
}
