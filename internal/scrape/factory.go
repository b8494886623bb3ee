package scrape

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

// New builds the scraper variant for a chain's portal, dispatching on
// URL substrings. The catalog points many chains at a handful of shared
// hosting providers, so the URL is the only reliable discriminator.
func New(info Info, client *httpx.Client, cache *storage.Cache, log zerolog.Logger) (Scraper, error) {
	switch {
	case strings.Contains(info.URL, "publishedprices"):
		// Everything after the host is session junk; the endpoints hang
		// off the bare host.
		if i := strings.Index(info.URL, ".co.il"); i >= 0 {
			info.URL = info.URL[:i+len(".co.il")]
		}
		return newPublishedPrices(info, client, cache, log), nil
	case strings.Contains(info.URL, "shufersal"):
		return newPaged(info, true, client, cache, log), nil
	case strings.Contains(info.URL, "matrixcatalog.co.il"):
		return newTableListing(info, client, cache, log), nil
	case strings.Contains(info.URL, "mega"):
		return newDateDir(info, "", client, cache, log), nil
	case strings.Contains(info.URL, "zolvebegadol"):
		return newDateDir(info, "gz", client, cache, log), nil
	case strings.Contains(info.URL, "bitan"):
		return newPaged(info, false, client, cache, log), nil
	case strings.Contains(info.URL, "coop"):
		return newFormAPI(info, client, cache, log), nil
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownPortal, info.Name, info.URL)
}
