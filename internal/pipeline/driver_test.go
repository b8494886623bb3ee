package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/storage"
)

const (
	testChainID = 7290055700007

	storesName = "Stores7290055700007-202001100000.xml"
	pricesName = "PriceFull7290055700007-001-202001100600.xml"
	promosName = "PromoFull7290055700007-001-202001100605.xml"
)

var portalFiles = map[string]string{
	storesName: `<Root><SubChains><SubChain><SubChainID>0</SubChainID>
		<Stores><Store><StoreID>1</StoreID><StoreName>ראשי</StoreName>
		<City>חיפה</City><StoreType>1</StoreType></Store></Stores>
		</SubChain></SubChains></Root>`,
	pricesName: `<Root><Items><Item><ItemCode>7290000000001</ItemCode>
		<ItemType>1</ItemType><ItemName>חלב</ItemName><Quantity>1</Quantity>
		<UnitQty>ליטר</UnitQty><ItemPrice>6.20</ItemPrice></Item></Items></Root>`,
	promosName: `<Root><Promotions><Promotion><PromotionID>77</PromotionID>
		<PromotionDescription>מבצע</PromotionDescription>
		<PromotionStartDate>2020-01-10</PromotionStartDate>
		<PromotionEndDate>2020-01-31</PromotionEndDate>
		<PromotionItems><Item><ItemCode>7290000000001</ItemCode></Item></PromotionItems>
		<MinQty>2</MinQty><DiscountType>1</DiscountType>
		<DiscountedPrice>10.00</DiscountedPrice></Promotion></Promotions></Root>`,
}

func portalServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			// Any date directory serves the same listing.
			fmt.Fprint(w, "<html><body>")
			for name := range portalFiles {
				fmt.Fprintf(w, `<a href="%s">%s</a>`, name, name)
			}
			fmt.Fprint(w, "</body></html>")
			return
		}
		name := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		content, ok := portalFiles[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEnv(t *testing.T, portalURL string) (*bun.DB, *Driver) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenForTest(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sub := 0
	chain := &database.Chain{FullID: testChainID, SubchainID: &sub, Name: "מגה"}
	_, err = db.NewInsert().Model(chain).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&database.ChainWebAccess{
		ChainID: chain.ID,
		URL:     portalURL,
	}).Exec(ctx)
	require.NoError(t, err)

	client, err := httpx.New(httpx.Config{
		RequestsPerSecond: 1000,
		MaxRetries:        1,
		InitialBackoff:    time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	cache, err := storage.NewCache(t.TempDir())
	require.NoError(t, err)

	driver := NewDriver(db, client, cache, Config{
		Workers:  2,
		Download: true,
		Promos:   true,
		Date:     time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC),
	}, zerolog.Nop())
	return db, driver
}

func TestRunEndToEnd(t *testing.T) {
	srv := portalServer(t)
	db, driver := testEnv(t, srv.URL+"/mega")
	ctx := context.Background()

	require.NoError(t, driver.Run(ctx))

	var stores []database.Store
	require.NoError(t, db.NewSelect().Model(&stores).Scan(ctx))
	require.Len(t, stores, 1)
	assert.Equal(t, 1, stores[0].StoreID)
	assert.Equal(t, "חיפה", stores[0].City)

	var products []database.StoreProduct
	require.NoError(t, db.NewSelect().Model(&products).Scan(ctx))
	require.Len(t, products, 1)
	assert.Equal(t, int64(7290000000001), products[0].Code)

	var history []database.PriceHistory
	require.NoError(t, db.NewSelect().Model(&history).Scan(ctx))
	require.Len(t, history, 1)
	assert.Nil(t, history[0].EndDate)
	assert.True(t, history[0].Price.Equal(decimal.RequireFromString("6.20")))

	var promos []database.Promotion
	require.NoError(t, db.NewSelect().Model(&promos).Scan(ctx))
	require.Len(t, promos, 1)
	assert.Equal(t, int64(77), promos[0].Code)

	links, err := db.NewSelect().Model((*database.PromotionProduct)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, links)
}

func TestRunIsIdempotent(t *testing.T) {
	srv := portalServer(t)
	db, driver := testEnv(t, srv.URL+"/mega")
	ctx := context.Background()

	require.NoError(t, driver.Run(ctx))
	require.NoError(t, driver.Run(ctx))

	history, err := db.NewSelect().Model((*database.PriceHistory)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, history)

	promos, err := db.NewSelect().Model((*database.Promotion)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promos)
}

func TestRunSkipsChainWithoutAccess(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenForTest(ctx)
	require.NoError(t, err)
	defer db.Close()

	sub := 0
	_, err = db.NewInsert().Model(&database.Chain{FullID: 1, SubchainID: &sub, Name: "ללא גישה"}).Exec(ctx)
	require.NoError(t, err)

	client, err := httpx.New(httpx.Config{RequestsPerSecond: 1000}, zerolog.Nop())
	require.NoError(t, err)
	cache, err := storage.NewCache(t.TempDir())
	require.NoError(t, err)

	driver := NewDriver(db, client, cache, Config{}, zerolog.Nop())
	assert.NoError(t, driver.Run(ctx))
}
