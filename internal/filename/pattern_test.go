package filename

import (
	"testing"
	"time"
)

func TestMatchKnownNames(t *testing.T) {
	cases := []struct {
		name      string
		file      string
		wantType  Type
		wantFull  bool
		wantChain int64
		wantStore int
		hasStore  bool
		wantTS    string
	}{
		{
			name:      "shufersal full prices",
			file:      "PriceFull7290027600007-001-202001100200.gz",
			wantType:  TypePrices,
			wantFull:  true,
			wantChain: 7290027600007,
			wantStore: 1,
			hasStore:  true,
			wantTS:    "2020-01-10 02:00",
		},
		{
			name:      "underscore separators",
			file:      "PriceFull7290058140886_012_202001100315.xml.gz",
			wantType:  TypePrices,
			wantFull:  true,
			wantChain: 7290058140886,
			wantStore: 12,
			hasStore:  true,
			wantTS:    "2020-01-10 03:15",
		},
		{
			name:      "prices with plural type",
			file:      "PricesFull7290103152017-005-202001111230.zip",
			wantType:  TypePrices,
			wantFull:  true,
			wantChain: 7290103152017,
			wantStore: 5,
			hasStore:  true,
			wantTS:    "2020-01-11 12:30",
		},
		{
			name:      "stores without store group",
			file:      "Stores7290027600007-202001100201.xml",
			wantType:  TypeStores,
			wantChain: 7290027600007,
			wantTS:    "2020-01-10 02:01",
		},
		{
			name:      "promo full",
			file:      "PromoFull7290700100008-062-202001120600.gz",
			wantType:  TypePromos,
			wantFull:  true,
			wantChain: 7290700100008,
			wantStore: 62,
			hasStore:  true,
			wantTS:    "2020-01-12 06:00",
		},
		{
			name:      "bikoret digit after 3-digit store",
			file:      "PriceFull7290055700007-0233-202001100430.gz",
			wantType:  TypePrices,
			wantFull:  true,
			wantChain: 7290055700007,
			wantStore: 23,
			hasStore:  true,
			wantTS:    "2020-01-10 04:30",
		},
		{
			name:      "path prefix and query suffix",
			file:      "/file/d/PriceFull7290027600007-001-202001100200.gz?dl=1",
			wantType:  TypePrices,
			wantFull:  true,
			wantChain: 7290027600007,
			wantStore: 1,
			hasStore:  true,
			wantTS:    "2020-01-10 02:00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, ok := File.Match(tc.file)
			if !ok {
				t.Fatalf("File.Match(%q) did not match", tc.file)
			}
			if info.Type != tc.wantType {
				t.Errorf("type = %q, want %q", info.Type, tc.wantType)
			}
			if info.Full != tc.wantFull {
				t.Errorf("full = %v, want %v", info.Full, tc.wantFull)
			}
			if info.ChainID != tc.wantChain {
				t.Errorf("chain = %d, want %d", info.ChainID, tc.wantChain)
			}
			if info.HasStore != tc.hasStore {
				t.Errorf("hasStore = %v, want %v", info.HasStore, tc.hasStore)
			}
			if info.StoreID != tc.wantStore {
				t.Errorf("store = %d, want %d", info.StoreID, tc.wantStore)
			}
			if got := info.Timestamp.Format("2006-01-02 15:04"); got != tc.wantTS {
				t.Errorf("timestamp = %s, want %s", got, tc.wantTS)
			}
		})
	}
}

func TestMatchRejectsNonSupplierNames(t *testing.T) {
	for _, file := range []string{
		"readme.txt",
		"Price7290027600007.gz",            // no timestamp
		"PriceFull123-001-202001100200.gz", // chain id not 13 digits
		"",
	} {
		if _, ok := File.Match(file); ok {
			t.Errorf("File.Match(%q) matched, want no match", file)
		}
	}
}

func TestDerivedPatterns(t *testing.T) {
	prices := "PriceFull7290027600007-001-202001100200.gz"
	promo := "PromoFull7290027600007-001-202001100200.gz"
	stores := "Stores7290027600007-202001100201.xml"
	partial := "Price7290027600007-001-202001100200.gz"

	if !Stores.MatchString(stores) || Stores.MatchString(prices) {
		t.Error("Stores pattern should match stores files only")
	}
	if !FullPrices.MatchString(prices) || FullPrices.MatchString(promo) {
		t.Error("FullPrices pattern should match full prices files only")
	}
	if FullPrices.MatchString(partial) {
		t.Error("FullPrices pattern should reject partial dumps")
	}
	if !FullPromos.MatchString(promo) || FullPromos.MatchString(prices) {
		t.Error("FullPromos pattern should match full promo files only")
	}
	if !Full.MatchString(prices) || Full.MatchString(partial) {
		t.Error("Full pattern should reject partial dumps")
	}
}

func TestSpecializers(t *testing.T) {
	date := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)

	p := PricesFor(1, date)
	if !p.MatchString("PriceFull7290027600007-001-202001100200.gz") {
		t.Error("specialized pattern should match its own store and date")
	}
	if p.MatchString("PriceFull7290027600007-002-202001100200.gz") {
		t.Error("specialized pattern should reject other stores")
	}
	if p.MatchString("PriceFull7290027600007-001-202001110200.gz") {
		t.Error("specialized pattern should reject other dates")
	}

	// Store ids are zero-padded to three digits regardless of input width.
	if !PricesFor(12, date).MatchString("PriceFull7290058140886_012_202001100315.gz") {
		t.Error("store id 12 should match its zero-padded form")
	}

	if !PromosFor(62, date).MatchString("PromoFull7290700100008-062-202001100600.gz") {
		t.Error("promo specializer should match")
	}

	if !StoresFor(nil).MatchString("Stores7290027600007-202001100201.xml") {
		t.Error("StoresFor(nil) should match any date")
	}
	if StoresFor(&date).MatchString("Stores7290027600007-202001110201.xml") {
		t.Error("StoresFor(date) should reject other dates")
	}
}

func TestTimestamp(t *testing.T) {
	d := time.Date(2020, 1, 10, 15, 4, 5, 0, time.UTC)
	if got := Timestamp(d); got != "20200110" {
		t.Errorf("Timestamp = %q, want 20200110", got)
	}
}
