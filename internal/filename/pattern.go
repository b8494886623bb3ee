// Package filename implements the supplier file naming grammar shared by
// every chain scraper and parser. Regulated publishers name their dumps
// <Type><Full?>-<chain id>-<store id>-<timestamp>, with enough per-chain
// deviation (underscores, missing separators, check digits) that a single
// permissive pattern is the only reliable dispatch mechanism. Parsers and
// scrapers dispatch on this grammar, never on file extensions.
package filename

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Group literals that derived patterns and specializers substitute on.
// Kept as named constants so the substitutions stay in lockstep with the
// base pattern text.
const (
	typeGroup  = `(?P<type>Stores|Promo|Price(s)?)`
	fullGroup  = `(?P<full>Full)?`
	storeGroup = `(?P<store>\d{2,3})`
	dateGroup  = `(?P<date>(?P<year>\d{4})(?P<month>\d{2})(?P<day>\d{2}))`
)

// basePattern recognizes every supplier file name seen in the wild.
// The store group is 2-3 digits; a trailing bikoret (check) digit shows up
// on chains that publish 4-digit store fields.
const basePattern = `.*` +
	typeGroup +
	fullGroup +
	`(-|_)?` +
	`(?P<id>\d{13})` +
	`((-|_)` + storeGroup + `)?` +
	`(?P<bikoret>\d?)` +
	`(-|_)` +
	dateGroup +
	`(?P<hour>\d{2})` +
	`(?P<min>\d{2})` +
	`.*`

// Type classifies a supplier file by the grammar's type group.
type Type string

const (
	TypeStores Type = "Stores"
	TypePrices Type = "Prices"
	TypePromos Type = "Promo"
)

// Pattern is a compiled grammar pattern. The zero value is not usable;
// use the package-level patterns or the specializer methods.
type Pattern struct {
	text string
	re   *regexp.Regexp
}

func compile(text string) Pattern {
	return Pattern{text: text, re: regexp.MustCompile(text)}
}

// Derived patterns, built by substituting group literals in the base text
// the same way every scraper specializes them at runtime.
var (
	// File matches any supplier file regardless of type or snapshot kind.
	File = compile(basePattern)
	// Stores matches stores files only.
	Stores = compile(strings.Replace(basePattern, typeGroup, `(?P<type>Stores)`, 1))
	// Full matches full-snapshot files of any type.
	Full = compile(strings.Replace(basePattern, fullGroup, `(?P<full>Full)`, 1))
	// FullPrices matches full-snapshot prices files.
	FullPrices = compile(strings.Replace(Full.text, typeGroup, `(?P<type>Price(s)?)`, 1))
	// FullPromos matches full-snapshot promo files.
	FullPromos = compile(strings.Replace(Full.text, typeGroup, `(?P<type>Promo)`, 1))
)

// WithDate narrows the pattern to file names carrying the given date.
func (p Pattern) WithDate(date time.Time) Pattern {
	concrete := fmt.Sprintf(
		`(?P<date>(?P<year>%04d)(?P<month>%02d)(?P<day>%02d))`,
		date.Year(), int(date.Month()), date.Day(),
	)
	return compile(strings.Replace(p.text, dateGroup, concrete, 1))
}

// WithStore narrows the pattern to file names carrying the given store id,
// zero-padded to three digits as the suppliers do.
func (p Pattern) WithStore(storeID int) Pattern {
	concrete := fmt.Sprintf(`(?P<store>%03d)`, storeID)
	return compile(strings.Replace(p.text, storeGroup, concrete, 1))
}

// PricesFor returns the full-prices pattern specialized to a store and date.
func PricesFor(storeID int, date time.Time) Pattern {
	return FullPrices.WithDate(date).WithStore(storeID)
}

// PromosFor returns the full-promos pattern specialized to a store and date.
func PromosFor(storeID int, date time.Time) Pattern {
	return FullPromos.WithDate(date).WithStore(storeID)
}

// StoresFor returns the stores pattern, specialized to a date when one is
// given (stores files rarely need date narrowing).
func StoresFor(date *time.Time) Pattern {
	if date == nil {
		return Stores
	}
	return Stores.WithDate(*date)
}

// Info holds the parsed groups of a matched file name.
type Info struct {
	Type      Type
	Full      bool
	ChainID   int64
	StoreID   int
	HasStore  bool
	Timestamp time.Time
}

// MatchString reports whether name matches the pattern.
func (p Pattern) MatchString(name string) bool {
	return p.re.MatchString(name)
}

// Match parses name against the pattern and returns the extracted groups.
// The grammar is total: either every expected group is present, or the
// name does not match at all.
func (p Pattern) Match(name string) (Info, bool) {
	m := p.re.FindStringSubmatch(name)
	if m == nil {
		return Info{}, false
	}

	groups := make(map[string]string)
	for i, groupName := range p.re.SubexpNames() {
		if groupName != "" && i < len(m) {
			groups[groupName] = m[i]
		}
	}

	chainID, err := strconv.ParseInt(groups["id"], 10, 64)
	if err != nil {
		return Info{}, false
	}

	info := Info{
		Full:    groups["full"] == "Full",
		ChainID: chainID,
	}

	switch groups["type"] {
	case "Stores":
		info.Type = TypeStores
	case "Promo":
		info.Type = TypePromos
	case "Price", "Prices":
		info.Type = TypePrices
	default:
		return Info{}, false
	}

	if s := groups["store"]; s != "" {
		storeID, err := strconv.Atoi(s)
		if err != nil {
			return Info{}, false
		}
		info.StoreID = storeID
		info.HasStore = true
	}

	ts, err := time.Parse("200601021504",
		groups["date"]+groups["hour"]+groups["min"])
	if err != nil {
		return Info{}, false
	}
	info.Timestamp = ts

	return info, true
}

// Timestamp formats a date the way supplier directories and file names
// spell it (YYYYMMDD).
func Timestamp(date time.Time) string {
	return date.Format("20060102")
}
