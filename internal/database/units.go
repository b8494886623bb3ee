package database

import "strings"

// Unit is the canonical measurement unit of an item. Supplier files spell
// units in free-form Hebrew (with the occasional typo); everything not in
// the normalization table collapses to UnitUnknown.
type Unit int

const (
	UnitUnknown Unit = iota
	UnitKilogram
	UnitGram
	UnitLiter
	UnitMilliliter
	UnitUnit
	UnitMeter
)

var unitNames = map[Unit]string{
	UnitUnknown:    "unknown",
	UnitKilogram:   "kg",
	UnitGram:       "g",
	UnitLiter:      "l",
	UnitMilliliter: "ml",
	UnitUnit:       "unit",
	UnitMeter:      "m",
}

func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return "unknown"
}

// unitAliases maps the unit spellings observed in supplier files to the
// canonical unit. Keys are compared after trimming surrounding whitespace.
var unitAliases = map[string]Unit{
	"גרם":      UnitGram,
	"גרמים":    UnitGram,
	"גר":       UnitGram,
	"ג\"ר":     UnitGram,
	"קילו":     UnitKilogram,
	"ק\"ג":     UnitKilogram,
	"קג":       UnitKilogram,
	"קילוגרם":  UnitKilogram,
	"קילוגרמים": UnitKilogram,
	"מיליליטר": UnitMilliliter,
	"מיליליטרים": UnitMilliliter,
	"מ\"ל":     UnitMilliliter,
	"מל":       UnitMilliliter,
	"ליטר":     UnitLiter,
	"ליטרים":   UnitLiter,
	"ל'":       UnitLiter,
	"יחידה":    UnitUnit,
	"יחידות":   UnitUnit,
	"יח":       UnitUnit,
	"יח'":      UnitUnit,
	"מטר":      UnitMeter,
	"מטרים":    UnitMeter,
	"מ":        UnitMeter,
	"מ'":       UnitMeter,
	"גר'":      UnitGram,
	"unknown":  UnitUnknown,
	"לא ידוע":  UnitUnknown,
}

// NormalizeUnit maps a raw supplier unit string to its canonical Unit.
// Unrecognized strings map to UnitUnknown.
func NormalizeUnit(raw string) Unit {
	if u, ok := unitAliases[strings.TrimSpace(raw)]; ok {
		return u
	}
	return UnitUnknown
}
