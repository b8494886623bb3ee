// Package xmlfile loads supplier XML dumps (raw, gzipped, or zipped) into
// a simple element tree. Tag names are lowercased on parse so the
// accessors are insensitive to the per-chain capitalization chaos, and
// every typed accessor returns a zero value rather than an error: the
// dumps omit fields routinely and parsers treat absence as default.
package xmlfile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Element is one node of the parsed tree. Tag is always lowercase.
type Element struct {
	Tag      string
	Text     string
	Children []*Element
}

// Value returns the element's own trimmed text.
func (e *Element) Value() string { return strings.TrimSpace(e.Text) }

// Find returns the first descendant (depth-first, document order) with
// the given tag, or nil. The tag is matched lowercased.
func (e *Element) Find(tag string) *Element {
	tag = strings.ToLower(tag)
	for _, child := range e.Children {
		if child.Tag == tag {
			return child
		}
		if found := child.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// Iter returns every descendant with the given tag, in document order.
func (e *Element) Iter(tag string) []*Element {
	tag = strings.ToLower(tag)
	var out []*Element
	var walk func(*Element)
	walk = func(n *Element) {
		for _, child := range n.Children {
			if child.Tag == tag {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(e)
	return out
}

// leadingNumber grabs the numeric prefix of a value; supplier files pad
// numbers with units and stray characters ("1.5 ליטר", "100 %").
var leadingNumber = regexp.MustCompile(`^\s*-?\d+(\.\d+)?`)

// AsString returns the trimmed text of the first descendant with the
// given tag, or "" when absent.
func (e *Element) AsString(tag string) string {
	if found := e.Find(tag); found != nil {
		return strings.TrimSpace(found.Text)
	}
	return ""
}

// AsFloat returns the leading numeric value of the tag's text, or 0.
func (e *Element) AsFloat(tag string) float64 {
	m := leadingNumber.FindString(e.AsString(tag))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0
	}
	return f
}

// AsInt returns the tag's numeric value truncated to an integer, or 0.
func (e *Element) AsInt(tag string) int {
	return int(e.AsFloat(tag))
}

// AsInt64 returns the tag's numeric value truncated to int64, or 0.
// Product codes exceed 32 bits.
func (e *Element) AsInt64(tag string) int64 {
	m := leadingNumber.FindString(e.AsString(tag))
	if m == "" {
		return 0
	}
	// Codes are plain integers; anything fractional goes through float.
	if !strings.Contains(m, ".") {
		v, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return int64(e.AsFloat(tag))
}

// AsBool reports whether the tag's numeric value is exactly 1.
func (e *Element) AsBool(tag string) bool {
	return e.AsInt(tag) == 1
}

// AsDecimal returns the leading numeric value as a decimal, or zero.
// Prices and quantities go through decimals so tolerance comparisons are
// exact.
func (e *Element) AsDecimal(tag string) decimal.Decimal {
	m := leadingNumber.FindString(e.AsString(tag))
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(m))
	if err != nil {
		return decimal.Zero
	}
	return d
}
