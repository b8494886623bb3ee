package xmlfile

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<Root>
  <ChainId>7290027600007</ChainId>
  <Items>
    <Item>
      <ItemCode>7290000000001</ItemCode>
      <ItemName>חלב 3%</ItemName>
      <ItemPrice>9.90</ItemPrice>
      <Quantity>1.5 ליטר</Quantity>
      <bIsWeighted>1</bIsWeighted>
    </Item>
    <Item>
      <ItemCode>55</ItemCode>
      <ItemPrice>4.00</ItemPrice>
    </Item>
  </Items>
</Root>`

func TestParseLowercasesTags(t *testing.T) {
	root, err := Parse([]byte(sampleXML))
	require.NoError(t, err)

	assert.Equal(t, "root", root.Tag)
	require.NotNil(t, root.Find("chainid"))
	// Accessors fold the requested tag too.
	assert.Equal(t, "7290027600007", root.AsString("ChainId"))
}

func TestAccessors(t *testing.T) {
	root, err := Parse([]byte(sampleXML))
	require.NoError(t, err)

	items := root.Iter("item")
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "חלב 3%", first.AsString("itemname"))
	assert.Equal(t, int64(7290000000001), first.AsInt64("itemcode"))
	assert.Equal(t, 9.9, first.AsFloat("itemprice"))
	assert.True(t, first.AsDecimal("itemprice").Equal(decimal.RequireFromString("9.90")))
	// Leading-number extraction drops the unit suffix.
	assert.Equal(t, 1.5, first.AsFloat("quantity"))
	assert.Equal(t, 1, first.AsInt("quantity"))
	assert.True(t, first.AsBool("bisweighted"))
}

func TestAccessorDefaults(t *testing.T) {
	root, err := Parse([]byte(sampleXML))
	require.NoError(t, err)
	second := root.Iter("item")[1]

	assert.Equal(t, "", second.AsString("itemname"))
	assert.Equal(t, 0, second.AsInt("missing"))
	assert.Equal(t, 0.0, second.AsFloat("quantity"))
	assert.False(t, second.AsBool("bisweighted"))
	assert.True(t, second.AsDecimal("nope").IsZero())
}

func TestFindIsDepthFirst(t *testing.T) {
	root, err := Parse([]byte(`<a><b><c>first</c></b><c>second</c></a>`))
	require.NoError(t, err)
	assert.Equal(t, "first", root.AsString("c"))
	assert.Len(t, root.Iter("c"), 2)
}

func TestLoadGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "PriceFull7290027600007-001-202001100200.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7290027600007", root.AsString("chainid"))
}

func TestLoadZipPicksSupplierEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "PriceFull7290103152017-005-202001111230.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("metadata.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("not xml"))
	require.NoError(t, err)
	w, err = zw.Create("PriceFull7290103152017-005-202001111230.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(sampleXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7290027600007", root.AsString("chainid"))
}

func TestLoadUTF16(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Stores7290027600007-202001100201.xml")

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.Bytes([]byte(`<?xml version="1.0" encoding="UTF-16"?><Root><ChainName>שופרסל</ChainName></Root>`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, encoded, 0o644))

	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "שופרסל", root.AsString("chainname"))
}

func TestParseUTF16WithoutBOM(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-16"?><Root><ChainName>שופרסל</ChainName></Root>`

	tests := []struct {
		name   string
		endian unicode.Endianness
	}{
		{"little endian", unicode.LittleEndian},
		{"big endian", unicode.BigEndian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := unicode.UTF16(tt.endian, unicode.IgnoreBOM).NewEncoder()
			encoded, err := enc.Bytes([]byte(doc))
			require.NoError(t, err)

			root, err := Parse(encoded)
			require.NoError(t, err)
			assert.Equal(t, "שופרסל", root.AsString("chainname"))
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	_, err := Parse([]byte("   "))
	assert.Error(t, err)
}
