package xmlfile

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/elikochva/openprices/internal/filename"
)

// Load reads a supplier file and returns its parsed root element. The
// container format is dispatched on extension: .gz is gunzipped, .zip
// has its grammar-matched inner entry extracted, anything else is
// treated as raw XML.
func Load(path string) (*Element, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		raw, err = gunzip(raw)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
	case ".zip":
		raw, err = unzipEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", path, err)
		}
	}

	root, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return root, nil
}

func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// unzipEntry extracts the archive entry whose name matches the supplier
// file grammar; some chains zip a single XML next to metadata files.
func unzipEntry(raw []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if !filename.File.MatchString(filepath.Base(f.Name)) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("no supplier file inside archive (%d entries)", len(zr.File))
}

// Parse decodes raw XML into an element tree with lowercased tags. The
// bytes are transcoded from UTF-16 first (with or without a byte-order
// mark); otherwise they are taken as UTF-8.
func Parse(raw []byte) (*Element, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(text))
	// The declaration may still name UTF-16 after transcoding; the bytes
	// are already UTF-8 at this point.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	root := &Element{}
	stack := []*Element{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &Element{Tag: strings.ToLower(t.Name.Local)}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)
		case xml.CharData:
			stack[len(stack)-1].Text += string(t)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(root.Children) == 0 {
		return nil, fmt.Errorf("empty xml document")
	}
	return root.Children[0], nil
}

// decodeText transcodes UTF-16 input to UTF-8. Most files carry a
// byte-order mark; a few chains publish BOM-less UTF-16, recognized by
// the NUL byte pairing the '<' of the XML prolog.
func decodeText(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return raw, nil
	}

	var endian unicode.Endianness
	switch {
	case raw[0] == 0xFF && raw[1] == 0xFE, raw[0] == 0xFE && raw[1] == 0xFF:
		endian = unicode.LittleEndian // the BOM overrides this
	case raw[0] == 0x00:
		endian = unicode.BigEndian
	case raw[1] == 0x00:
		endian = unicode.LittleEndian
	default:
		return raw, nil
	}

	dec := unicode.UTF16(endian, unicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding utf-16: %w", err)
	}
	return out, nil
}
