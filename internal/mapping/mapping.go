// Package mapping records which digest replaced which original header and
// exports the table as CSV or JSON.
package mapping

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/vertti/seqanon/internal/stream"
)

// CSV column names.
const (
	ColumnOriginal = "header_original"
	ColumnHashed   = "header_hashed"
)

// ErrInvalidUTF8 is returned by the JSON export when an original header is not
// valid UTF-8 and so has no lossless JSON key.
var ErrInvalidUTF8 = errors.New("header is not valid UTF-8")

// Format is an export encoding.
type Format uint8

// Export formats.
const (
	CSV Format = iota
	JSON
)

func (f Format) String() string {
	if f == JSON {
		return "json"
	}
	return "csv"
}

// ParseFormat parses "csv" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	default:
		return CSV, fmt.Errorf("unknown mapping format %q (want csv or json)", s)
	}
}

// FormatForPath picks JSON for a .json path and CSV otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return CSV
}

// Pair is one original header and its digest.
type Pair struct {
	Original string
	Digest   string
}

// Mapping is an insertion-ordered table from original header to digest.
// Setting an existing key replaces its digest but keeps its position.
type Mapping struct {
	index map[string]int
	pairs []Pair
}

// New returns an empty mapping.
func New() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// Set records that original was replaced by digest.
func (m *Mapping) Set(original, digest string) {
	if i, ok := m.index[original]; ok {
		m.pairs[i].Digest = digest
		return
	}
	m.index[original] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Original: original, Digest: digest})
}

// Merge adds pairs in order.
func (m *Mapping) Merge(pairs []Pair) {
	for _, p := range pairs {
		m.Set(p.Original, p.Digest)
	}
}

// Get returns the digest recorded for original.
func (m *Mapping) Get(original string) (string, bool) {
	i, ok := m.index[original]
	if !ok {
		return "", false
	}
	return m.pairs[i].Digest, true
}

// Len returns the number of distinct original headers.
func (m *Mapping) Len() int { return len(m.pairs) }

// Each calls fn for every entry in insertion order.
func (m *Mapping) Each(fn func(original, digest string)) {
	for _, p := range m.pairs {
		fn(p.Original, p.Digest)
	}
}

// WriteCSV writes the mapping as a two-column CSV with a header row.
func (m *Mapping) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnOriginal, ColumnHashed}); err != nil {
		return err
	}
	for _, p := range m.pairs {
		if err := cw.Write([]string{p.Original, p.Digest}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the mapping as a single JSON object keyed by original
// header, keys in insertion order. Nothing is written if any header is not
// valid UTF-8.
func (m *Mapping) WriteJSON(w io.Writer) error {
	if err := m.checkUTF8(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if len(m.pairs) == 0 {
		if _, err := bw.WriteString("{}\n"); err != nil {
			return err
		}
		return bw.Flush()
	}

	if _, err := bw.WriteString("{\n"); err != nil {
		return err
	}
	for i, p := range m.pairs {
		key, err := encodeString(p.Original)
		if err != nil {
			return err
		}
		value, err := encodeString(p.Digest)
		if err != nil {
			return err
		}
		sep := ",\n"
		if i == len(m.pairs)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(bw, "  %s: %s%s", key, value, sep); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// checkUTF8 reports the first original header that JSON would mangle into
// U+FFFD, which could merge distinct headers into one key.
func (m *Mapping) checkUTF8() error {
	for _, p := range m.pairs {
		if !utf8.ValidString(p.Original) {
			return fmt.Errorf("%w: %q (export the mapping as CSV)", ErrInvalidUTF8, p.Original)
		}
	}
	return nil
}

// encodeString renders s as a JSON string literal without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Export writes the mapping to path in format f.
func (m *Mapping) Export(path string, f Format) error {
	if f == JSON {
		if err := m.checkUTF8(); err != nil {
			return fmt.Errorf("writing mapping: %w", err)
		}
	}

	w, closeOutput, err := stream.CreateOutput(path, stream.Plain)
	if err != nil {
		return err
	}

	switch f {
	case JSON:
		err = m.WriteJSON(w)
	default:
		err = m.WriteCSV(w)
	}
	if err != nil {
		_ = closeOutput()
		return fmt.Errorf("writing mapping: %w", err)
	}
	return closeOutput()
}
