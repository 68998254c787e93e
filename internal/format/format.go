// Package format classifies sequence files as FASTA or FASTQ and renders
// records back into their textual framing.
package format

import (
	"errors"
	"fmt"
	"io"

	"github.com/vertti/seqanon/internal/stream"
)

// Format is the record layout of a sequence file.
type Format uint8

// Record formats. The zero value is not a valid format.
const (
	FASTA Format = iota + 1
	FASTQ
)

// Record markers.
const (
	FASTAMarker     byte = '>'
	FASTQMarker     byte = '@'
	SeparatorMarker byte = '+'
)

// ErrUnknownFormat is returned when the first decoded byte of an input is
// neither '>' nor '@'.
var ErrUnknownFormat = errors.New("unknown file format")

func (f Format) String() string {
	switch f {
	case FASTA:
		return "FASTA"
	case FASTQ:
		return "FASTQ"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Marker returns the byte that opens a header line in f.
func (f Format) Marker() byte {
	if f == FASTQ {
		return FASTQMarker
	}
	return FASTAMarker
}

// Sniff classifies a stream by its first byte.
func Sniff(first byte) (Format, error) {
	switch first {
	case FASTAMarker:
		return FASTA, nil
	case FASTQMarker:
		return FASTQ, nil
	default:
		return 0, fmt.Errorf("%w: unexpected leading byte %q", ErrUnknownFormat, first)
	}
}

// Detect reads one byte from r and classifies the stream. Empty input is an
// unknown format.
func Detect(r io.Reader) (Format, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: empty input", ErrUnknownFormat)
		}
		return 0, err
	}
	return Sniff(first[0])
}

// DetectFile opens path, decompressing if needed, classifies it and closes
// it again. Callers re-open the file to parse it.
func DetectFile(path string) (Format, stream.Compression, error) {
	r, c, err := stream.Open(path)
	if err != nil {
		return 0, c, err
	}
	defer func() { _ = r.Close() }()

	f, err := Detect(r)
	if err != nil {
		return 0, c, fmt.Errorf("%s: %w", path, err)
	}
	return f, c, nil
}

// AppendRecord appends one record in the framing of f to dst and returns the
// extended slice. quality is ignored for FASTA.
func AppendRecord(dst []byte, f Format, header string, sequence, quality []byte) []byte {
	dst = append(dst, f.Marker())
	dst = append(dst, header...)
	dst = append(dst, '\n')
	dst = append(dst, sequence...)
	dst = append(dst, '\n')
	if f == FASTQ {
		dst = append(dst, SeparatorMarker, '\n')
		dst = append(dst, quality...)
		dst = append(dst, '\n')
	}
	return dst
}
