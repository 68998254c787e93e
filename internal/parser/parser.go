// Package parser reads FASTA and FASTQ records from a decoded input stream.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vertti/seqanon/internal/format"
)

// Record is a single sequence record.
type Record struct {
	Header   string // Header line without the leading '>' or '@'
	Sequence []byte // Sequence data; FASTA lines are joined without separators
	Quality  []byte // Quality string; nil for FASTA
}

// Reader yields records in input order. Next returns io.EOF after the last
// record.
type Reader interface {
	Next() (*Record, error)
}

// Options configures record parsing.
type Options struct {
	// StrictQuality rejects FASTQ records whose quality string length differs
	// from the sequence length.
	StrictQuality bool
}

// MalformedRecordError reports a FASTQ quartet that violates the framing.
type MalformedRecordError struct {
	Record int // 1-based quartet index
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed FASTQ record %d: %s", e.Record, e.Reason)
}

// New returns a Reader for records of format f.
func New(f format.Format, r io.Reader, opts Options) (Reader, error) {
	switch f {
	case format.FASTA:
		return NewFASTA(r), nil
	case format.FASTQ:
		return NewFASTQ(r, opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", format.ErrUnknownFormat, f)
	}
}

// ReadAll reads every remaining record from r.
func ReadAll(r Reader) ([]*Record, error) {
	var records []*Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// lineReader reads newline-terminated lines through a reusable buffer.
type lineReader struct {
	reader *bufio.Reader
	line   []byte
}

func newLineReader(r io.Reader) lineReader {
	return lineReader{
		reader: bufio.NewReaderSize(r, 1<<20), // 1MB buffer
		line:   make([]byte, 0, 512),
	}
}

// readLine reads a line from the input, stripping the newline. The returned
// slice is only valid until the next call.
func (l *lineReader) readLine() ([]byte, error) {
	l.line = l.line[:0]

	for {
		segment, isPrefix, err := l.reader.ReadLine()
		if err != nil {
			return nil, err
		}

		l.line = append(l.line, segment...)

		if !isPrefix {
			break
		}
	}

	// Trim any trailing CR (for Windows line endings)
	l.line = bytes.TrimSuffix(l.line, []byte{'\r'})

	return l.line, nil
}

// FASTAReader reads FASTA records. A '>' line starts a new record; every
// other line is appended to the current sequence. Records whose header is
// empty, and lines before the first header, are dropped.
type FASTAReader struct {
	lines  lineReader
	header string
	seq    []byte
	done   bool
}

// NewFASTA creates a FASTA reader.
func NewFASTA(r io.Reader) *FASTAReader {
	return &FASTAReader{lines: newLineReader(r)}
}

// Next reads and returns the next FASTA record.
// Returns io.EOF when no more records are available.
func (r *FASTAReader) Next() (*Record, error) {
	if r.done {
		return nil, io.EOF
	}

	for {
		line, err := r.lines.readLine()
		if errors.Is(err, io.EOF) {
			r.done = true
			if rec := r.flush(); rec != nil {
				return rec, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		if len(line) > 0 && line[0] == format.FASTAMarker {
			rec := r.flush()
			r.header = string(line[1:])
			if rec != nil {
				return rec, nil
			}
			continue
		}
		r.seq = append(r.seq, line...)
	}
}

// flush returns the pending record, or nil if its header is empty, and
// resets the accumulator.
func (r *FASTAReader) flush() *Record {
	defer func() {
		r.header = ""
		r.seq = r.seq[:0]
	}()
	if r.header == "" {
		return nil
	}
	return &Record{Header: r.header, Sequence: bytes.Clone(r.seq)}
}

// FASTQReader reads FASTQ records as strict 4-line quartets.
type FASTQReader struct {
	lines   lineReader
	opts    Options
	records int
}

// NewFASTQ creates a FASTQ reader.
func NewFASTQ(r io.Reader, opts Options) *FASTQReader {
	return &FASTQReader{lines: newLineReader(r), opts: opts}
}

// Next reads and returns the next FASTQ record.
// Returns io.EOF when the input ends on a quartet boundary.
func (p *FASTQReader) Next() (*Record, error) {
	// Line 1: Header (starts with @)
	line, err := p.lines.readLine()
	if err != nil {
		return nil, err
	}
	p.records++
	if len(line) == 0 || line[0] != format.FASTQMarker {
		return nil, p.malformed("header line must start with @")
	}
	if len(line) == 1 {
		return nil, p.malformed("empty header")
	}
	rec := &Record{Header: string(line[1:])}

	// Line 2: Sequence
	line, err = p.lines.readLine()
	if err != nil {
		return nil, p.truncated(err)
	}
	rec.Sequence = bytes.Clone(line)

	// Line 3: Plus line (payload ignored)
	line, err = p.lines.readLine()
	if err != nil {
		return nil, p.truncated(err)
	}
	if len(line) == 0 || line[0] != format.SeparatorMarker {
		return nil, p.malformed("separator line must start with +")
	}

	// Line 4: Quality scores
	line, err = p.lines.readLine()
	if err != nil {
		return nil, p.truncated(err)
	}
	rec.Quality = bytes.Clone(line)

	if p.opts.StrictQuality && len(rec.Sequence) != len(rec.Quality) {
		return nil, p.malformed("sequence and quality lengths must match")
	}

	return rec, nil
}

func (p *FASTQReader) malformed(reason string) error {
	return &MalformedRecordError{Record: p.records, Reason: reason}
}

func (p *FASTQReader) truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return p.malformed("truncated record")
	}
	return err
}
