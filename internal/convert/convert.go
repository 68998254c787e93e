// Package convert copies sequence records between CSV tables and FASTA or
// FASTQ files.
package convert

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/vertti/seqanon/internal/format"
	"github.com/vertti/seqanon/internal/parser"
)

// Column names written by FASTAToCSV and FASTQToCSV.
const (
	ColumnHeader   = "header"
	ColumnSequence = "sequence"
	ColumnQuality  = "quality"
)

// MissingFieldError reports a required CSV column that is absent from the
// header row.
type MissingFieldError struct {
	Column string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// CSVToFASTA writes one FASTA record per CSV row, taking the header and
// sequence from the named columns. It returns the number of records written.
func CSVToFASTA(r io.Reader, w io.Writer, headerColumn, sequenceColumn string) (int, error) {
	cr := csv.NewReader(r)
	names, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, &MissingFieldError{Column: headerColumn}
	}
	if err != nil {
		return 0, fmt.Errorf("reading CSV header: %w", err)
	}

	headerIdx, err := columnIndex(names, headerColumn)
	if err != nil {
		return 0, err
	}
	sequenceIdx, err := columnIndex(names, sequenceColumn)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	var buf []byte
	n := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("reading CSV row %d: %w", n+1, err)
		}

		buf = format.AppendRecord(buf[:0], format.FASTA, row[headerIdx], []byte(row[sequenceIdx]), nil)
		if _, err := bw.Write(buf); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

func columnIndex(names []string, column string) (int, error) {
	for i, name := range names {
		if name == column {
			return i, nil
		}
	}
	return 0, &MissingFieldError{Column: column}
}

// FASTAToCSV writes each FASTA record as a header,sequence row.
func FASTAToCSV(r io.Reader, w io.Writer) (int, error) {
	return recordsToCSV(parser.NewFASTA(r), w, false)
}

// FASTQToCSV writes each FASTQ record as a header,sequence row, adding a
// quality column when withQuality is set.
func FASTQToCSV(r io.Reader, w io.Writer, withQuality bool) (int, error) {
	return recordsToCSV(parser.NewFASTQ(r, parser.Options{}), w, withQuality)
}

func recordsToCSV(p parser.Reader, w io.Writer, withQuality bool) (int, error) {
	cw := csv.NewWriter(w)

	columns := []string{ColumnHeader, ColumnSequence}
	if withQuality {
		columns = append(columns, ColumnQuality)
	}
	if err := cw.Write(columns); err != nil {
		return 0, err
	}

	row := make([]string, len(columns))
	n := 0
	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}

		row[0] = rec.Header
		row[1] = string(rec.Sequence)
		if withQuality {
			row[2] = string(rec.Quality)
		}
		if err := cw.Write(row); err != nil {
			return n, err
		}
		n++
	}

	cw.Flush()
	return n, cw.Error()
}
