// Package anonymize replaces the headers of FASTA and FASTQ records with
// content-derived digests.
package anonymize

import (
	"errors"
	"fmt"
	"io"

	"github.com/vertti/seqanon/internal/digest"
	"github.com/vertti/seqanon/internal/format"
	"github.com/vertti/seqanon/internal/mapping"
	"github.com/vertti/seqanon/internal/parser"
	"github.com/vertti/seqanon/internal/stream"
)

// Stage is the progress of a run.
//
// The parallel path moves through every stage in order. The streaming path
// interleaves reading, hashing and writing, so it goes from NotStarted
// straight to Written.
type Stage uint8

// Run stages.
const (
	NotStarted Stage = iota
	Loaded           // all records parsed into memory
	Hashed           // digests computed and records rendered
	Written          // output complete and closed
	Done             // mapping exported, if requested
)

func (s Stage) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Loaded:
		return "loaded"
	case Hashed:
		return "hashed"
	case Written:
		return "written"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Options configures a run.
type Options struct {
	Compression   stream.Compression // Output compression (default: plain)
	MappingPath   string             // Mapping export path (default: no export)
	MappingFormat *mapping.Format    // Mapping encoding (default: from MappingPath extension)
	Threads       int                // Workers; 1 streams, >1 loads and hashes in parallel (default: 1)
	Algorithm     string             // Digest algorithm (default: sha256)
	StrictQuality bool               // Reject FASTQ records whose quality and sequence lengths differ
}

// Result describes a run.
type Result struct {
	Format           format.Format
	InputCompression stream.Compression
	Records          int
	Mapping          *mapping.Mapping // nil unless a mapping export was requested
	Parallel         bool
	Stage            Stage
}

// Run anonymizes input into output. The input format and compression are
// detected from its content; nothing is created at output until the format
// is known. On failure, output may hold a partial result.
func Run(input, output string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	threads := opts.Threads
	if threads == 0 {
		threads = 1
	}
	if threads < 0 {
		return nil, fmt.Errorf("thread count must be positive, got %d", threads)
	}

	hash, err := digest.Lookup(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := stream.CheckDistinct(input, output, opts.MappingPath); err != nil {
		return nil, err
	}

	f, c, err := format.DetectFile(input)
	if err != nil {
		return nil, err
	}
	res := &Result{Format: f, InputCompression: c, Parallel: threads > 1}

	// Fresh handle: the detection pass consumed the first one.
	in, _, err := stream.Open(input)
	if err != nil {
		return res, err
	}
	defer func() { _ = in.Close() }()

	p, err := parser.New(f, in, parser.Options{StrictQuality: opts.StrictQuality})
	if err != nil {
		return res, err
	}

	if opts.MappingPath != "" {
		res.Mapping = mapping.New()
	}

	if threads == 1 {
		err = runStreaming(p, output, opts.Compression, hash, res)
	} else {
		err = runParallel(p, output, opts.Compression, hash, threads, res)
	}
	if err != nil {
		return res, err
	}

	if res.Mapping != nil {
		mf := mapping.FormatForPath(opts.MappingPath)
		if opts.MappingFormat != nil {
			mf = *opts.MappingFormat
		}
		if err := res.Mapping.Export(opts.MappingPath, mf); err != nil {
			return res, fmt.Errorf("exporting mapping: %w", err)
		}
	}

	res.Stage = Done
	return res, nil
}

// runStreaming reads, hashes and writes one record at a time.
func runStreaming(p parser.Reader, output string, c stream.Compression, hash digest.Func, res *Result) error {
	w, closeOutput, err := stream.CreateOutput(output, c)
	if err != nil {
		return err
	}

	if err := anonymizeStream(p, w, res.Format, hash, res); err != nil {
		// Keep what was written so far.
		_ = closeOutput()
		return err
	}
	if err := closeOutput(); err != nil {
		return err
	}
	res.Stage = Written
	return nil
}

func anonymizeStream(p parser.Reader, w io.Writer, f format.Format, hash digest.Func, res *Result) error {
	var buf []byte
	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f, err)
		}

		d := hash(rec.Header)
		if res.Mapping != nil {
			res.Mapping.Set(rec.Header, d)
		}

		buf = format.AppendRecord(buf[:0], f, d, rec.Sequence, rec.Quality)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("writing record %d: %w", res.Records+1, err)
		}
		res.Records++
	}
}
