// seqanon replaces FASTA and FASTQ headers with deterministic pseudonyms.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vertti/seqanon/internal/anonymize"
	"github.com/vertti/seqanon/internal/convert"
	"github.com/vertti/seqanon/internal/digest"
	"github.com/vertti/seqanon/internal/format"
	"github.com/vertti/seqanon/internal/mapping"
	"github.com/vertti/seqanon/internal/parser"
	"github.com/vertti/seqanon/internal/stream"
)

var version = "dev"

const (
	exitSuccess       = 0
	exitError         = 1
	exitUsage         = 2
	exitUnknownFormat = 3
	exitMalformed     = 4
	exitMissingField  = 5
)

var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "hash":
		err = runHash(args[1:], stderr)
	case "csv-to-fasta":
		err = runCSVToFASTA(args[1:], stderr)
	case "fasta-to-csv":
		err = runFASTAToCSV(args[1:], stderr)
	case "fastq-to-csv":
		err = runFASTQToCSV(args[1:], stderr)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return exitSuccess
	case "-version", "--version", "version":
		fmt.Fprintf(stdout, "seqanon version %s\n", version)
		return exitSuccess
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		return exitSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps an error onto a distinct exit status per failure kind.
func exitCode(err error) int {
	var (
		malformed *parser.MalformedRecordError
		missing   *convert.MissingFieldError
	)
	switch {
	case errors.Is(err, errUsage), errors.Is(err, stream.ErrSameFile):
		return exitUsage
	case errors.Is(err, format.ErrUnknownFormat):
		return exitUnknownFormat
	case errors.As(err, &malformed):
		return exitMalformed
	case errors.As(err, &missing):
		return exitMissingField
	default:
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `seqanon - Anonymize FASTA/FASTQ headers

Usage:
  seqanon hash -i input -o output [-c mapping.csv] [-gzip|-zstd] [-t threads]
  seqanon csv-to-fasta -i input.csv -q header-column -s sequence-column -o output.fa
  seqanon fasta-to-csv -i input.fa -o output.csv
  seqanon fastq-to-csv -i input.fq -o output.csv [-quality]

Inputs may be gzip or zstd compressed; compression is detected from content.
Run "seqanon <command> -h" for command options.

Examples:
  seqanon hash -i reads.fastq.gz -o anon.fastq.gz -gzip -c mapping.csv
  seqanon hash -i contigs.fa -o anon.fa -t 8 -c mapping.json
  seqanon csv-to-fasta -i table.csv -q id -s seq -o table.fa
`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and fills input and output from positionals when
// the flags were not given.
func parseFlags(fs *flag.FlagSet, args []string, input, output *string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) > 0 && *input == "" {
		*input, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 && *output == "" {
		*output, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, rest)
	}
	if *input == "" {
		return fmt.Errorf("%w: %s requires an input file (-i)", errUsage, fs.Name())
	}
	if *output == "" {
		return fmt.Errorf("%w: %s requires an output file (-o)", errUsage, fs.Name())
	}
	return nil
}

type hashConfig struct {
	inputFile     string
	outputFile    string
	mappingFile   string
	mappingFormat string
	gzipOutput    bool
	zstdOutput    bool
	threads       int
	algorithm     string
	strict        bool
	verbose       bool
}

func runHash(args []string, stderr io.Writer) error {
	var cfg hashConfig
	fs := newFlagSet("hash", stderr)
	fs.StringVar(&cfg.inputFile, "i", "", "input FASTA/FASTQ file (plain, gzip or zstd)")
	fs.StringVar(&cfg.outputFile, "o", "", "output file (- for stdout)")
	fs.StringVar(&cfg.mappingFile, "c", "", "write the original-to-digest mapping to this file")
	fs.StringVar(&cfg.mappingFormat, "mapping-format", "", "mapping format: csv or json (default: from -c extension)")
	fs.BoolVar(&cfg.gzipOutput, "gzip", false, "gzip-compress the output")
	fs.BoolVar(&cfg.zstdOutput, "zstd", false, "zstd-compress the output")
	fs.IntVar(&cfg.threads, "t", 1, "hashing threads; more than 1 loads the whole input into memory")
	fs.StringVar(&cfg.algorithm, "algo", digest.DefaultAlgorithm, "digest algorithm: "+strings.Join(digest.Names(), ", "))
	fs.BoolVar(&cfg.strict, "strict", false, "reject FASTQ records whose quality and sequence lengths differ")
	fs.BoolVar(&cfg.verbose, "v", false, "print a summary to stderr")

	if err := parseFlags(fs, args, &cfg.inputFile, &cfg.outputFile); err != nil {
		return err
	}

	opts, err := hashOptions(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := anonymize.Run(cfg.inputFile, cfg.outputFile, opts)
	if err != nil {
		return err
	}

	if cfg.verbose {
		path := "streaming"
		if res.Parallel {
			path = fmt.Sprintf("parallel, %d threads", opts.Threads)
		}
		distinct := ""
		if res.Mapping != nil {
			distinct = fmt.Sprintf(", %d distinct headers", res.Mapping.Len())
		}
		fmt.Fprintf(stderr, "anonymized %d %s records%s (%s input, %s) in %v\n",
			res.Records, res.Format, distinct, res.InputCompression, path, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func hashOptions(cfg hashConfig) (*anonymize.Options, error) {
	if cfg.threads < 1 {
		return nil, fmt.Errorf("%w: -t must be a positive integer, got %d", errUsage, cfg.threads)
	}
	if cfg.gzipOutput && cfg.zstdOutput {
		return nil, fmt.Errorf("%w: -gzip and -zstd are mutually exclusive", errUsage)
	}
	if _, err := digest.Lookup(cfg.algorithm); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	opts := &anonymize.Options{
		MappingPath:   cfg.mappingFile,
		Threads:       cfg.threads,
		Algorithm:     cfg.algorithm,
		StrictQuality: cfg.strict,
	}
	switch {
	case cfg.gzipOutput:
		opts.Compression = stream.Gzip
	case cfg.zstdOutput:
		opts.Compression = stream.Zstd
	}

	if cfg.mappingFormat != "" {
		mf, err := mapping.ParseFormat(cfg.mappingFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		opts.MappingFormat = &mf
	}
	return opts, nil
}

func runCSVToFASTA(args []string, stderr io.Writer) error {
	var input, output, headerColumn, sequenceColumn string
	fs := newFlagSet("csv-to-fasta", stderr)
	fs.StringVar(&input, "i", "", "input CSV file")
	fs.StringVar(&output, "o", "", "output FASTA file")
	fs.StringVar(&headerColumn, "q", "", "name of the header column")
	fs.StringVar(&sequenceColumn, "s", "", "name of the sequence column")

	if err := parseFlags(fs, args, &input, &output); err != nil {
		return err
	}
	if headerColumn == "" || sequenceColumn == "" {
		return fmt.Errorf("%w: csv-to-fasta requires -q and -s", errUsage)
	}

	return convertFile(input, output, func(r io.Reader, w io.Writer) (int, error) {
		return convert.CSVToFASTA(r, w, headerColumn, sequenceColumn)
	})
}

func runFASTAToCSV(args []string, stderr io.Writer) error {
	var input, output string
	fs := newFlagSet("fasta-to-csv", stderr)
	fs.StringVar(&input, "i", "", "input FASTA file")
	fs.StringVar(&output, "o", "", "output CSV file")

	if err := parseFlags(fs, args, &input, &output); err != nil {
		return err
	}
	return convertFile(input, output, convert.FASTAToCSV)
}

func runFASTQToCSV(args []string, stderr io.Writer) error {
	var input, output string
	var withQuality bool
	fs := newFlagSet("fastq-to-csv", stderr)
	fs.StringVar(&input, "i", "", "input FASTQ file")
	fs.StringVar(&output, "o", "", "output CSV file")
	fs.BoolVar(&withQuality, "quality", false, "include the quality column")

	if err := parseFlags(fs, args, &input, &output); err != nil {
		return err
	}
	return convertFile(input, output, func(r io.Reader, w io.Writer) (int, error) {
		return convert.FASTQToCSV(r, w, withQuality)
	})
}

func convertFile(input, output string, fn func(io.Reader, io.Writer) (int, error)) error {
	if err := stream.CheckDistinct(input, output); err != nil {
		return err
	}

	r, _, err := stream.Open(input)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	w, closeOutput, err := stream.CreateOutput(output, stream.Plain)
	if err != nil {
		return err
	}

	if _, err := fn(r, w); err != nil {
		_ = closeOutput()
		return err
	}
	return closeOutput()
}
