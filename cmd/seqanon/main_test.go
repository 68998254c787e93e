package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertti/seqanon/internal/convert"
	"github.com/vertti/seqanon/internal/digest"
	"github.com/vertti/seqanon/internal/format"
	"github.com/vertti/seqanon/internal/parser"
	"github.com/vertti/seqanon/internal/stream"
)

func TestHashFASTA(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTestFile(t, dir, "in.fa", ">seq1\nACGT\n>seq2\nGGCC\n")
	out := filepath.Join(dir, "out.fa")
	mappingPath := filepath.Join(dir, "map.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"hash", "-i", in, "-o", out, "-c", mappingPath}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())

	want := ">" + digest.Header("seq1") + "\nACGT\n>" + digest.Header("seq2") + "\nGGCC\n"
	assert.Equal(t, want, readTestFile(t, out))

	wantMapping := "header_original,header_hashed\nseq1," + digest.Header("seq1") + "\nseq2," + digest.Header("seq2") + "\n"
	assert.Equal(t, wantMapping, readTestFile(t, mappingPath))
	assert.Empty(t, stderr.String())
}

func TestHashPositionalArgs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTestFile(t, dir, "in.fq", "@r1\nACGT\n+\n!!!!\n")
	out := filepath.Join(dir, "out.fq")

	var stdout, stderr bytes.Buffer
	code := run([]string{"hash", "-t", "3", in, out}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())
	assert.Equal(t, "@"+digest.Header("r1")+"\nACGT\n+\n!!!!\n", readTestFile(t, out))
}

func TestHashGzipOutputAndJSONMapping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.fq.gz")
	writeGzipTestFile(t, in, "@r1\nACGT\n+\n!!!!\n")
	out := filepath.Join(dir, "out.fq.gz")
	mappingPath := filepath.Join(dir, "map.json")

	var stdout, stderr bytes.Buffer
	code := run([]string{"hash", "-i", in, "-o", out, "-gzip", "-c", mappingPath, "-v"}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())

	c, err := stream.DetectCompression(out)
	require.NoError(t, err)
	assert.Equal(t, stream.Gzip, c)
	assert.Equal(t, "@"+digest.Header("r1")+"\nACGT\n+\n!!!!\n", readTestFile(t, out))
	assert.JSONEq(t, fmt.Sprintf(`{"r1":%q}`, digest.Header("r1")), readTestFile(t, mappingPath))
	assert.Contains(t, stderr.String(), "anonymized 1 FASTQ records, 1 distinct headers (gzip input, streaming)")
}

func TestHashExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		args    []string
		want    int
	}{
		{"unknown format", "hello\n", nil, exitUnknownFormat},
		{"malformed fastq", "@r1\nACGT\n+\n", nil, exitMalformed},
		{"malformed fastq parallel", "@r1\nACGT\n-\n!!!!\n", []string{"-t", "2"}, exitMalformed},
		{"strict quality", "@r1\nACGT\n+\n!!\n", []string{"-strict"}, exitMalformed},
		{"zero threads", ">a\nAC\n", []string{"-t", "0"}, exitUsage},
		{"both compressions", ">a\nAC\n", []string{"-gzip", "-zstd"}, exitUsage},
		{"bad algorithm", ">a\nAC\n", []string{"-algo", "md5"}, exitUsage},
		{"bad mapping format", ">a\nAC\n", []string{"-c", "m", "-mapping-format", "xml"}, exitUsage},
		{"unknown flag", ">a\nAC\n", []string{"-nope"}, exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			in := writeTestFile(t, dir, "in", tt.content)
			out := filepath.Join(dir, "out")

			args := append([]string{"hash", "-i", in, "-o", out}, tt.args...)
			var stdout, stderr bytes.Buffer
			code := run(args, &stdout, &stderr)
			assert.Equal(t, tt.want, code, stderr.String())
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestSameInputAndOutputIsUsageError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := ">seq1\nACGT\n"
	in := writeTestFile(t, dir, "in.fa", content)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"hash", "-i", in, "-o", in}, &stdout, &stderr))
	assert.Equal(t, exitUsage, run([]string{"fasta-to-csv", "-i", in, "-o", in}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "same file")
	assert.Equal(t, content, readTestFile(t, in))
}

func TestHashUnknownFormatCreatesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTestFile(t, dir, "in", "ACGT\n")
	out := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	code := run([]string{"hash", "-i", in, "-o", out}, &stdout, &stderr)
	assert.Equal(t, exitUnknownFormat, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "error: "))
	assert.NoFileExists(t, out)
}

func TestHashMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"hash", "-i", filepath.Join(dir, "missing"), "-o", filepath.Join(dir, "out")}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "open")
}

func TestHashRequiresPaths(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"hash"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "requires an input file")
}

func TestCommandDispatch(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(nil, &stdout, &stderr))
	assert.Equal(t, exitUsage, run([]string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	stdout.Reset()
	assert.Equal(t, exitSuccess, run([]string{"--version"}, &stdout, &stderr))
	assert.Equal(t, "seqanon version dev\n", stdout.String())

	stdout.Reset()
	assert.Equal(t, exitSuccess, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage:")

	stderr.Reset()
	assert.Equal(t, exitSuccess, run([]string{"hash", "-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-algo")
}

func TestCSVToFASTACommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTestFile(t, dir, "in.csv", "id,seq\nseq1,ACGT\n")
	out := filepath.Join(dir, "out.fa")

	var stdout, stderr bytes.Buffer
	code := run([]string{"csv-to-fasta", "-i", in, "-q", "id", "-s", "seq", "-o", out}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())
	assert.Equal(t, ">seq1\nACGT\n", readTestFile(t, out))

	code = run([]string{"csv-to-fasta", "-i", in, "-q", "name", "-s", "seq", "-o", out}, &stdout, &stderr)
	assert.Equal(t, exitMissingField, code)

	code = run([]string{"csv-to-fasta", "-i", in, "-o", out}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}

func TestFASTAToCSVCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.fa.gz")
	writeGzipTestFile(t, in, ">seq1\nAC\nGT\n")
	out := filepath.Join(dir, "out.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"fasta-to-csv", "-i", in, "-o", out}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())
	assert.Equal(t, "header,sequence\nseq1,ACGT\n", readTestFile(t, out))
}

func TestFASTQToCSVCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTestFile(t, dir, "in.fq", "@r1\nACGT\n+\n!!!!\n")
	out := filepath.Join(dir, "out.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"fastq-to-csv", "-quality", in, out}, &stdout, &stderr)
	require.Equal(t, exitSuccess, code, stderr.String())
	assert.Equal(t, "header,sequence,quality\nr1,ACGT,!!!!\n", readTestFile(t, out))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("x: %w", errUsage)))
	assert.Equal(t, exitUnknownFormat, exitCode(fmt.Errorf("x: %w", format.ErrUnknownFormat)))
	assert.Equal(t, exitMalformed, exitCode(fmt.Errorf("x: %w", &parser.MalformedRecordError{Record: 1})))
	assert.Equal(t, exitMissingField, exitCode(&convert.MissingFieldError{Column: "id"}))
	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("x: %w", stream.ErrSameFile)))
	assert.Equal(t, exitError, exitCode(&stream.IOError{Op: "open", Path: "p", Err: os.ErrNotExist}))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeGzipTestFile(t *testing.T, path, content string) {
	t.Helper()

	f, err := os.Create(path) //nolint:gosec // test fixture path
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}

// readTestFile returns the decoded contents of path.
func readTestFile(t *testing.T, path string) string {
	t.Helper()

	r, _, err := stream.Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}
