// Package stream opens sequence files for reading and writing, handling gzip
// and zstd compression transparently.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the container wrapping a byte stream.
type Compression uint8

// Supported compressions.
const (
	Plain Compression = iota
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Plain:
		return "plain"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Magic bytes.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// sniffLen is the number of leading bytes needed to recognise every magic.
const sniffLen = 4

const bufferSize = 1 << 20

// stdoutPath selects standard output in CreateOutput.
const stdoutPath = "-"

// ErrSameFile is returned by CheckDistinct when an output would overwrite the
// input it is produced from.
var ErrSameFile = errors.New("output is the same file as the input")

// IOError reports a failure to open, create, read, write or close a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Sniff reports the compression of data that starts with header. Headers
// shorter than a magic sequence are treated as plain.
func Sniff(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd
	default:
		return Plain
	}
}

// DetectCompression opens path, inspects its leading bytes and closes it.
func DetectCompression(path string) (Compression, error) {
	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return Plain, &IOError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	var header [sniffLen]byte
	n, err := io.ReadFull(f, header[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Plain, &IOError{Op: "read", Path: path, Err: err}
	}
	return Sniff(header[:n]), nil
}

// Open returns the decoded contents of path together with the compression
// that was detected. Detection uses its own handle; the returned reader is
// backed by a second, fresh one, so nothing is lost to the peek.
func Open(path string) (io.ReadCloser, Compression, error) {
	c, err := DetectCompression(path)
	if err != nil {
		return nil, Plain, err
	}

	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, c, &IOError{Op: "open", Path: path, Err: err}
	}

	switch c {
	case Gzip:
		gz, err := gzip.NewReader(bufio.NewReaderSize(f, bufferSize))
		if err != nil {
			_ = f.Close()
			return nil, c, &IOError{Op: "open gzip", Path: path, Err: err}
		}
		return &readCloser{
			r:       gz,
			path:    path,
			closers: []func() error{gz.Close, f.Close},
		}, c, nil
	case Zstd:
		zr, err := zstd.NewReader(bufio.NewReaderSize(f, bufferSize))
		if err != nil {
			_ = f.Close()
			return nil, c, &IOError{Op: "open zstd", Path: path, Err: err}
		}
		return &readCloser{
			r:       zr,
			path:    path,
			closers: []func() error{func() error { zr.Close(); return nil }, f.Close},
		}, c, nil
	default:
		return &readCloser{r: f, path: path, closers: []func() error{f.Close}}, c, nil
	}
}

// readCloser turns read failures into IOErrors and closes the decoder stack
// from the outside in.
type readCloser struct {
	r       io.Reader
	path    string
	closers []func() error
	closed  bool
}

func (rc *readCloser) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &IOError{Op: "read", Path: rc.path, Err: err}
	}
	return n, err
}

func (rc *readCloser) Close() error {
	if rc.closed {
		return nil
	}
	rc.closed = true
	var first error
	for _, c := range rc.closers {
		if err := c(); err != nil && first == nil {
			first = &IOError{Op: "close", Path: rc.path, Err: err}
		}
	}
	return first
}

// CheckDistinct fails with ErrSameFile if any of outputs names the same file
// as input. Outputs that are empty, "-" or do not exist yet are fine, and a
// missing input is left for Open to report.
func CheckDistinct(input string, outputs ...string) error {
	in, err := os.Stat(input)
	if err != nil {
		return nil //nolint:nilerr // Open reports the missing input
	}
	for _, out := range outputs {
		if out == "" || out == stdoutPath {
			continue
		}
		fi, err := os.Stat(out)
		if err != nil {
			continue
		}
		if os.SameFile(in, fi) {
			return fmt.Errorf("%w: %s", ErrSameFile, out)
		}
	}
	return nil
}

// CreateOutput creates path and returns a buffered writer that compresses with
// c. The returned close function flushes the buffer, finishes the compressed
// stream and closes the file, reporting the first failure. It is safe to call
// more than once. A path of "-" writes to standard output.
func CreateOutput(path string, c Compression) (io.Writer, func() error, error) {
	var (
		file io.Writer
		done []func() error
	)
	if path == stdoutPath {
		file = os.Stdout
	} else {
		f, err := os.Create(path) //nolint:gosec // CLI tool needs to create user-specified files
		if err != nil {
			return nil, nil, &IOError{Op: "create", Path: path, Err: err}
		}
		file = f
		done = append(done, f.Close)
	}

	sink := file
	switch c {
	case Gzip:
		gz := gzip.NewWriter(file)
		sink = gz
		done = append([]func() error{gz.Close}, done...)
	case Zstd:
		zw, err := zstd.NewWriter(file)
		if err != nil {
			for _, d := range done {
				_ = d()
			}
			return nil, nil, &IOError{Op: "create zstd", Path: path, Err: err}
		}
		sink = zw
		done = append([]func() error{zw.Close}, done...)
	}

	bw := bufio.NewWriterSize(&writer{w: sink, path: path}, bufferSize)
	closed := false
	closeOutput := func() error {
		if closed {
			return nil
		}
		closed = true
		first := bw.Flush()
		for _, d := range done {
			if err := d(); err != nil && first == nil {
				first = &IOError{Op: "close", Path: path, Err: err}
			}
		}
		return first
	}
	return bw, closeOutput, nil
}

type writer struct {
	w    io.Writer
	path string
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		return n, &IOError{Op: "write", Path: w.path, Err: err}
	}
	return n, nil
}
