package anonymize

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vertti/seqanon/internal/digest"
	"github.com/vertti/seqanon/internal/format"
	"github.com/vertti/seqanon/internal/mapping"
	"github.com/vertti/seqanon/internal/parser"
	"github.com/vertti/seqanon/internal/stream"
)

// chunksPerWorker controls how finely records are partitioned so that slow
// chunks do not leave other workers idle.
const chunksPerWorker = 4

// errEmptyHeader guards record slices built outside the parsers, which never
// yield an empty header.
var errEmptyHeader = errors.New("record has an empty header")

// hashJob is a contiguous run of records to hash and render.
type hashJob struct {
	seqNum  int
	records []*parser.Record
}

// hashResult is a rendered chunk.
type hashResult struct {
	seqNum int
	data   []byte
	pairs  []mapping.Pair
	err    error
}

// runParallel loads every record, hashes them on a pool of workers and then
// writes the rendered chunks in input order. The output file is only created
// once hashing has succeeded.
func runParallel(p parser.Reader, output string, c stream.Compression, hash digest.Func, threads int, res *Result) error {
	records, err := parser.ReadAll(p)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", res.Format, err)
	}
	res.Stage = Loaded

	chunks, err := hashParallel(records, res.Format, hash, threads, res.Mapping != nil)
	if err != nil {
		return err
	}
	res.Stage = Hashed

	if res.Mapping != nil {
		for _, chunk := range chunks {
			res.Mapping.Merge(chunk.pairs)
		}
	}

	w, closeOutput, err := stream.CreateOutput(output, c)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if _, err := w.Write(chunk.data); err != nil {
			_ = closeOutput()
			return fmt.Errorf("writing chunk %d: %w", chunk.seqNum, err)
		}
	}
	if err := closeOutput(); err != nil {
		return err
	}

	res.Records = len(records)
	res.Stage = Written
	return nil
}

// hashParallel partitions records across workers and returns the rendered
// chunks ordered by position in the input, whatever order they finish in.
func hashParallel(records []*parser.Record, f format.Format, hash digest.Func, workers int, withPairs bool) ([]hashResult, error) {
	if len(records) == 0 {
		return nil, nil
	}
	size := chunkSize(len(records), workers)
	numChunks := (len(records) + size - 1) / size

	jobs := make(chan hashJob, workers*2)
	results := make(chan hashResult, workers*2)

	g, ctx := errgroup.WithContext(context.Background())

	// Start workers
	for range workers {
		g.Go(func() error {
			return runHashWorker(ctx, jobs, results, f, hash, withPairs)
		})
	}

	// Producer: slice the loaded records into jobs
	g.Go(func() error {
		defer close(jobs)
		return produceHashJobs(ctx, jobs, records, size)
	})

	// Collector: place results by sequence number
	var (
		chunks       []hashResult
		collectorErr error
	)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		chunks, collectorErr = collectHashResults(results, numChunks)
	}()

	// Wait for workers and producer
	workerErr := g.Wait()
	close(results)

	// Wait for collector
	<-collectorDone

	if workerErr != nil {
		return nil, workerErr
	}
	if collectorErr != nil {
		return nil, collectorErr
	}
	return chunks, nil
}

// chunkSize returns the number of records per job.
func chunkSize(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	size := (n + workers*chunksPerWorker - 1) / (workers * chunksPerWorker)
	return max(size, 1)
}

func runHashWorker(ctx context.Context, jobs <-chan hashJob, results chan<- hashResult, f format.Format, hash digest.Func, withPairs bool) error {
	for job := range jobs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result := hashChunk(job, f, hash, withPairs)
		if result.err != nil {
			return result.err
		}
		results <- result
	}
	return nil
}

func hashChunk(job hashJob, f format.Format, hash digest.Func, withPairs bool) hashResult {
	result := hashResult{seqNum: job.seqNum}
	if withPairs {
		result.pairs = make([]mapping.Pair, 0, len(job.records))
	}

	size := 0
	for _, rec := range job.records {
		size += digest.Length + len(rec.Sequence) + len(rec.Quality) + 6
	}
	data := make([]byte, 0, size)

	for i, rec := range job.records {
		if rec.Header == "" {
			result.err = fmt.Errorf("chunk %d, record %d: %w", job.seqNum, i+1, errEmptyHeader)
			return result
		}
		d := hash(rec.Header)
		data = format.AppendRecord(data, f, d, rec.Sequence, rec.Quality)
		if withPairs {
			result.pairs = append(result.pairs, mapping.Pair{Original: rec.Header, Digest: d})
		}
	}
	result.data = data
	return result
}

func produceHashJobs(ctx context.Context, jobs chan<- hashJob, records []*parser.Record, size int) error {
	seqNum := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		select {
		case jobs <- hashJob{seqNum: seqNum, records: records[start:end]}:
			seqNum++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// collectHashResults drains results until the channel is closed, so workers
// never block on a full channel.
func collectHashResults(results <-chan hashResult, numChunks int) ([]hashResult, error) {
	chunks := make([]hashResult, numChunks)
	received := 0
	var firstErr error

	for result := range results {
		if firstErr != nil {
			continue
		}
		// produceHashJobs numbers chunks 0..numChunks-1; this only trips on a
		// producer bug.
		if result.seqNum < 0 || result.seqNum >= numChunks {
			firstErr = fmt.Errorf("unexpected chunk %d", result.seqNum)
			continue
		}
		chunks[result.seqNum] = result
		received++
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if received != numChunks {
		return nil, fmt.Errorf("collected %d of %d chunks", received, numChunks)
	}
	return chunks, nil
}
