// Package worker runs N workers pulling line-aligned chunks off the work
// queue, matching each line, and writing matches into a per-worker
// buffered stdout sink.
package worker

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/e2b-dev/infra/packages/wordscan/pkg/dispatch"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/pattern"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/queue"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/stats"
)

const (
	// flushThreshold is the local output buffer size at which a worker
	// flushes to stdout.
	flushThreshold = 8 * 1024
	// statsUpdateThreshold is how many local matches accumulate before a
	// worker reports a stats snapshot.
	statsUpdateThreshold = 1
	// maxBackoff caps the idle-poll sleep so a long quiet stretch near
	// shutdown can't delay sentinel pickup past this bound.
	maxBackoff = 250 * time.Millisecond
)

// Config bundles the worker pool's tunables.
type Config struct {
	Matcher    pattern.Matcher
	Position   bool
	NumWorkers int
}

// Pool owns the shared work/stats queues and the shutdown-acknowledgment
// bitset the Coordinator consults before join.
type Pool struct {
	cfg   Config
	work  *queue.Queue[dispatch.Chunk]
	stats *queue.Queue[stats.Stats]
	out   io.Writer

	eg *errgroup.Group

	mu    sync.Mutex
	acked *bitset.BitSet
}

// New builds a Pool writing matched lines to out (normally os.Stdout).
func New(cfg Config, work *queue.Queue[dispatch.Chunk], statsQueue *queue.Queue[stats.Stats], out io.Writer) *Pool {
	return &Pool{
		cfg:   cfg,
		work:  work,
		stats: statsQueue,
		out:   out,
		acked: bitset.New(uint(cfg.NumWorkers)),
	}
}

// Start launches NumWorkers goroutines under an errgroup.Group and
// returns immediately.
func (p *Pool) Start() {
	eg := &errgroup.Group{}

	for i := 0; i < p.cfg.NumWorkers; i++ {
		id := i

		eg.Go(func() error {
			return p.runWorker(id)
		})
	}

	p.eg = eg
}

// Wait blocks until every worker has received its sentinel, flushed, and
// exited, returning the first fatal worker error, if any. An output
// write failure is fatal to the worker that hit it.
func (p *Pool) Wait() error {
	return p.eg.Wait()
}

// AllAcked reports whether every worker has acknowledged its shutdown
// sentinel — an invariant the Coordinator can assert right before
// relying on Wait() having returned.
func (p *Pool) AllAcked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.acked.Count() == uint(p.cfg.NumWorkers)
}

// runWorker is the single worker loop. It returns a non-nil error only
// on a fatal output write failure, which errgroup surfaces to the
// Coordinator via Wait().
func (p *Pool) runWorker(id int) error {
	buf := make([]byte, 0, flushThreshold)
	var local stats.Stats
	var waits uint64

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}

		if _, err := p.out.Write(buf); err != nil {
			return fmt.Errorf("worker %d: failed to flush output: %w", id, err)
		}

		buf = buf[:0]

		return nil
	}

	report := func() {
		p.stats.PushValue(local)
		local = stats.Stats{}
	}

	ack := func() {
		p.mu.Lock()
		p.acked.Set(uint(id))
		p.mu.Unlock()
	}

	for {
		item, ok := p.work.TryPop()
		if !ok {
			sleep := time.Duration(waits) * time.Millisecond
			if sleep > maxBackoff {
				sleep = maxBackoff
			}

			time.Sleep(sleep)
			waits++
			local.Waits++

			continue
		}

		if item.Sentinel {
			flushErr := flush()
			// Every sentinel produces exactly one final stats message,
			// whatever remains locally unreported.
			report()
			ack()

			return flushErr
		}

		chunk := item.Value

		for _, seg := range splitLines(chunk.Offset, chunk.Bytes) {
			local.Hashed++

			if p.cfg.Matcher.Matches(seg.bytes) {
				local.Cracked++

				if p.cfg.Position {
					buf = append(buf, strconv.FormatInt(seg.offset, 10)...)
					buf = append(buf, ':')
				}

				buf = append(buf, seg.bytes...)
				buf = append(buf, '\n')
			}

			if len(buf) >= flushThreshold {
				if err := flush(); err != nil {
					// Output write failures are fatal to this worker
					// and, by extension, the process; we still report
					// what we have before exiting.
					report()

					return err
				}
			}

			if local.Cracked >= statsUpdateThreshold {
				report()
			}
		}
	}
}

// line is a matched-against segment plus the exact file offset of its
// first byte: the reported offset is the line's true start, not derived
// from any running length-plus-one arithmetic.
type line struct {
	offset int64
	bytes  []byte
}

// splitLines splits b (a chunk starting at absolute file offset base) on
// '\n', skipping empty segments, and tags each surviving segment with
// the exact file offset of its first byte.
func splitLines(base int64, b []byte) []line {
	var out []line

	start := 0

	for i, c := range b {
		if c != '\n' {
			continue
		}

		if i > start {
			out = append(out, line{offset: base + int64(start), bytes: b[start:i]})
		}

		start = i + 1
	}

	if start < len(b) {
		out = append(out, line{offset: base + int64(start), bytes: b[start:]})
	}

	return out
}
