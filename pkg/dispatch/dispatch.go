// Package dispatch carves the mapped wordlist into line-aligned chunks,
// feeds the work queue, drives the sliding-window evict/prefetch cadence,
// and polls for early termination under --first.
package dispatch

import (
	"github.com/e2b-dev/infra/packages/wordscan/pkg/queue"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/stats"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/window"
)

// checkThresh is how often (in chunks) the dispatcher polls the stats
// queue for an early-exit signal.
const checkThresh = 50

// Chunk is a line-aligned, file-order-tagged slice of the wordlist. Bytes
// is a copy of the mapped region: workers must own their data
// independently of the mapping, since the dispatcher may evict the
// underlying pages before a worker finishes with it.
type Chunk struct {
	Offset int64
	Bytes  []byte
}

// Config bundles the dispatcher's tunables.
type Config struct {
	ShardSize int64
	First     bool
}

// Dispatcher drives a Window forward, carving and enqueuing chunks.
type Dispatcher struct {
	cfg Config
	win *window.Window

	work  *queue.Queue[Chunk]
	stats *queue.Queue[stats.Stats]
}

// New builds a Dispatcher over win, pushing chunks onto work and polling
// stats for early termination.
func New(cfg Config, win *window.Window, work *queue.Queue[Chunk], statsQueue *queue.Queue[stats.Stats]) *Dispatcher {
	return &Dispatcher{cfg: cfg, win: win, work: work, stats: statsQueue}
}

// Run executes the carve-and-enqueue loop to completion (or early exit
// under --first) and returns the dispatcher's own contribution to the
// final stats: its locally-accumulated kbs, folded together with any
// worker stats snapshots it happened to drain while polling for early
// exit, so none of those are lost to the Coordinator's final sum.
func (d *Dispatcher) Run() (stats.Stats, error) {
	var accum stats.Stats

	mapped := d.win.Mapped()
	fileLength := d.win.FileLength()

	if fileLength == 0 {
		return accum, nil
	}

	halfCache := d.win.CacheSize() / 2
	if halfCache <= 0 {
		halfCache = fileLength
	}

	var pos int64
	var chunkCount int64
	cracked := false

	for pos < fileLength-1 {
		to := pos + d.cfg.ShardSize
		if to > fileLength {
			to = fileLength
		}

		for to < fileLength && mapped[to-1] != '\n' {
			to++
		}

		chunkBytes := make([]byte, to-pos)
		copy(chunkBytes, mapped[pos:to])

		d.work.PushValue(Chunk{Offset: pos, Bytes: chunkBytes})

		accum.Kbs += uint64(len(chunkBytes)) / 1024

		pos = to - 1
		chunkCount++

		if chunkCount%checkThresh == 0 {
			if item, ok := d.stats.TryPop(); ok && !item.Sentinel {
				accum = accum.Add(item.Value)

				if item.Value.Cracked > 0 {
					cracked = true
				}
			}

			if d.cfg.First && cracked {
				break
			}
		}

		if halfCache > 0 && pos%halfCache <= d.cfg.ShardSize && d.win.CachePoint() < fileLength {
			if err := d.win.Evict(pos); err != nil {
				return accum, err
			}

			if err := d.win.PrefetchNextHalf(); err != nil {
				return accum, err
			}

			// Eviction may have re-established the mapping (Linux),
			// so re-read it before the next slice.
			mapped = d.win.Mapped()
		}
	}

	return accum, nil
}
