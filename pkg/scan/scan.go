// Package scan wires the Window Manager, Dispatcher, and Worker Pool
// together, drives startup and shutdown, and aggregates final stats.
package scan

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/wordscan/pkg/dispatch"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/pattern"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/queue"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/stats"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/window"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/worker"
)

// Default flag values.
const (
	DefaultBlockSize = 8_388_608
	DefaultCacheSize = 2_147_483_648
	DefaultShardSize = 393_728
)

// busyWaitInterval is how often the Coordinator polls the work queue for
// emptiness before enqueueing sentinels.
const busyWaitInterval = 2 * time.Millisecond

// Config bundles everything the CLI layer parses into the shape the
// Coordinator's constructor needs.
type Config struct {
	Pattern      string
	WordlistPath string
	Exact        bool
	Regex        bool
	First        bool
	Verbose      bool
	Position     bool
	BlockSize    int64
	CacheSize    int64
	ShardSize    int64

	// Out is where matched lines are written; defaults to os.Stdout.
	Out io.Writer
	// Logger receives startup/shutdown diagnostics; defaults to a no-op
	// logger. Matched lines never go through it.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Out == nil {
		c.Out = os.Stdout
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}

	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}

	if c.ShardSize == 0 {
		c.ShardSize = DefaultShardSize
	}

	return c
}

func buildMatcher(cfg Config) (pattern.Matcher, error) {
	// Precedence: --regex implies regex; else --exact; else substring.
	switch {
	case cfg.Regex:
		return pattern.NewRegex(cfg.Pattern)
	case cfg.Exact:
		return pattern.NewExact([]byte(cfg.Pattern)), nil
	default:
		return pattern.NewSubstring([]byte(cfg.Pattern)), nil
	}
}

// Run builds the Window, Dispatcher, and Worker Pool, drives one
// end-to-end scan, and returns the aggregated stats. Any error from file
// open, memory map, or syscall is fatal and propagated; there is no
// retry or local recovery.
func Run(cfg Config) (stats.Stats, error) {
	cfg = cfg.withDefaults()

	runID := uuid.NewString()
	logger := cfg.Logger.With(zap.String("run_id", runID))

	start := time.Now()

	matcher, err := buildMatcher(cfg)
	if err != nil {
		return stats.Stats{}, err
	}

	win, err := window.Init(cfg.WordlistPath, cfg.CacheSize, cfg.BlockSize, cfg.Verbose)
	if err != nil {
		return stats.Stats{}, fmt.Errorf("failed to initialize window manager: %w", err)
	}
	defer win.Close()

	numWorkers := runtime.NumCPU()

	if cfg.Verbose {
		logger.Info("starting scan",
			zap.String("wordlist", cfg.WordlistPath),
			zap.Int64("file_length", win.FileLength()),
			zap.Int("workers", numWorkers),
			zap.Int64("cache_size", cfg.CacheSize),
			zap.Int64("block_size", cfg.BlockSize),
			zap.Int64("shard_size", cfg.ShardSize),
			zap.Bool("exact", cfg.Exact),
			zap.Bool("regex", cfg.Regex),
			zap.Bool("first", cfg.First),
			zap.Int64("cache_point", win.CachePoint()),
		)
	}

	// Queue capacities are a heuristic multiple of the worker count: big
	// enough that the dispatcher rarely blocks on Push, small enough not
	// to buffer the whole file's worth of chunks in memory at once.
	queueCapacity := numWorkers*4 + 16

	workQueue := queue.New[dispatch.Chunk](queueCapacity)
	statsQueue := queue.New[stats.Stats](queueCapacity)

	pool := worker.New(worker.Config{
		Matcher:    matcher,
		Position:   cfg.Position,
		NumWorkers: numWorkers,
	}, workQueue, statsQueue, cfg.Out)
	pool.Start()

	dispatcher := dispatch.New(dispatch.Config{
		ShardSize: cfg.ShardSize,
		First:     cfg.First,
	}, win, workQueue, statsQueue)

	dispatchStats, err := dispatcher.Run()
	if err != nil {
		return stats.Stats{}, fmt.Errorf("dispatcher failed: %w", err)
	}

	// Busy-wait until the work queue drains before handing out sentinels,
	// so workers see every real chunk before their shutdown signal.
	for workQueue.Len() > 0 {
		time.Sleep(busyWaitInterval)
	}

	for i := 0; i < numWorkers; i++ {
		workQueue.PushSentinel()
	}

	if err := pool.Wait(); err != nil {
		return stats.Stats{}, fmt.Errorf("worker pool failed: %w", err)
	}

	if !pool.AllAcked() {
		return stats.Stats{}, fmt.Errorf("internal invariant violated: not every worker acknowledged its shutdown sentinel")
	}

	total := dispatchStats

	for {
		item, ok := statsQueue.TryPop()
		if !ok {
			break
		}

		total = total.Add(item.Value)
	}

	if cfg.Verbose {
		logger.Info("scan complete",
			zap.Duration("elapsed", time.Since(start)),
			zap.Uint64("cracked", total.Cracked),
			zap.Uint64("hashed", total.Hashed),
			zap.Uint64("waits", total.Waits),
			zap.Uint64("kbs", total.Kbs),
		)
	}

	return total, nil
}
