package worker

import (
	"bytes"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e2b-dev/infra/packages/wordscan/pkg/dispatch"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/pattern"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/queue"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/stats"
)

func runPoolToCompletion(t *testing.T, cfg Config, chunks []dispatch.Chunk) (string, stats.Stats) {
	t.Helper()

	work := queue.New[dispatch.Chunk](len(chunks) + cfg.NumWorkers + 1)
	statsQ := queue.New[stats.Stats](1024)

	var out bytes.Buffer

	pool := New(cfg, work, statsQ, &out)
	pool.Start()

	for _, c := range chunks {
		work.PushValue(c)
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		work.PushSentinel()
	}

	done := make(chan error, 1)
	go func() {
		done <- pool.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not finish in time")
	}

	require.True(t, pool.AllAcked())

	var total stats.Stats
	for {
		item, ok := statsQ.TryPop()
		if !ok {
			break
		}

		total = total.Add(item.Value)
	}

	return out.String(), total
}

func TestPoolMatchesBetaTwice(t *testing.T) {
	content := []byte("alpha\nbeta\ngamma\nbeta\n")

	cfg := Config{
		Matcher:    pattern.NewExact([]byte("beta")),
		NumWorkers: 2,
	}

	out, total := runPoolToCompletion(t, cfg, []dispatch.Chunk{{Offset: 0, Bytes: content}})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	sort.Strings(lines)

	require.Equal(t, []string{"beta", "beta"}, lines)
	require.Equal(t, uint64(2), total.Cracked)
	require.Equal(t, uint64(4), total.Hashed)
}

func TestPoolPositionPrefix(t *testing.T) {
	content := []byte("alpha\nbeta\ngamma\nbeta\n")

	cfg := Config{
		Matcher:    pattern.NewExact([]byte("beta")),
		Position:   true,
		NumWorkers: 1,
	}

	out, _ := runPoolToCompletion(t, cfg, []dispatch.Chunk{{Offset: 0, Bytes: content}})

	require.Contains(t, out, "6:beta\n")
	require.Contains(t, out, "17:beta\n")
}

func TestPoolNoMatchesEmptyOutput(t *testing.T) {
	content := []byte("alpha\nbeta\n")

	cfg := Config{
		Matcher:    pattern.NewExact([]byte("nope")),
		NumWorkers: 1,
	}

	out, total := runPoolToCompletion(t, cfg, []dispatch.Chunk{{Offset: 0, Bytes: content}})

	require.Empty(t, out)
	require.Equal(t, uint64(0), total.Cracked)
}

func TestSplitLinesSkipsEmptySegments(t *testing.T) {
	segs := splitLines(10, []byte("\nbeta\n"))
	require.Len(t, segs, 1)
	require.Equal(t, int64(11), segs[0].offset)
	require.Equal(t, "beta", string(segs[0].bytes))
}
