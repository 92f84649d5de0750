package dispatch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/e2b-dev/infra/packages/wordscan/pkg/queue"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/stats"
	"github.com/e2b-dev/infra/packages/wordscan/pkg/window"
)

func newTestWindow(t *testing.T, content []byte, cacheSize int64) *window.Window {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "wordscan-dispatch-*.txt")
	require.NoError(t, err)

	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err := window.Init(f.Name(), cacheSize, 4096, false)
	require.NoError(t, err)

	t.Cleanup(func() { w.Close() })

	return w
}

func TestDispatcherChunksEndOnNewlineOrEOF(t *testing.T) {
	content := []byte("alpha\nbeta\ngamma\nbeta\n")
	w := newTestWindow(t, content, 1<<20)

	work := queue.New[Chunk](16)
	statsQ := queue.New[stats.Stats](16)

	d := New(Config{ShardSize: 8, First: false}, w, work, statsQ)

	_, err := d.Run()
	require.NoError(t, err)

	var lines []string

	lastOffset := int64(-1)
	for {
		item, ok := work.TryPop()
		if !ok {
			break
		}

		require.GreaterOrEqual(t, item.Value.Offset, lastOffset)
		lastOffset = item.Value.Offset

		b := item.Value.Bytes
		require.True(t, len(b) == 0 || b[len(b)-1] == '\n' || item.Value.Offset+int64(len(b)) == w.FileLength())

		// Workers split on '\n' and skip empty segments; consecutive
		// chunks deliberately share their newline boundary byte, so
		// reassembly happens at the line level, not the raw-byte level.
		for _, seg := range splitNonEmpty(b, '\n') {
			lines = append(lines, seg)
		}
	}

	require.Equal(t, []string{"alpha", "beta", "gamma", "beta"}, lines)
}

func splitNonEmpty(b []byte, sep byte) []string {
	var out []string

	start := 0
	for i, c := range b {
		if c == sep {
			if i > start {
				out = append(out, string(b[start:i]))
			}

			start = i + 1
		}
	}

	if start < len(b) {
		out = append(out, string(b[start:]))
	}

	return out
}

func TestDispatcherEmptyFile(t *testing.T) {
	w := newTestWindow(t, []byte{}, 1<<20)

	work := queue.New[Chunk](4)
	statsQ := queue.New[stats.Stats](4)

	d := New(Config{ShardSize: 8}, w, work, statsQ)

	_, err := d.Run()
	require.NoError(t, err)

	_, ok := work.TryPop()
	require.False(t, ok)
}

func TestDispatcherSmallCacheKeepsCachePointInBounds(t *testing.T) {
	content := make([]byte, 4096)
	for i := range content {
		content[i] = 'x'
		if i%64 == 0 {
			content[i] = '\n'
		}
	}

	w := newTestWindow(t, content, 512)

	work := queue.New[Chunk](1024)
	statsQ := queue.New[stats.Stats](4)

	d := New(Config{ShardSize: 64}, w, work, statsQ)

	_, err := d.Run()
	require.NoError(t, err)
	require.LessOrEqual(t, w.CachePoint(), w.FileLength())
}
