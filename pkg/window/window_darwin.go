//go:build darwin

package window

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

type darwinPlatform struct{}

func newPlatform() platform {
	return darwinPlatform{}
}

// evict invalidates cached pages in [0, upto) via msync(MS_INVALIDATE)
// on the mapping itself. Unlike Linux, the mapping stays valid and does
// not need to be re-established.
func (darwinPlatform) evict(_ *os.File, m mmap.MMap, upto int64) (mmap.MMap, error) {
	if m == nil {
		return m, nil
	}

	if upto > int64(len(m)) {
		upto = int64(len(m))
	}

	if err := unix.Msync([]byte(m[:upto]), unix.MS_INVALIDATE); err != nil {
		return m, fmt.Errorf("msync MS_INVALIDATE failed: %w", err)
	}

	return m, nil
}

// residentFraction uses mincore(2) to report what fraction of m is
// currently resident in the page cache.
func (darwinPlatform) residentFraction(m mmap.MMap) (float64, error) {
	if len(m) == 0 {
		return 1, nil
	}

	pageSize := os.Getpagesize()
	vec := make([]byte, (len(m)+pageSize-1)/pageSize)

	if err := unix.Mincore(m, vec); err != nil {
		return 0, fmt.Errorf("mincore failed: %w", err)
	}

	resident := 0

	for _, b := range vec {
		if b&1 == 1 {
			resident++
		}
	}

	return float64(resident) / float64(len(vec)), nil
}
