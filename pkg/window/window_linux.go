//go:build linux

package window

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

type linuxPlatform struct{}

func newPlatform() platform {
	return linuxPlatform{}
}

// evict issues FADV_DONTNEED over [0, upto) and re-establishes the
// mapping. Re-mapping is not a style preference: empirically, once
// FADV_DONTNEED has been applied the kernel will not honor further
// eviction advice against the same mapping until it is recreated.
func (linuxPlatform) evict(f *os.File, m mmap.MMap, upto int64) (mmap.MMap, error) {
	if err := unix.Fadvise(int(f.Fd()), 0, upto, unix.FADV_DONTNEED); err != nil {
		return m, fmt.Errorf("fadvise DONTNEED failed: %w", err)
	}

	if m == nil {
		return m, nil
	}

	size := len(m)

	if err := m.Unmap(); err != nil {
		return nil, fmt.Errorf("failed to unmap before re-mapping: %w", err)
	}

	remapped, err := mmap.MapRegion(f, size, mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to re-map after eviction: %w", err)
	}

	return remapped, nil
}

// residentFraction uses mincore(2) to report what fraction of m is
// currently resident in the page cache.
func (linuxPlatform) residentFraction(m mmap.MMap) (float64, error) {
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
