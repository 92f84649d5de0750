// Package window owns the file handle and the whole-file memory mapping,
// and keeps a bounded sliding region of the wordlist resident in the OS
// page cache.
//
// The mapping always covers [0, fileLength) and never changes size
// during a run. Eviction is the one place behavior forks by OS family:
// the platform-specific halves of this package live in window_linux.go
// and window_darwin.go.
package window

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// residencyThreshold is the fraction of the whole mapped file that must
// already be page-cache resident before Init skips the synchronous
// warm-up read.
const residencyThreshold = 0.97

// platform is implemented once per supported OS family in
// window_linux.go / window_darwin.go.
type platform interface {
	// evict discards cached pages in [0, upto) and returns a mapping to
	// use afterward — on Linux this is a freshly re-established mapping
	// (the kernel won't honor further FADV_DONTNEED advice against a
	// stale mapping); on Darwin it's the same mapping, already
	// invalidated in place.
	evict(f *os.File, m mmap.MMap, upto int64) (mmap.MMap, error)
	// residentFraction reports the fraction of m that is currently
	// resident in the page cache.
	residentFraction(m mmap.MMap) (float64, error)
}

// Window holds the file handle, the whole-file mapping, and the
// cachePoint cursor tracking how much of the file has been warmed.
type Window struct {
	mu sync.Mutex

	file      *os.File
	mapping   mmap.MMap
	plat      platform
	verbose   bool
	blockSize int64
	cacheSize int64

	fileLength int64
	cachePoint int64 // bytes for which prefetch has been issued; monotonic
}

// Init opens path read-only, maps it whole, and warms the cache: if
// residency is below the threshold, it synchronously reads either the
// whole file (if smaller than cacheSize) or the first cacheSize bytes,
// through the file handle using a scratch buffer of blockSize, and sets
// cachePoint to the number of bytes warmed. If residency is already at or
// above the threshold, nothing is read and cachePoint is set to
// fileLength.
func Init(path string, cacheSize, blockSize int64, verbose bool) (*Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("failed to stat wordlist: %w", err)
	}

	fileLength := info.Size()

	var m mmap.MMap
	if fileLength > 0 {
		m, err = mmap.MapRegion(f, int(fileLength), mmap.RDONLY, 0, 0)
		if err != nil {
			f.Close()

			return nil, fmt.Errorf("failed to map wordlist: %w", err)
		}
	}

	w := &Window{
		file:       f,
		mapping:    m,
		plat:       newPlatform(),
		verbose:    verbose,
		blockSize:  blockSize,
		cacheSize:  cacheSize,
		fileLength: fileLength,
	}

	if err := w.warmUp(); err != nil {
		w.Close()

		return nil, err
	}

	return w, nil
}

func (w *Window) warmUp() error {
	if w.fileLength == 0 {
		return nil
	}

	frac, err := w.plat.residentFraction(w.mapping)
	if err != nil {
		return fmt.Errorf("failed to probe page-cache residency: %w", err)
	}

	if frac >= residencyThreshold {
		w.cachePoint = w.fileLength

		return nil
	}

	warmLen := w.cacheSize
	if warmLen > w.fileLength {
		warmLen = w.fileLength
	}

	buf := make([]byte, w.blockSize)

	var read int64
	for read < warmLen {
		n := w.blockSize
		if read+n > warmLen {
			n = warmLen - read
		}

		if _, err := w.file.ReadAt(buf[:n], read); err != nil {
			return fmt.Errorf("failed to warm up cache at offset %d: %w", read, err)
		}

		read += n
	}

	w.cachePoint = read

	return nil
}

// Mapped returns the read-only mapped view of the whole file. Callers
// must copy any bytes they intend to retain past the next Evict call,
// since eviction can replace the backing mapping out from under them.
func (w *Window) Mapped() mmap.MMap {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.mapping
}

// FileLength returns the (fixed, for the run's lifetime) file size.
func (w *Window) FileLength() int64 {
	return w.fileLength
}

// CacheSize returns the configured sliding-window size.
func (w *Window) CacheSize() int64 {
	return w.cacheSize
}

// CachePoint returns the current high-water mark of prefetched bytes.
func (w *Window) CachePoint() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cachePoint
}

// PageCacheFraction reports the fraction of the mapping currently
// resident in the OS page cache.
func (w *Window) PageCacheFraction() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.plat.residentFraction(w.mapping)
}

// PrefetchNextHalf advances cachePoint by cacheSize/2, capped at
// fileLength, issuing a synchronous read over the new region. cachePoint
// never decreases.
func (w *Window) PrefetchNextHalf() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cachePoint >= w.fileLength {
		return nil
	}

	next := w.cachePoint + w.cacheSize/2
	if next > w.fileLength {
		next = w.fileLength
	}

	buf := make([]byte, w.blockSize)

	pos := w.cachePoint
	for pos < next {
		n := w.blockSize
		if pos+n > next {
			n = next - pos
		}

		if _, err := w.file.ReadAt(buf[:n], pos); err != nil {
			return fmt.Errorf("failed to prefetch wordlist range [%d,%d): %w", pos, next, err)
		}

		pos += n
	}

	w.cachePoint = next

	return nil
}

// Evict instructs the OS to discard cached pages in [0, upto). On Linux
// the mapping must be (and is) re-established afterward; on Darwin the
// existing mapping is invalidated in place.
func (w *Window) Evict(upto int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if upto <= 0 || w.mapping == nil {
		return nil
	}

	if upto > w.fileLength {
		upto = w.fileLength
	}

	m, err := w.plat.evict(w.file, w.mapping, upto)
	if err != nil {
		return fmt.Errorf("failed to evict wordlist range [0,%d): %w", upto, err)
	}

	w.mapping = m

	return nil
}

// Close unmaps and closes the underlying file.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error

	if w.mapping != nil {
		if err := w.mapping.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmap wordlist: %w", err))
		}
	}

	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close wordlist: %w", err))
	}

	return errors.Join(errs...)
}
