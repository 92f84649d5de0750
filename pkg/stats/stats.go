// Package stats carries the per-worker counters the dispatcher and
// coordinator aggregate across a run.
package stats

// Stats is sent by value between workers, the dispatcher, and the
// coordinator. Aggregation is commutative and associative, so the order
// snapshots arrive in never matters.
type Stats struct {
	Cracked uint64 // matches emitted
	Hashed  uint64 // lines examined
	Waits   uint64 // idle-polling hits
	Kbs     uint64 // kilobytes dispatched
}

// Add folds other into s and returns the result.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Cracked: s.Cracked + other.Cracked,
		Hashed:  s.Hashed + other.Hashed,
		Waits:   s.Waits + other.Waits,
		Kbs:     s.Kbs + other.Kbs,
	}
}
