//go:build !linux

package prefetch

// load1 degrades to reporting zero load on platforms where
// unix.Sysinfo is unavailable; a zero reading never trips the
// load-aware branch of the throttling policy, only the unconditional
// hard queue-depth cap in throttle.
func load1() float64 {
	return 0
}
