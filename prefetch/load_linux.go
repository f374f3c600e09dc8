//go:build linux

package prefetch

import "golang.org/x/sys/unix"

// load1 returns the 1-minute load average via unix.Sysinfo. Sysinfo
// reports load figures as a fixed-point value scaled by 1<<16 (see
// linux/kernel/sched/loadavg.c FIXED_1); Loads[0] is the 1-minute
// figure.
func load1() float64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return float64(info.Loads[0]) / (1 << 16)
}
