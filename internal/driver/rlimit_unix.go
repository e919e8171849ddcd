//go:build unix

package driver

import "golang.org/x/sys/unix"

// raiseFileLimit raises RLIMIT_NOFILE's soft limit to the hard limit when
// want exceeds the current soft limit. Failing to raise it when more file
// descriptors than the soft limit are actually needed is a fatal startup
// error per the resource-setup policy: connections would fail to open
// silently otherwise.
func raiseFileLimit(want int) error {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return err
	}
	if uint64(want) <= rl.Cur {
		return nil
	}
	rl.Cur = rl.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rl)
}
