//go:build !unix

package driver

// raiseFileLimit is a no-op on platforms without an RLIMIT_NOFILE concept.
func raiseFileLimit(want int) error { return nil }
