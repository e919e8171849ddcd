//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the native BSD/Darwin backend, adapted from the kqueue
// readiness loop used elsewhere in this codebase's dependency tree for an
// async runtime's epoll/kqueue poller pair: one kqueue descriptor per
// worker, EVFILT_READ/EVFILT_WRITE registered per connection fd.
type kqueuePoller struct {
	kq int
}

// New returns the OS-preferred backend for this platform.
func New() Poller { return &kqueuePoller{kq: -1} }

func (p *kqueuePoller) Open() error {
	fd, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = fd
	return nil
}

func (p *kqueuePoller) Close() error {
	if p.kq < 0 {
		return nil
	}
	err := unix.Close(p.kq)
	p.kq = -1
	return err
}

// changesFor builds the add/enable-or-delete pair for both filters on fd.
// Only the direction(s) in interest are armed; the other is submitted as a
// delete so a Modify that narrows interest actually stops reporting it.
// A connect-only registration (interest == Writable) therefore submits a
// WRITE add alongside a READ delete — and that delete targets a filter
// that was never added, which kqueue reports as ENOENT. apply submits
// both changes with a receive buffer so that per-change error does not
// abort the rest of the batch (see apply).
func (p *kqueuePoller) changesFor(fd int, interest Interest) []unix.Kevent_t {
	readFlags := uint16(unix.EV_DELETE)
	if interest&Readable != 0 {
		readFlags = unix.EV_ADD | unix.EV_ENABLE
	}
	writeFlags := uint16(unix.EV_DELETE)
	if interest&Writable != 0 {
		writeFlags = unix.EV_ADD | unix.EV_ENABLE
	}
	return []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: readFlags},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: writeFlags},
	}
}

// apply submits changes with an eventlist sized to match, so a change that
// errors (most commonly EV_DELETE on a filter that was never added, i.e.
// ENOENT) is reported per-change via EV_ERROR instead of aborting the rest
// of the changelist the way a nil eventlist does. A zero timeout means the
// call only drains the changelist; it never blocks waiting for events.
func (p *kqueuePoller) apply(changes []unix.Kevent_t) error {
	out := make([]unix.Kevent_t, len(changes))
	ts := unix.Timespec{}
	if _, err := unix.Kevent(p.kq, changes, out, &ts); err != nil && err != unix.EINTR {
		return err
	}
	for _, ev := range out {
		if ev.Flags&unix.EV_ERROR != 0 && unix.Errno(ev.Data) != 0 && unix.Errno(ev.Data) != unix.ENOENT {
			return unix.Errno(ev.Data)
		}
	}
	return nil
}

func (p *kqueuePoller) Add(fd int, interest Interest) error {
	return p.apply(p.changesFor(fd, interest))
}

func (p *kqueuePoller) Modify(fd int, interest Interest) error {
	return p.apply(p.changesFor(fd, interest))
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	return p.apply(changes)
}

func (p *kqueuePoller) Wait(dst []Event, timeout time.Duration) (int, error) {
	raw := make([]unix.Kevent_t, len(dst))
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(p.kq, nil, raw, &ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	byFd := make(map[int]*Event)
	count := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		ev, ok := byFd[fd]
		if !ok {
			dst[count] = Event{Fd: fd}
			ev = &dst[count]
			byFd[fd] = ev
			count++
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			ev.Err = true
			continue
		}
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
	}
	return count, nil
}
