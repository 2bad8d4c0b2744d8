// Package rtprio acquires realtime scheduling priority and drops root
// privileges. Priority acquisition is best-effort: failure is logged and
// the process continues. A privilege-drop failure while still root is
// fatal.
package rtprio

import (
	"fmt"
	"log"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// schedFIFOPriority is the SCHED_FIFO priority requested for the audio
// threads.
const schedFIFOPriority = 80

// SetRealtime requests SCHED_FIFO scheduling at schedFIFOPriority for the
// calling OS thread. Callers on Linux must pair this with
// runtime.LockOSThread so the priority applies to the goroutine actually
// doing the audio I/O.
func SetRealtime() {
	param := &unix.SchedParam{Priority: schedFIFOPriority}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		log.Printf("[rtprio] SCHED_FIFO unavailable, continuing at normal priority: %v", err)
	}
}

// DropPrivileges switches the process to the named unprivileged account
// (typically "nobody") if currently running as root. It is a no-op for a
// non-root process.
func DropPrivileges(account string) error {
	if unix.Getuid() != 0 {
		return nil
	}

	u, err := user.Lookup(account)
	if err != nil {
		return fmt.Errorf("rtprio: lookup user %q: %w", account, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("rtprio: parse gid %q: %w", u.Gid, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("rtprio: parse uid %q: %w", u.Uid, err)
	}

	// Group must be dropped before user: once uid changes, we lose the
	// privilege needed to call setgid.
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("rtprio: setgid(%d): %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("rtprio: setuid(%d): %w", uid, err)
	}
	return nil
}
