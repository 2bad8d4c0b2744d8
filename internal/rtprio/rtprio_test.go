package rtprio

import "testing"

func TestDropPrivilegesNoopWhenNotRoot(t *testing.T) {
	// The test suite never runs as root, so this exercises the early-return
	// path without needing a real "nobody" account lookup.
	if err := DropPrivileges("nobody"); err != nil {
		t.Fatalf("DropPrivileges as non-root should be a no-op, got: %v", err)
	}
}

func TestSetRealtimeDoesNotPanic(t *testing.T) {
	SetRealtime()
}
