// audiosync is a multicall binary: invoked as (or told to be) mtx it
// transmits audio over UDP unicast or multicast, as mrx it receives and
// plays it back on a wall-clock-aligned grid.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	log.SetFlags(0)

	name := filepath.Base(os.Args[0])
	args := os.Args[1:]

	switch {
	case strings.Contains(name, "mtx"):
		os.Exit(runSender(args))
	case strings.Contains(name, "mrx"):
		os.Exit(runReceiver(args))
	}

	if len(args) > 0 {
		switch {
		case strings.Contains(args[0], "mtx"):
			os.Exit(runSender(args[1:]))
		case strings.Contains(args[0], "mrx"):
			os.Exit(runReceiver(args[1:]))
		}
	}

	fmt.Fprintf(os.Stderr, "audiosync - transmit and receive audio via UDP unicast or multicast\n\n")
	fmt.Fprintf(os.Stderr, "Invalid command.\n\nUsage: %s mtx|mrx [<options>]\n", name)
	os.Exit(127)
}
