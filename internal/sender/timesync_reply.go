package sender

import (
	"log"
	"net"

	"audiosync/internal/timesync"
	"audiosync/internal/transport"
	"audiosync/internal/wire"
)

// TimeSyncReplier is the sender-side half of time synchronisation: a
// dedicated task that answers TimeRequests on the shared socket.
type TimeSyncReplier struct {
	Conn *transport.Conn
}

// Run reads 12-byte requests until the socket closes or a fatal error
// occurs. Datagrams of any other size are ignored: the sender's socket
// should only ever receive TimeRequests.
func (t *TimeSyncReplier) Run() error {
	buf := make([]byte, 65536)
	for {
		n, from, err := t.Conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		if n != wire.TimeRequestSize {
			continue
		}
		t.handle(buf[:n], from)
	}
}

func (t *TimeSyncReplier) handle(b []byte, from *net.UDPAddr) {
	req, err := wire.ParseTimeRequest(b)
	if err != nil {
		log.Printf("[sender] parse time request: %v", err)
		return
	}

	reply := timesync.Reply(req, nowTimestamp())
	out := wire.EncodeTimeReply(reply)
	if _, err := t.Conn.WriteToUDP(out, from); err != nil {
		log.Printf("[sender] send time reply: %v", err)
	}
}
