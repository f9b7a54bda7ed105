package sacn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

//Set the read timeout according to the E1.31 network data loss timeout
const timeoutMs = 2500

//readBufferSize is larger than PacketLength, so oversized datagrams reach the handler with
//their real length instead of being cut to a valid looking packet
const readBufferSize = 1500

//Serve reads datagrams until ctx is done or the socket is closed and passes each one to h.
//Rejected datagrams are the handler's business, Serve only returns on socket errors or
//cancellation.
func (s *Socket) Serve(ctx context.Context, h DatagramHandler) error {
	//wake up a blocked read as soon as the context is done
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.conn.SetReadDeadline(time.Now().Add(time.Millisecond * timeoutMs))
		n, _, _, err := s.conn.ReadFrom(buf) //n, ControlMessage, addr, err
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue //no packet within 2,5s, keep on listening
			}
			return fmt.Errorf("sacn: read: %w", err)
		}
		h.Handle(buf[:n])
	}
}
