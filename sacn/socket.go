package sacn

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

//DatagramHandler consumes raw datagrams read by a Socket. *Receiver implements it.
type DatagramHandler interface {
	Handle(raw []byte) (Outcome, error)
}

//Socket listens on the sACN port and manages the multicast groups of the universes.
//It hands every datagram to a DatagramHandler without looking at it.
//
//Depending on your operating system, you might can provide nil as interface, sometimes you
//have to use a dedicated interface to get multicast working.
//Windows needs an interface and Linux generally not.
type Socket struct {
	raw                net.PacketConn
	conn               *ipv4.PacketConn
	multicastInterface *net.Interface // the interface that is used for joining multicast groups

	mu     sync.Mutex
	joined map[uint16]struct{}
}

//ListenMulticast opens a UDP socket on port 5568 and joins the multicast groups of the given
//universes.
func ListenMulticast(ifi *net.Interface, universes ...uint16) (*Socket, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%v", Port))
	if err != nil {
		return nil, fmt.Errorf("sacn: listen: %w", err)
	}
	//some testing revealed that sometimes in multicast-use packets were lost
	//this should help out the problem
	if udp, ok := conn.(*net.UDPConn); ok {
		udp.SetReadBuffer(8 * PacketLength)
	}
	s := newSocket(conn, ifi)
	for _, universe := range universes {
		if err := s.JoinUniverse(universe); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func newSocket(conn net.PacketConn, ifi *net.Interface) *Socket {
	return &Socket{
		raw:                conn,
		conn:               ipv4.NewPacketConn(conn),
		multicastInterface: ifi,
		joined:             make(map[uint16]struct{}),
	}
}

//JoinUniverse joins the socket to the multicast group that is used for the universe.
//After the multicast group was joined, any source that transmits on this universe via
//multicast should reach this socket.
func (s *Socket) JoinUniverse(universe uint16) error {
	if !validUniverse(universe) {
		return fmt.Errorf("%w: %v", ErrInvalidUniverse, universe)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[universe]; ok {
		return nil
	}
	if err := s.conn.JoinGroup(s.multicastInterface, MulticastAddr(universe)); err != nil {
		return fmt.Errorf("sacn: join universe %v: %w", universe, err)
	}
	s.joined[universe] = struct{}{}
	return nil
}

//LeaveUniverse leaves the multicast group of the given universe.
//If the socket was not joined to the multicast group nothing will happen.
func (s *Socket) LeaveUniverse(universe uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[universe]; !ok {
		return nil
	}
	delete(s.joined, universe)
	if err := s.conn.LeaveGroup(s.multicastInterface, MulticastAddr(universe)); err != nil {
		return fmt.Errorf("sacn: leave universe %v: %w", universe, err)
	}
	return nil
}

//Universes returns the universes whose multicast groups are joined
func (s *Socket) Universes() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]uint16, 0, len(s.joined))
	for univ := range s.joined {
		list = append(list, univ)
	}
	return list
}

//LocalAddr returns the address the socket is bound to
func (s *Socket) LocalAddr() net.Addr {
	return s.raw.LocalAddr()
}

//Close closes the udp socket. A running Serve returns afterwards.
func (s *Socket) Close() error {
	return s.conn.Close()
}
