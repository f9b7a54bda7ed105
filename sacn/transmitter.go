package sacn

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

//keepAlive is the interval in which the last packet of a universe is sent again
const keepAlive = time.Second

//Transmitter : This struct is for managing the transmitting of sACN data.
//It handles all channels and overwatches what universes are already used.
type Transmitter struct {
	mu        sync.Mutex
	universes map[uint16]chan [ChannelCount]byte
	//master stores the master DataPacket for all univereses. Its the last send out packet
	master       map[uint16]*DataPacket
	finished     map[uint16]chan struct{} //closed after the stream terminated packet was sent
	destinations map[uint16][]net.UDPAddr //holds the info about the destinations unicast or multicast
	multicast    map[uint16]bool          //stores if an universe should be send out as multicast
	bind         string                   //stores the string with the binding information
	cid          uuid.UUID                //the global cid for all packets
	sourceName   string                   //the global source name for all packets
}

//NewTransmitter creates a new Transmitter object and returns it. Only use one object for one
//network interface. bind is a string like "192.168.2.34:0" or "". It is used for binding the
//udp connection. In most cases an empty string will be sufficient.
func NewTransmitter(binding string, cid uuid.UUID, sourceName string) (*Transmitter, error) {
	//create a udp address for testing, if the given bind address is possible
	addr, err := net.ResolveUDPAddr("udp", binding)
	if err != nil {
		return nil, err
	}
	serv, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	serv.Close()
	return &Transmitter{
		universes:    make(map[uint16]chan [ChannelCount]byte),
		master:       make(map[uint16]*DataPacket),
		finished:     make(map[uint16]chan struct{}),
		destinations: make(map[uint16][]net.UDPAddr),
		multicast:    make(map[uint16]bool),
		bind:         binding,
		cid:          cid,
		sourceName:   sourceName,
	}, nil
}

//Activate starts sending out DMX data on the given universe. It returns a channel that accepts
//arrays with the 512 channel values and transmits them to the unicast or multicast destinations.
//If you want to deactivate the universe, simply close the channel. A last packet with the
//stream terminated flag is sent then.
func (t *Transmitter) Activate(universe uint16) (chan<- [ChannelCount]byte, error) {
	if !validUniverse(universe) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUniverse, universe)
	}
	//create udp socket
	ServerAddr, err := net.ResolveUDPAddr("udp", t.bind)
	if err != nil {
		return nil, err
	}
	serv, err := net.ListenUDP("udp", ServerAddr)
	if err != nil {
		return nil, err
	}

	ch := make(chan [ChannelCount]byte)
	done := make(chan struct{})
	//init master packet
	masterPacket := NewDataPacket(universe)
	masterPacket.SetCID(t.cid)
	masterPacket.SetSourceName(t.sourceName)

	finished := make(chan struct{})

	//check and register in one step, so a universe can not be activated twice
	t.mu.Lock()
	if _, ok := t.universes[universe]; ok {
		t.mu.Unlock()
		serv.Close()
		return nil, fmt.Errorf("the given universe %v is already activated", universe)
	}
	t.universes[universe] = ch
	t.master[universe] = masterPacket
	t.finished[universe] = finished
	t.mu.Unlock()

	//make goroutine that sends out every second a "keep alive" packet
	go func() {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			t.sendOut(serv, universe)
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		for i := range ch {
			t.mu.Lock()
			t.master[universe].SetData(i[:])
			t.mu.Unlock()
			t.sendOut(serv, universe)
		}
		close(done)
		//if the channel was closed we send a last packet with stream terminated bit set
		t.mu.Lock()
		t.master[universe].SetStreamTerminated(true)
		t.mu.Unlock()
		t.sendOut(serv, universe)
		//if the channel was closed, we deactivate the universe
		t.mu.Lock()
		delete(t.master, universe)
		delete(t.universes, universe)
		delete(t.finished, universe)
		t.mu.Unlock()
		serv.Close()
		close(finished)
	}()

	return ch, nil
}

//Done returns a channel that is closed once the universe is deactivated and its stream
//terminated packet was sent. For universes that are not activated the channel is already closed.
func (t *Transmitter) Done(universe uint16) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if finished, ok := t.finished[universe]; ok {
		return finished
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

//IsActivated checks if the given universe was activated and returns true if this is the case
func (t *Transmitter) IsActivated(universe uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.universes[universe]
	return ok
}

//GetActivated returns a slice with all activated universes
func (t *Transmitter) GetActivated() (list []uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list = make([]uint16, 0, len(t.universes))
	for univ := range t.universes {
		list = append(list, univ)
	}
	return
}

//SetMulticast is for setting wether or not a universe should be send out via multicast.
//Keep in mind, that on some operating systems you have to provide a bind address.
func (t *Transmitter) SetMulticast(universe uint16, multicast bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.multicast[universe] = multicast
}

//IsMulticast returns wether or not multicast is turned on for the given universe. true: on
func (t *Transmitter) IsMulticast(universe uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.multicast[universe]
}

//SetDestinations sets a slice of destinations for the universe that is used for sending out.
//So multiple destinations are supported. Note: the existing slice will be overwritten!
//Destinations without a port get the sACN port. If there is a string that could not be
//converted to an address, this one is left out and an error slice will be returned.
func (t *Transmitter) SetDestinations(universe uint16, destinations []string) []error {
	newDest := make([]net.UDPAddr, 0, len(destinations))
	errs := make([]error, 0)

	for _, dest := range destinations {
		if dest == "" {
			continue // continue if the string is empty
		}
		if _, _, err := net.SplitHostPort(dest); err != nil {
			dest = net.JoinHostPort(dest, fmt.Sprint(Port))
		}
		addr, err := net.ResolveUDPAddr("udp", dest)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		newDest = append(newDest, *addr)
	}
	t.mu.Lock()
	t.destinations[universe] = newDest
	t.mu.Unlock()

	if len(errs) == 0 {
		return nil
	}
	return errs
}

//Destinations returns all destinations that have been set via SetDestinations. Note: the returned
//slice contains deep copys and no change will affect the internal slice.
func (t *Transmitter) Destinations(universe uint16) []net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	new := make([]net.UDPAddr, len(t.destinations[universe]))
	copy(new, t.destinations[universe])
	return new
}

//handles sending and sequence numbering
func (t *Transmitter) sendOut(server *net.UDPConn, universe uint16) {
	t.mu.Lock()
	//only send if the universe was activated
	master, ok := t.master[universe]
	if !ok {
		t.mu.Unlock()
		return
	}
	//increase sequence number
	master.SequenceIncr()
	packet := master.copy()
	multicast := t.multicast[universe]
	destinations := t.destinations[universe]
	t.mu.Unlock()

	raw := packet.Bytes()
	//check if we have to transmitt via multicast
	if multicast {
		server.WriteToUDP(raw, MulticastAddr(universe))
	}
	//for every destination, send out
	for _, dest := range destinations {
		server.WriteToUDP(raw, &dest)
	}
}
