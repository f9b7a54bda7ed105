package sacn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

//Outcome classifies what happened to a datagram handed to the Receiver.
type Outcome int

const (
	//Rejected datagrams failed the length check or validation and did not touch any state.
	Rejected Outcome = iota
	//Unchanged datagrams were valid and refreshed the liveness timestamp, but carried the same
	//DMX data as the last accepted frame.
	Unchanged
	//Accepted datagrams carried changed DMX data and were delivered.
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Unchanged:
		return "unchanged"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

//Observer gets notified about every datagram the Receiver handled. reason is nil unless the
//datagram was rejected. Observers are called on the receive path and must not block.
type Observer interface {
	ObserveDatagram(universe uint16, outcome Outcome, reason error)
}

//Receiver turns raw sACN datagrams into validated, deduplicated DMX frames for one universe.
//Changed frames are either pushed to a callback or can be pulled with WaitForNewData.
//Only the latest frame is kept, a slow consumer always observes the current state.
//
//All methods are safe for concurrent use.
type Receiver struct {
	universe uint16
	debug    bool
	log      zerolog.Logger
	callback func(DMXFrame)
	observer Observer
	now      func() time.Time

	//handleMu serializes the receive path, so callbacks are invoked in arrival order
	handleMu sync.Mutex
	lastSequ byte
	haveSequ bool

	mu           sync.Mutex
	previous     DMXFrame
	lastReceived time.Time
	newData      bool
	notify       chan struct{}
}

//Option configures a Receiver
type Option func(*Receiver) error

//WithCallback registers a function that is invoked synchronously for every changed frame.
//The callback runs on the receive path, so it has to return quickly. If a callback is
//registered, WaitForNewData will not see the frames delivered to it.
func WithCallback(callback func(DMXFrame)) Option {
	return func(r *Receiver) error {
		if callback == nil {
			return fmt.Errorf("sacn: callback must not be nil")
		}
		r.callback = callback
		return nil
	}
}

//WithLogger sets the sink for diagnostic messages. Messages are only written if the receiver
//was created with debug enabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Receiver) error {
		r.log = logger
		return nil
	}
}

//WithObserver registers an Observer, e.g. for metrics
func WithObserver(observer Observer) Option {
	return func(r *Receiver) error {
		r.observer = observer
		return nil
	}
}

//WithClock replaces time.Now as source for the liveness timestamp
func WithClock(now func() time.Time) Option {
	return func(r *Receiver) error {
		if now == nil {
			return fmt.Errorf("sacn: clock must not be nil")
		}
		r.now = now
		return nil
	}
}

//NewReceiver creates a Receiver for the given universe. The universe is only used for
//diagnostics, joining the multicast group is up to the transport (see Socket).
//If debug is true, the reason for every discarded datagram is logged at debug level.
func NewReceiver(universe uint16, debug bool, opts ...Option) (*Receiver, error) {
	if !validUniverse(universe) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUniverse, universe)
	}
	r := &Receiver{
		universe: universe,
		debug:    debug,
		log:      zerolog.Nop(),
		now:      time.Now,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.log = r.log.With().Uint16("universe", universe).Logger()
	return r, nil
}

//Universe returns the universe this receiver was created for
func (r *Receiver) Universe() uint16 {
	return r.universe
}

//Handle processes one raw datagram. The slice is not retained and may be reused by the caller
//after Handle returns. The error describes why a datagram was rejected; it is nil for
//Accepted and Unchanged datagrams.
func (r *Receiver) Handle(raw []byte) (Outcome, error) {
	r.handleMu.Lock()
	defer r.handleMu.Unlock()

	outcome, err := r.handle(raw)
	if r.observer != nil {
		r.observer.ObserveDatagram(r.universe, outcome, err)
	}
	return outcome, err
}

func (r *Receiver) handle(raw []byte) (Outcome, error) {
	p, err := ParsePacket(raw)
	if err != nil {
		r.debugf(err, "discarding datagram")
		return Rejected, err
	}
	if err := p.Validate(); err != nil {
		r.debugf(err, "discarding datagram")
		return Rejected, err
	}
	r.inspect(p)

	frame := p.Slots()

	r.mu.Lock()
	//liveness is refreshed before the change detection, so a source repeating the same
	//frame still counts as alive
	r.lastReceived = r.now()
	if frame == r.previous {
		r.mu.Unlock()
		if r.debug {
			r.log.Debug().Msg("packet is identical to current values; no change")
		}
		return Unchanged, nil
	}
	r.previous = frame
	if r.callback == nil {
		r.newData = true
	}
	r.mu.Unlock()

	if r.debug {
		r.log.Debug().Str("source", p.SourceName()).Uint8("sequence", p.Sequence()).
			Msg("received sACN packet with new DMX data")
	}

	if r.callback != nil {
		r.callback(frame)
		return Accepted, nil
	}
	select {
	case r.notify <- struct{}{}:
	default: //a wakeup is already pending
	}
	return Accepted, nil
}

//inspect emits diagnostics about the framing layer of a valid packet. It never drops packets.
func (r *Receiver) inspect(p *DataPacket) {
	sequ := p.Sequence()
	outOfOrder := r.haveSequ && !checkSequ(r.lastSequ, sequ)
	r.lastSequ, r.haveSequ = sequ, true
	if !r.debug {
		return
	}
	if u := p.Universe(); u != r.universe {
		r.log.Debug().Uint16("packet_universe", u).Msg("packet is for another universe")
	}
	if outOfOrder {
		r.log.Debug().Uint8("sequence", sequ).Msg("packet is out of sequence")
	}
	if p.StreamTerminated() {
		r.log.Debug().Str("cid", p.CID().String()).Msg("source terminated the stream")
	}
}

func (r *Receiver) debugf(err error, msg string) {
	if r.debug {
		r.log.Debug().Err(err).Msg(msg)
	}
}

//WaitForNewData blocks until a changed frame is available and returns it. The new data flag is
//cleared, so the next call blocks again until the DMX data changes. If ctx is done before, the
//context error is returned.
func (r *Receiver) WaitForNewData(ctx context.Context) (DMXFrame, error) {
	for {
		if frame, ok := r.takeNewData(); ok {
			return frame, nil
		}
		select {
		case <-ctx.Done():
			return DMXFrame{}, ctx.Err()
		case <-r.notify:
		}
	}
}

//WaitForNewDataTimeout is like WaitForNewData, but gives up after timeout. ok is false if no
//new data arrived in time.
func (r *Receiver) WaitForNewDataTimeout(timeout time.Duration) (frame DMXFrame, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	frame, err := r.WaitForNewData(ctx)
	return frame, err == nil
}

func (r *Receiver) takeNewData() (DMXFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.newData {
		return DMXFrame{}, false
	}
	r.newData = false
	return r.previous, true
}

//Latest returns the last accepted frame without touching the new data flag.
//Before the first change it is all zero.
func (r *Receiver) Latest() DMXFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous
}

//LastReceived returns the time of the last valid packet, regardless if its data changed.
//The zero time is returned if no valid packet was received yet.
func (r *Receiver) LastReceived() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReceived
}

//Stale reports whether no valid packet was received within the given duration.
//What to do about a stale source is up to the caller.
func (r *Receiver) Stale(after time.Duration) bool {
	last := r.LastReceived()
	return last.IsZero() || r.now().Sub(last) > after
}
