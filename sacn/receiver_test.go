package sacn

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//fakeClock hands out a new instant on every call
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
	reasons  []error
}

func (o *recordingObserver) ObserveDatagram(universe uint16, outcome Outcome, reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.reasons = append(o.reasons, reason)
}

//rampChannels returns the channel values 1, 2, ... 512 (as bytes)
func rampChannels() []byte {
	c := make([]byte, ChannelCount)
	for i := range c {
		c[i] = byte(i + 1)
	}
	return c
}

func newTestReceiver(t *testing.T, opts ...Option) (*Receiver, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	r, err := NewReceiver(1, false, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return r, clock
}

func TestNewReceiverUniverse(t *testing.T) {
	for _, u := range []uint16{0, 64000} {
		_, err := NewReceiver(u, false)
		assert.ErrorIs(t, err, ErrInvalidUniverse)
	}
	r, err := NewReceiver(63999, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(63999), r.Universe())
	assert.True(t, r.LastReceived().IsZero())
	assert.Equal(t, DMXFrame{}, r.Latest())
}

func TestNewReceiverRejectsNilOptions(t *testing.T) {
	_, err := NewReceiver(1, false, WithCallback(nil))
	assert.Error(t, err)
	_, err = NewReceiver(1, false, WithClock(nil))
	assert.Error(t, err)
}

func TestHandleAcceptsValidFrame(t *testing.T) {
	r, _ := newTestReceiver(t)
	channels := rampChannels()

	outcome, err := r.Handle(validRaw(1, channels))
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)

	frame, ok := r.WaitForNewDataTimeout(time.Second)
	require.True(t, ok)
	assert.Equal(t, byte(0x00), frame.StartCode())
	assert.Equal(t, channels, frame[1:])
	assert.Equal(t, frame, r.Latest())
}

func TestDuplicateRefreshesLivenessOnly(t *testing.T) {
	obs := &recordingObserver{}
	r, _ := newTestReceiver(t, WithObserver(obs))
	raw := validRaw(1, rampChannels())

	outcome, _ := r.Handle(raw)
	require.Equal(t, Accepted, outcome)
	first := r.LastReceived()

	outcome, err := r.Handle(raw)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	second := r.LastReceived()
	assert.True(t, second.After(first), "liveness must be refreshed by identical frames")

	_, ok := r.WaitForNewDataTimeout(time.Second)
	assert.True(t, ok)
	_, ok = r.WaitForNewDataTimeout(20 * time.Millisecond)
	assert.False(t, ok, "identical frame must not be delivered twice")

	assert.Equal(t, []Outcome{Accepted, Unchanged}, obs.outcomes)
}

func TestDuplicateCallbackOnce(t *testing.T) {
	calls := 0
	r, _ := newTestReceiver(t, WithCallback(func(DMXFrame) { calls++ }))
	raw := validRaw(1, rampChannels())
	r.Handle(raw)
	r.Handle(raw)
	assert.Equal(t, 1, calls)
}

func TestRejectedDatagramsDoNotMutateState(t *testing.T) {
	obs := &recordingObserver{}
	r, _ := newTestReceiver(t, WithObserver(obs))
	valid := validRaw(1, rampChannels())

	nonStandard := validRaw(1, rampChannels())
	nonStandard[125] = 0xcc

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrLengthMismatch},
		{"short", valid[:637], ErrLengthMismatch},
		{"long", append(append([]byte(nil), valid...), 0), ErrLengthMismatch},
		{"start code", nonStandard, ErrNonStandardStartCode},
	}
	for _, tt := range tests {
		outcome, err := r.Handle(tt.raw)
		assert.Equal(t, Rejected, outcome, tt.name)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}
	assert.True(t, r.LastReceived().IsZero())
	assert.Equal(t, DMXFrame{}, r.Latest())
	_, ok := r.WaitForNewDataTimeout(20 * time.Millisecond)
	assert.False(t, ok)

	require.Len(t, obs.reasons, len(tests))
	for _, reason := range obs.reasons {
		assert.Error(t, reason)
	}
}

func TestNonStandardStartCodeKeepsPreviousFrame(t *testing.T) {
	r, _ := newTestReceiver(t)
	r.Handle(validRaw(1, []byte{1, 2, 3}))
	before := r.Latest()

	raw := validRaw(1, []byte{9, 9, 9})
	raw[125] = 0x17
	outcome, err := r.Handle(raw)
	assert.Equal(t, Rejected, outcome)
	assert.True(t, errors.Is(err, ErrNonStandardStartCode))
	assert.Equal(t, before, r.Latest())
}

func TestAllZeroFrameMatchesInitialState(t *testing.T) {
	r, _ := newTestReceiver(t)
	outcome, err := r.Handle(validRaw(1, nil))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	assert.False(t, r.LastReceived().IsZero())
}

func TestWaitForNewDataBlocksUntilChange(t *testing.T) {
	r, _ := newTestReceiver(t)
	frameA := validRaw(1, rampChannels())
	frameB := validRaw(1, []byte{255})

	r.Handle(frameA)
	got, err := r.WaitForNewData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rampChannels(), got[1:])

	r.Handle(frameA)

	result := make(chan DMXFrame)
	go func() {
		f, err := r.WaitForNewData(context.Background())
		if err == nil {
			result <- f
		}
	}()

	select {
	case <-result:
		t.Fatal("WaitForNewData returned without changed data")
	case <-time.After(50 * time.Millisecond):
	}

	r.Handle(frameB)
	select {
	case f := <-result:
		assert.Equal(t, byte(255), f.Channel(1))
		assert.Equal(t, byte(0), f.Channel(2))
	case <-time.After(time.Second):
		t.Fatal("WaitForNewData did not return after changed data")
	}
}

func TestWaitForNewDataReturnsLatestOnly(t *testing.T) {
	r, _ := newTestReceiver(t)
	for i := 1; i <= 10; i++ {
		outcome, err := r.Handle(validRaw(1, []byte{byte(i)}))
		require.NoError(t, err)
		require.Equal(t, Accepted, outcome)
	}
	frame, ok := r.WaitForNewDataTimeout(time.Second)
	require.True(t, ok)
	assert.Equal(t, byte(10), frame.Channel(1))

	_, ok = r.WaitForNewDataTimeout(20 * time.Millisecond)
	assert.False(t, ok, "older frames must not be queued")
}

func TestWaitForNewDataCancel(t *testing.T) {
	r, _ := newTestReceiver(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := r.WaitForNewData(ctx)
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitForNewData was not cancelled")
	}
}

func TestCallbackDelivery(t *testing.T) {
	var got []DMXFrame
	r, _ := newTestReceiver(t, WithCallback(func(f DMXFrame) {
		got = append(got, f)
	}))
	channels := rampChannels()

	outcome, err := r.Handle(validRaw(1, channels))
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)

	require.Len(t, got, 1, "callback must run before Handle returns")
	assert.Len(t, got[0], SlotCount)
	assert.Equal(t, byte(0x00), got[0][0])
	assert.Equal(t, channels, got[0][1:])

	_, ok := r.WaitForNewDataTimeout(20 * time.Millisecond)
	assert.False(t, ok, "new data flag must be consumed by the callback path")
	assert.Equal(t, got[0], r.Latest())
}

func TestCallbackGetsCopy(t *testing.T) {
	r, _ := newTestReceiver(t, WithCallback(func(f DMXFrame) {
		f[1] = 0
	}))
	r.Handle(validRaw(1, []byte{42}))
	assert.Equal(t, byte(42), r.Latest().Channel(1))
}

func TestStale(t *testing.T) {
	r, clock := newTestReceiver(t)
	assert.True(t, r.Stale(time.Second), "never received anything")

	r.Handle(validRaw(1, []byte{1}))
	assert.False(t, r.Stale(time.Second))
	clock.Advance(2 * time.Second)
	assert.True(t, r.Stale(time.Second))

	//an unchanged frame keeps the source alive
	r.Handle(validRaw(1, []byte{1}))
	assert.False(t, r.Stale(time.Second))
}

func TestDebugDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r, err := NewReceiver(1, true, WithLogger(logger))
	require.NoError(t, err)
	r.Handle(make([]byte, 10))
	r.Handle(validRaw(1, []byte{1}))
	r.Handle(validRaw(1, []byte{1}))
	assert.Contains(t, buf.String(), "length mismatch")
	assert.Contains(t, buf.String(), "new DMX data")
	assert.Contains(t, buf.String(), "no change")

	buf.Reset()
	quiet, err := NewReceiver(1, false, WithLogger(logger))
	require.NoError(t, err)
	quiet.Handle(make([]byte, 10))
	quiet.Handle(validRaw(1, []byte{1}))
	assert.Empty(t, buf.String())
}

func TestConcurrentHandleAndWait(t *testing.T) {
	r, err := NewReceiver(1, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			frame, err := r.WaitForNewData(ctx)
			if err != nil {
				return
			}
			//every channel of a frame carries the same value, a torn read would mix them
			for _, v := range frame[2:] {
				if v != frame[1] {
					t.Errorf("torn frame: %v != %v", v, frame[1])
					return
				}
			}
		}
	}()

	for i := 0; i < 500; i++ {
		r.Handle(validRaw(1, bytes.Repeat([]byte{byte(i%255 + 1)}, ChannelCount)))
	}
	final, ok := waitLatest(r, byte(499%255+1))
	cancel()
	wg.Wait()
	assert.True(t, ok, "latest frame was %v", final.Channel(1))
}

func waitLatest(r *Receiver, want byte) (DMXFrame, bool) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f := r.Latest(); f.Channel(1) == want {
			return f, true
		}
		time.Sleep(time.Millisecond)
	}
	return r.Latest(), false
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
