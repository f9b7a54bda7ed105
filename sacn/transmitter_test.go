package sacn

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransmitterDestinations(t *testing.T) {
	trans, err := NewTransmitter("127.0.0.1:0", uuid.New(), "test")
	require.NoError(t, err)

	errs := trans.SetDestinations(1, []string{"192.168.1.13", "", "127.0.0.1:6000", "not an address:abc"})
	assert.Len(t, errs, 1)
	dest := trans.Destinations(1)
	require.Len(t, dest, 2)
	assert.Equal(t, Port, dest[0].Port)
	assert.Equal(t, 6000, dest[1].Port)

	dest[0].Port = 1
	assert.Equal(t, Port, trans.Destinations(1)[0].Port, "Destinations must return a copy")

	trans.SetMulticast(1, true)
	assert.True(t, trans.IsMulticast(1))
	assert.False(t, trans.IsMulticast(2))
}

func TestTransmitterToReceiver(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	sock := newSocket(conn, nil)
	defer sock.Close()

	recv, err := NewReceiver(3, false)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sock.Serve(ctx, recv)

	cid := uuid.New()
	trans, err := NewTransmitter("127.0.0.1:0", cid, "unit test")
	require.NoError(t, err)
	ch, err := trans.Activate(3)
	require.NoError(t, err)
	assert.True(t, trans.IsActivated(3))
	assert.Equal(t, []uint16{3}, trans.GetActivated())
	_, err = trans.Activate(3)
	assert.Error(t, err, "a universe can only be activated once")

	trans.SetDestinations(3, []string{sock.LocalAddr().String()})
	ch <- [ChannelCount]byte{10, 20, 30}

	deadline := time.Now().Add(3 * time.Second)
	for recv.Latest().Channel(3) != 30 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	frame := recv.Latest()
	assert.Equal(t, byte(10), frame.Channel(1))
	assert.Equal(t, byte(20), frame.Channel(2))
	assert.Equal(t, byte(30), frame.Channel(3))

	close(ch)
	deadline = time.Now().Add(time.Second)
	for trans.IsActivated(3) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, trans.IsActivated(3))
}

func TestTransmitterActivateInvalidUniverse(t *testing.T) {
	trans, err := NewTransmitter("", uuid.New(), "test")
	require.NoError(t, err)
	_, err = trans.Activate(0)
	assert.ErrorIs(t, err, ErrInvalidUniverse)
}

func TestTransmitterActivateConcurrent(t *testing.T) {
	trans, err := NewTransmitter("127.0.0.1:0", uuid.New(), "test")
	require.NoError(t, err)

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		channels []chan<- [ChannelCount]byte
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ch, err := trans.Activate(4)
			if err != nil {
				return
			}
			mu.Lock()
			channels = append(channels, ch)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, channels, 1, "only one caller may activate the universe")
	close(channels[0])
	select {
	case <-trans.Done(4):
	case <-time.After(2 * time.Second):
		t.Fatal("universe was not deactivated")
	}
	assert.False(t, trans.IsActivated(4))
}

func TestTransmitterDoneAfterStreamTerminated(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	trans, err := NewTransmitter("127.0.0.1:0", uuid.New(), "test")
	require.NoError(t, err)
	select {
	case <-trans.Done(5):
	default:
		t.Fatal("Done of an inactive universe must be closed")
	}

	ch, err := trans.Activate(5)
	require.NoError(t, err)
	trans.SetDestinations(5, []string{conn.LocalAddr().String()})
	done := trans.Done(5)
	select {
	case <-done:
		t.Fatal("Done closed while the universe is active")
	default:
	}

	close(ch)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not closed after the channel was closed")
	}

	//everything was written before Done closed, so the last queued packet is the terminating one
	var last *DataPacket
	buf := make([]byte, readBufferSize)
	for {
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			break
		}
		p, err := ParsePacket(buf[:n])
		require.NoError(t, err)
		last = p
	}
	require.NotNil(t, last, "no packet was received")
	assert.True(t, last.StreamTerminated())
}
