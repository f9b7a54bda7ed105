/*Package sacn receives DMX data that is streamed with sACN (ANSI E1.31). The standard can be
obtained here: http://tsp.esta.org/tsp/documents/docs/E1-31-2016.pdf

This is by no means a full implementation. Only full universes (638 byte datagrams with 512
channels) carrying the null start code are accepted; short universes, alternate start codes,
universe discovery and synchronization packets are discarded.

Receiving

A Receiver validates datagrams, keeps the timestamp of the last valid packet and delivers DMX
frames only if their data changed. A frame is 513 bytes: the start code followed by the 512
channel values.

There are two ways to consume the frames. Without a callback, WaitForNewData blocks until the
data changed and returns the latest frame:

	recv, err := sacn.NewReceiver(1, false)
	...
	frame, err := recv.WaitForNewData(ctx)

With a callback, every changed frame is pushed synchronously from the receive path. The callback
should return quickly, otherwise following datagrams are delayed:

	recv, err := sacn.NewReceiver(1, false, sacn.WithCallback(func(f sacn.DMXFrame) {
		fmt.Println(f.Channel(1))
	}))

Only the latest frame is kept. A consumer that is slower than the source does not see every
frame, but always the current state.

The Receiver does not act on a source that stopped sending. Use LastReceived or Stale to decide
what to do, e.g. blacking out after 2.5s.

Multicast

The Socket joins the multicast groups of universes (239.255.<high byte>.<low byte>) and feeds
the datagrams to a Receiver:

	sock, err := sacn.ListenMulticast(nil, 1)
	...
	go sock.Serve(ctx, recv)

Note that the network infrastructure has to be multicast ready and that on some networks the
delay of packets will increase. Also the packet loss can be higher if multicast is chosen
(This is often a problem when WLAN is used).

Transmitting

To test a receiver, a Transmitter can send DMX data. Activate a universe and send 512-byte
arrays over the returned channel. The last data is repeated every second.

	trans, err := sacn.NewTransmitter("", uuid.New(), "test")
	if err != nil {
		log.Fatal(err)
	}
	ch, err := trans.Activate(1)
	if err != nil {
		log.Fatal(err)
	}
	//deactivate the channel on exit
	defer close(ch)
	trans.SetMulticast(1, true)
	ch <- [512]byte{255, 128}
*/
package sacn
