package sacn

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

const (
	//PacketLength is the only datagram length accepted: a full universe with 512 channels
	PacketLength = 638
	//SlotCount is the number of DMX slots including the start code
	SlotCount = 513
	//ChannelCount is the number of DMX channels in one universe
	ChannelCount = 512
	//Port is the UDP port used by sACN
	Port = 5568

	//MinUniverse and MaxUniverse limit the universes that may carry DMX data
	MinUniverse = 1
	MaxUniverse = 63999

	//StartCodeDMX is the null start code for standard dimmer data
	StartCodeDMX = 0x00

	vectorRootE131Data   = 4 //VECTOR_ROOT_E131_DATA
	vectorE131DataPacket = 2 //VECTOR_E131_DATA_PACKET
	vectorDmpSetProperty = 0x2
	addressTypeDataType  = 0xa1
)

//offsets of the fields within the 638 byte datagram
const (
	offPacketID       = 4
	offRootFAL        = 16
	offRootVector     = 18
	offCID            = 22
	offFramingFAL     = 38
	offFramingVector  = 40
	offSourceName     = 44
	offPriority       = 108
	offSyncAddress    = 109
	offSequence       = 111
	offOptions        = 112
	offUniverse       = 113
	offDmpFAL         = 115
	offDmpVector      = 117
	offAddressType    = 118
	offFirstAddress   = 119
	offAddrIncrement  = 121
	offPropertyCount  = 123
	offSlots          = 125
	sourceNameLength  = 64
	packetIDLength    = 12
	framingVectorSize = 4
)

//packetID is the ACN packet identifier "ASC-E1.17" padded with zeros
var packetID = []byte{0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00}

var constHeader = append([]byte{0, 0x10, 0, 0}, packetID...)

//DMXFrame holds one universe of DMX data: the start code at index 0, followed by the
//512 channel values.
type DMXFrame [SlotCount]byte

//StartCode returns the first slot of the frame
func (f DMXFrame) StartCode() byte {
	return f[0]
}

//Channel returns the value of the given channel. Channels are numbered [1-512]; any other
//channel number returns 0.
func (f DMXFrame) Channel(channel int) byte {
	if channel < 1 || channel > ChannelCount {
		return 0
	}
	return f[channel]
}

//Channels returns a copy of the 512 channel values without the start code
func (f DMXFrame) Channels() [ChannelCount]byte {
	var c [ChannelCount]byte
	copy(c[:], f[1:])
	return c
}

//DataPacket is an owned copy of a full sACN data packet. All fields are read from fixed
//offsets, the packet never references the buffer it was parsed from.
type DataPacket struct {
	data [PacketLength]byte
}

//NewDataPacket creates a well formed DataPacket for the given universe with all channels at zero
//and the null start code.
func NewDataPacket(universe uint16) *DataPacket {
	p := &DataPacket{}
	//Set constants: at index [0;16[
	copy(p.data[0:], constHeader)
	//Set vectors:
	copy(p.data[offRootVector:], getAsBytes32(vectorRootE131Data))
	copy(p.data[offFramingVector:], getAsBytes32(vectorE131DataPacket))
	p.data[offDmpVector] = vectorDmpSetProperty
	p.setFAL()
	//set address and data type
	p.data[offAddressType] = addressTypeDataType
	//set address increment
	copy(p.data[offAddrIncrement:], getAsBytes16(1))
	//Default priority:
	p.data[offPriority] = 100
	p.SetUniverse(universe)
	return p
}

//ParsePacket copies the raw datagram into a new DataPacket. Only datagrams of exactly
//PacketLength bytes are accepted, nothing is padded or cut off. The packet is not validated,
//use Validate for that.
func ParsePacket(raw []byte) (*DataPacket, error) {
	if len(raw) != PacketLength {
		return nil, fmt.Errorf("%w: got %v bytes, want %v", ErrLengthMismatch, len(raw), PacketLength)
	}
	p := &DataPacket{}
	copy(p.data[:], raw)
	return p, nil
}

//Validate checks the markers of all three layers and the start code. The first violation is
//returned.
func (d *DataPacket) Validate() error {
	if !bytes.Equal(d.data[offPacketID:offPacketID+packetIDLength], packetID) {
		return fmt.Errorf("%w: packet id %q", ErrNotRootFrame, d.data[offPacketID:offPacketID+packetIDLength])
	}
	if v := d.data[offFramingVector : offFramingVector+framingVectorSize]; getAsUint32(v) != vectorE131DataPacket {
		return fmt.Errorf("%w: framing vector % x", ErrNotDataFrame, v)
	}
	if t := d.data[offAddressType]; t != addressTypeDataType {
		return fmt.Errorf("%w: 0x%02x", ErrNotAddressed, t)
	}
	if sc := d.StartCode(); sc != StartCodeDMX {
		return fmt.Errorf("%w: 0x%02x", ErrNonStandardStartCode, sc)
	}
	return nil
}

//setFAL sets the flags and length fields of all layers for a full length packet.
//Also sets the property value count!
func (d *DataPacket) setFAL() {
	rootFAL := calculateFal(PacketLength - offRootFAL)
	copy(d.data[offRootFAL:], rootFAL[:])
	framingFAL := calculateFal(PacketLength - offFramingFAL)
	copy(d.data[offFramingFAL:], framingFAL[:])
	dmpFAL := calculateFal(PacketLength - offDmpFAL)
	copy(d.data[offDmpFAL:], dmpFAL[:])
	copy(d.data[offPropertyCount:], getAsBytes16(SlotCount))
}

//Bytes returns a copy of the raw datagram
func (d *DataPacket) Bytes() []byte {
	return append([]byte(nil), d.data[:]...)
}

//SetCID sets the CID unique identifier
func (d *DataPacket) SetCID(cid uuid.UUID) {
	copy(d.data[offCID:offCID+16], cid[:])
}

//CID returns the cid of the source that sent this packet
func (d *DataPacket) CID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], d.data[offCID:offCID+16])
	return id
}

//SetSourceName sets the source name field to the given string values.
//Note that only the first 63 characters are used, the field is always null terminated!
func (d *DataPacket) SetSourceName(s string) {
	b := [sourceNameLength]byte{}
	copy(b[:sourceNameLength-1], s)
	copy(d.data[offSourceName:], b[:])
}

//SourceName returns the stored source name. Note that the source name max length is 64!
func (d *DataPacket) SourceName() string {
	name := d.data[offSourceName : offSourceName+sourceNameLength]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

//SetPriority sets the priority field for the packet. Value must be [0-200]!
func (d *DataPacket) SetPriority(prio byte) error {
	if prio > 200 {
		return fmt.Errorf("the priority was %v and therefore is not in range [0-200]", prio)
	}
	d.data[offPriority] = prio
	return nil
}

//Priority returns the byte value of the priorty field of the packet. Value range: [0-200]
func (d *DataPacket) Priority() byte {
	return d.data[offPriority]
}

//SetSyncAddress sets the synchronization universe for the given packet
func (d *DataPacket) SetSyncAddress(sync uint16) {
	copy(d.data[offSyncAddress:], getAsBytes16(sync))
}

//SyncAddress returns the sync universe of the given packet
func (d *DataPacket) SyncAddress() uint16 {
	return uint16(getAsUint32(d.data[offSyncAddress : offSyncAddress+2]))
}

//SetSequence sets the sequence number of the packet
func (d *DataPacket) SetSequence(sequ byte) {
	d.data[offSequence] = sequ
}

//Sequence returns the sequence number of the packet
func (d *DataPacket) Sequence() byte {
	return d.data[offSequence]
}

//SequenceIncr increments the sequence number
func (d *DataPacket) SequenceIncr() {
	d.data[offSequence]++
}

//SetPreviewData sets the preview_data flag in this packet to the given value
func (d *DataPacket) SetPreviewData(value bool) {
	d.setOptionsBit(7, value)
}

//PreviewData returns wether this packet has the preview flag set
func (d *DataPacket) PreviewData() bool {
	return d.getOptionsBit(7)
}

//SetStreamTerminated sets the stream_termiantion flag on or off
func (d *DataPacket) SetStreamTerminated(value bool) {
	d.setOptionsBit(6, value)
}

//StreamTerminated returns the state of the stream_termination flag
func (d *DataPacket) StreamTerminated() bool {
	return d.getOptionsBit(6)
}

//SetForceSync sets the force_synchronization bit flag
func (d *DataPacket) SetForceSync(value bool) {
	d.setOptionsBit(5, value)
}

//ForceSync returns the state of the force_synchronization flag
func (d *DataPacket) ForceSync() bool {
	return d.getOptionsBit(5)
}

func (d *DataPacket) setOptionsBit(bit byte, value bool) {
	if value {
		d.data[offOptions] |= 1 << bit
	} else {
		d.data[offOptions] &^= 1 << bit
	}
}

func (d *DataPacket) getOptionsBit(bit byte) bool {
	return d.data[offOptions]&(1<<bit) != 0
}

//SetUniverse sets the universe value of the packet
func (d *DataPacket) SetUniverse(universe uint16) {
	copy(d.data[offUniverse:], getAsBytes16(universe))
}

//Universe returns the universe value of the packet
func (d *DataPacket) Universe() uint16 {
	return uint16(getAsUint32(d.data[offUniverse : offUniverse+2]))
}

//SetDmxStartCode sets the DMX start code that is transmitted together with the DMX data
func (d *DataPacket) SetDmxStartCode(startCode byte) {
	d.data[offSlots] = startCode
}

//StartCode returns the start code of the given packet
func (d *DataPacket) StartCode() byte {
	return d.data[offSlots]
}

//PropertyCount returns the number of slots (start code included) announced by the DMP layer
func (d *DataPacket) PropertyCount() uint16 {
	return uint16(getAsUint32(d.data[offPropertyCount : offPropertyCount+2]))
}

//SetData sets the 512 channel values. Shorter slices leave the remaining channels at zero,
//longer slices are cut off after 512 bytes.
func (d *DataPacket) SetData(data []byte) {
	if len(data) > ChannelCount {
		data = data[:ChannelCount]
	}
	n := copy(d.data[offSlots+1:], data)
	clear(d.data[offSlots+1+n:])
}

//Data returns a copy of the 512 channel values
func (d *DataPacket) Data() [ChannelCount]byte {
	var c [ChannelCount]byte
	copy(c[:], d.data[offSlots+1:])
	return c
}

//Slots returns the start code and the channel values as DMXFrame
func (d *DataPacket) Slots() DMXFrame {
	var f DMXFrame
	copy(f[:], d.data[offSlots:])
	return f
}

//copy returns a copy of the DataPacket
func (d *DataPacket) copy() *DataPacket {
	c := *d
	return &c
}
