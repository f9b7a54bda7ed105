package sacn

import "errors"

//Reasons for discarding a datagram. Use errors.Is to match them, the returned errors carry
//details about the offending field.
var (
	//ErrLengthMismatch is returned for datagrams that are not exactly PacketLength bytes long.
	ErrLengthMismatch = errors.New("sacn: datagram length mismatch")

	//ErrNotRootFrame is returned if the root layer does not carry the ACN packet identifier.
	ErrNotRootFrame = errors.New("sacn: not an ACN root layer packet")

	//ErrNotDataFrame is returned if the framing layer vector is not VECTOR_E131_DATA_PACKET.
	ErrNotDataFrame = errors.New("sacn: not an E1.31 data packet")

	//ErrNotAddressed is returned if the DMP address and data type is not 0xa1.
	ErrNotAddressed = errors.New("sacn: unexpected DMP address type")

	//ErrNonStandardStartCode is returned for frames with a start code other than 0x00.
	ErrNonStandardStartCode = errors.New("sacn: non-standard DMX start code")
)

//ErrInvalidUniverse is returned if a universe outside of [1-63999] is used.
var ErrInvalidUniverse = errors.New("sacn: universe out of range")
