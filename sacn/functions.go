package sacn

import "net"

//calculateFal calculates the two bytes of a FlagsAndLength field of a sACN packet
func calculateFal(length uint16) [2]byte {
	return [2]byte{
		byte(0x70) + byte((length>>8)&0x0F),
		byte(0xFF & length)}
}

func getAsBytes32(i uint32) []byte {
	return []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i & 0xFF)}
}

func getAsBytes16(i uint16) []byte {
	return []byte{byte(i >> 8), byte(i & 0xFF)}
}

//getAsUint32 reads up to four bytes as a big endian number
func getAsUint32(arr []byte) uint32 {
	value := uint32(0)
	for _, b := range arr {
		value = value<<8 | uint32(b)
	}
	return value
}

//MulticastAddr returns the multicast group and port that sources use for the given universe.
func MulticastAddr(universe uint16) *net.UDPAddr {
	byt := getAsBytes16(universe)
	return &net.UDPAddr{
		IP:   net.IPv4(239, 255, byt[0], byt[1]),
		Port: Port,
	}
}

//checkSequ reports whether new follows old. Sequence numbers that are up to 20 behind are
//treated as out of order, anything else as a valid successor (including wrap around).
func checkSequ(old, new byte) bool {
	//calculate in int
	tmp := int(new) - int(old)
	if tmp <= 0 && tmp > -20 {
		return false
	}
	return true
}

//validUniverse reports whether the universe number is in the range usable for data.
func validUniverse(universe uint16) bool {
	return universe >= MinUniverse && universe <= MaxUniverse
}
