package hitachi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Frame constants.
const (
	// PacketSize is the fixed command frame length.
	PacketSize = 13

	// checksumOffset is where the 2-byte checksum sits in the frame.
	checksumOffset = 5
)

// header is the fixed 5-byte frame prefix.
var header = []byte{0xBE, 0xEF, 0x03, 0x06, 0x00}

// Action is the frame action code.
type Action uint16

const (
	// ActionSet writes a setting value.
	ActionSet Action = 1
	// ActionGet reads the current value.
	ActionGet Action = 2
	// ActionIncrement steps a value up.
	ActionIncrement Action = 4
	// ActionDecrement steps a value down.
	ActionDecrement Action = 5
	// ActionExecute triggers a one-shot function.
	ActionExecute Action = 6
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionSet:
		return "SET"
	case ActionGet:
		return "GET"
	case ActionIncrement:
		return "INCREMENT"
	case ActionDecrement:
		return "DECREMENT"
	case ActionExecute:
		return "EXECUTE"
	default:
		return "UNKNOWN"
	}
}

// Checksum computes the frame checksum: a reflected CRC-16 with
// polynomial 0xA001 and initial value 0xFFFF over the 13-byte frame
// with the checksum field zeroed. Because the header is constant and
// the setting high byte is zero for every documented command, the
// result is a pure function of (action, item, first setting byte).
func Checksum(action Action, item uint16, setting uint16) uint16 {
	frame := assemble(action, item, setting)
	frame[checksumOffset] = 0
	frame[checksumOffset+1] = 0
	return crc16(frame)
}

// crc16 is the reflected CRC-16 (poly 0xA001, init 0xFFFF) used by the
// frame checksum.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// assemble lays out a frame without computing the checksum.
func assemble(action Action, item uint16, setting uint16) []byte {
	frame := make([]byte, PacketSize)
	copy(frame, header)
	binary.LittleEndian.PutUint16(frame[7:9], uint16(action))
	binary.LittleEndian.PutUint16(frame[9:11], item)
	binary.LittleEndian.PutUint16(frame[11:13], setting)
	return frame
}

// BuildPacket assembles a complete 13-byte command frame with its
// checksum. The checksum is emitted high byte first.
func BuildPacket(action Action, item uint16, setting uint16) []byte {
	frame := assemble(action, item, setting)
	sum := crc16(frame)
	frame[checksumOffset] = byte(sum >> 8)
	frame[checksumOffset+1] = byte(sum)
	return frame
}

// Packet is a parsed command frame.
type Packet struct {
	Action  Action
	Item    uint16
	Setting uint16
}

// ParsePacket validates and decodes a 13-byte command frame.
// Used by test harnesses and diagnostics; clients normally only build.
func ParsePacket(frame []byte) (Packet, error) {
	if len(frame) != PacketSize {
		return Packet{}, fmt.Errorf("frame length %d, want %d", len(frame), PacketSize)
	}
	if !bytes.Equal(frame[:len(header)], header) {
		return Packet{}, fmt.Errorf("bad frame header % X", frame[:len(header)])
	}

	pkt := Packet{
		Action:  Action(binary.LittleEndian.Uint16(frame[7:9])),
		Item:    binary.LittleEndian.Uint16(frame[9:11]),
		Setting: binary.LittleEndian.Uint16(frame[11:13]),
	}

	want := Checksum(pkt.Action, pkt.Item, pkt.Setting)
	got := uint16(frame[checksumOffset])<<8 | uint16(frame[checksumOffset+1])
	if got != want {
		return Packet{}, fmt.Errorf("checksum %04X, want %04X", got, want)
	}
	return pkt, nil
}
