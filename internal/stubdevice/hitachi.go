package stubdevice

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"net"
	"sync"
)

// Hitachi frame constants, mirrored from the wire format.
const (
	hitachiFrameSize = 13

	actionSet  = 1
	actionGet  = 2
	actionInc  = 4
	actionDec  = 5
	actionExec = 6

	itemPower       = 0x6000
	itemInput       = 0x2000
	itemBlank       = 0x3000
	itemFreeze      = 0x3002
	itemMute        = 0x0720
	itemErrorStatus = 0x6020
	itemLampHours   = 0x9010
	itemFilterHours = 0x9020
	itemTemperature = 0x0520
)

var hitachiHeader = []byte{0xBE, 0xEF, 0x03, 0x06, 0x00}

// hitachiChecksum recomputes the frame checksum: reflected CRC-16
// (poly 0xA001, init 0xFFFF) over the frame with the checksum field
// zeroed. Mirrored independently of the client codec so the stub
// catches a broken emitter.
func hitachiChecksum(frame []byte) uint16 {
	buf := append([]byte(nil), frame...)
	buf[5], buf[6] = 0, 0
	crc := uint16(0xFFFF)
	for _, b := range buf {
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

// HitachiServer is a scripted binary-protocol projector stub.
type HitachiServer struct {
	// Password enables the auth handshake when non-empty.
	Password string

	// Challenge is the 8-byte random material sent on connect.
	Challenge []byte

	// BusyReplies makes the stub answer the next N commands with a
	// busy reply, for retry tests.
	BusyReplies int

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	received [][]byte
	values   map[uint16]uint16
	closed   bool
}

// NewHitachiServer creates a stub with defaults: raw mode, power off.
func NewHitachiServer() *HitachiServer {
	return &HitachiServer{
		Challenge: []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF},
		conns:     make(map[net.Conn]struct{}),
		values: map[uint16]uint16{
			itemPower:       0,
			itemInput:       3,
			itemBlank:       0,
			itemFreeze:      0,
			itemMute:        0,
			itemErrorStatus: 0,
			itemLampHours:   500,
			itemFilterHours: 200,
			itemTemperature: 41,
		},
	}
}

// Start begins listening on a random loopback port.
func (s *HitachiServer) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listener's host:port.
func (s *HitachiServer) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener, drops live connections and waits for the
// serve goroutines to finish.
func (s *HitachiServer) Close() {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
}

// Received returns a copy of all frames seen so far.
func (s *HitachiServer) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	for i, f := range s.received {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Value returns the stub's current value for an item code.
func (s *HitachiServer) Value(item uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[item]
}

func (s *HitachiServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *HitachiServer) serve(conn net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if s.Password != "" {
		if !s.authenticate(conn) {
			return
		}
	}

	frame := make([]byte, hitachiFrameSize)
	for {
		if _, err := io.ReadFull(conn, frame); err != nil {
			return
		}

		cp := append([]byte(nil), frame...)
		s.mu.Lock()
		s.received = append(s.received, cp)
		s.mu.Unlock()

		conn.Write(s.handle(frame))
	}
}

// authenticate runs the challenge-response exchange and writes the
// 1-byte ack.
func (s *HitachiServer) authenticate(conn net.Conn) bool {
	if _, err := conn.Write(s.Challenge); err != nil {
		return false
	}

	token := make([]byte, md5.Size)
	if _, err := io.ReadFull(conn, token); err != nil {
		return false
	}

	want := md5.Sum(append(append([]byte{}, s.Challenge...), []byte(s.Password)...))
	if !bytes.Equal(token, want[:]) {
		conn.Write([]byte{0x00})
		return false
	}
	conn.Write([]byte{0x01})
	return true
}

// handle produces the tagged reply for one frame. Frames with a bad
// header or checksum are rejected with a NAK, as real hardware does.
func (s *HitachiServer) handle(frame []byte) []byte {
	if !bytes.Equal(frame[:5], hitachiHeader) {
		return []byte{0x15}
	}
	if sum := hitachiChecksum(frame); frame[5] != byte(sum>>8) || frame[6] != byte(sum) {
		return []byte{0x15}
	}

	action := binary.LittleEndian.Uint16(frame[7:9])
	item := binary.LittleEndian.Uint16(frame[9:11])
	setting := binary.LittleEndian.Uint16(frame[11:13])

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BusyReplies > 0 {
		s.BusyReplies--
		return []byte{0x1F, 0x01, 0x00}
	}

	if _, known := s.values[item]; !known {
		return []byte{0x1C, 0x01, 0x00}
	}

	switch action {
	case actionSet:
		s.values[item] = setting
		return []byte{0x06}
	case actionGet:
		reply := []byte{0x1D, 0, 0}
		binary.LittleEndian.PutUint16(reply[1:], s.values[item])
		return reply
	case actionInc:
		s.values[item]++
		return []byte{0x06}
	case actionDec:
		s.values[item]--
		return []byte{0x06}
	case actionExec:
		return []byte{0x06}
	default:
		return []byte{0x15}
	}
}
