package stubdevice

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
)

// PJLinkServer is a scripted PJLink projector stub.
type PJLinkServer struct {
	// Password enables authentication when non-empty.
	Password string

	// Challenge is the 8-char random key announced to clients.
	Challenge string

	// Class is the PJLink class reported by CLSS (1 or 2).
	Class int

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	received []string
	power    string
	input    string
	mute     string
	freeze   string
	closed   bool
}

// NewPJLinkServer creates a stub with sane defaults: no auth, class 1,
// powered off, input 31.
func NewPJLinkServer() *PJLinkServer {
	return &PJLinkServer{
		Challenge: "498e4a67",
		Class:     1,
		conns:     make(map[net.Conn]struct{}),
		power:     "0",
		input:     "31",
		mute:      "30",
		freeze:    "0",
	}
}

// Start begins listening on a random loopback port.
func (s *PJLinkServer) Start() error {
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
func (s *PJLinkServer) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener, drops live connections and waits for the
// serve goroutines to finish.
func (s *PJLinkServer) Close() {
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

// Received returns a copy of all command lines seen so far, with
// terminators stripped.
func (s *PJLinkServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *PJLinkServer) expectedToken() string {
	sum := md5.Sum([]byte(s.Challenge + s.Password))
	return hex.EncodeToString(sum[:])
}

func (s *PJLinkServer) acceptLoop() {
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

func (s *PJLinkServer) serve(conn net.Conn) {
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
		fmt.Fprintf(conn, "PJLINK 1 %s\r", s.Challenge)
	} else {
		fmt.Fprint(conn, "PJLINK 0\r")
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		authOK := true
		if s.Password != "" {
			token := s.expectedToken()
			if strings.HasPrefix(line, token) {
				line = line[len(token):]
			} else {
				authOK = false
			}
		}

		reply := s.handle(line, authOK)
		if reply != "" {
			fmt.Fprint(conn, reply)
		}
	}
}

// handle produces the response for one stripped command line.
func (s *PJLinkServer) handle(line string, authOK bool) string {
	if len(line) < 6 || line[0] != '%' {
		return ""
	}
	op := strings.ToUpper(line[2:6])
	param := strings.TrimSpace(line[6:])
	class := line[1:2]

	reply := func(body string) string {
		return fmt.Sprintf("%%%s%s=%s\r", class, op, body)
	}

	if !authOK {
		return reply("ERRA")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case "POWR":
		if param == "?" {
			return reply(s.power)
		}
		s.power = param
		return reply("OK")
	case "INPT":
		if param == "?" {
			return reply(s.input)
		}
		s.input = param
		return reply("OK")
	case "AVMT":
		if param == "?" {
			return reply(s.mute)
		}
		s.mute = param
		return reply("OK")
	case "INST":
		return reply("11 21 31")
	case "LAMP":
		return reply("500 1")
	case "ERST":
		return reply("000000")
	case "CLSS":
		return reply(fmt.Sprintf("%d", s.Class))
	case "NAME":
		return reply("Stub Projector")
	case "INF1":
		return reply("STUBCO")
	case "INF2":
		return reply("SP-1000")
	case "INFO":
		return reply("stub firmware 1.0")
	case "FREZ":
		if s.Class < 2 {
			return reply("ERR1")
		}
		if param == "?" {
			return reply(s.freeze)
		}
		s.freeze = param
		return reply("OK")
	case "FILT":
		if s.Class < 2 {
			return reply("ERR1")
		}
		return reply("200")
	case "SNUM":
		if s.Class < 2 {
			return reply("ERR1")
		}
		return reply("SN12345678")
	default:
		return reply("ERR1")
	}
}
