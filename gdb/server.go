// Package gdb provides a GDB remote-serial-protocol server exposing
// the CPU and memory to an external debugger.
//
// The server speaks the subset of the protocol the original debugger
// bridge supported: register and memory access, single-step, continue
// with client-interrupt polling, and software breakpoints. The halt
// reason is always SIGTRAP.
package gdb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/rv32sim/bits"
	"github.com/sarchlab/rv32sim/emu"
)

// DefaultListenAddress is the address the server binds when no option
// overrides it.
const DefaultListenAddress = "0.0.0.0:3000"

// numRegisters is the size of the g-packet register block: x0..x31
// followed by the PC, each a little-endian 32-bit value.
const numRegisters = 33

// interruptPollPeriod is how many instructions continue executes
// between polls for a client break-in.
const interruptPollPeriod = 1024

const stopReplyTrap = "S05"

// Server serves one debugger connection over TCP.
type Server struct {
	cpu    *emu.CPU
	memory emu.Memory
	addr   string
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithListenAddress overrides the TCP listen address.
func WithListenAddress(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// NewServer creates a server for the given CPU and memory.
func NewServer(cpu *emu.CPU, memory emu.Memory, opts ...ServerOption) *Server {
	s := &Server{
		cpu:    cpu,
		memory: memory,
		addr:   DefaultListenAddress,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe accepts a single debugger connection and serves it
// until the client detaches or the connection drops.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	defer func() { _ = listener.Close() }()

	logrus.Infof("gdb server listening on %s", s.addr)

	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("failed to accept connection: %w", err)
	}

	logrus.Info("gdb client connected")
	s.Serve(conn)
	logrus.Info("gdb connection closed")

	return nil
}

// Serve runs the packet loop on an established connection.
func (s *Server) Serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	sess := &session{
		cpu:    s.cpu,
		memory: s.memory,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
	sess.run()
}

type session struct {
	cpu    *emu.CPU
	memory emu.Memory
	conn   net.Conn
	reader *bufio.Reader
}

func (s *session) run() {
	for {
		payload, err := s.readPacket()
		if err != nil {
			return
		}

		reply, done := s.dispatch(payload)
		if err := s.writePacket(reply); err != nil {
			return
		}
		if done {
			return
		}
	}
}

// readPacket scans for the next $...#cs frame, verifies the checksum,
// and acknowledges it. Stray acks and interrupt bytes outside a frame
// are discarded.
func (s *session) readPacket() (string, error) {
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if b != '$' {
			continue
		}

		payload, err := s.reader.ReadString('#')
		if err != nil {
			return "", err
		}
		payload = payload[:len(payload)-1]

		sum := make([]byte, 2)
		if _, err := io.ReadFull(s.reader, sum); err != nil {
			return "", err
		}
		want, err := strconv.ParseUint(string(sum), 16, 8)
		if err != nil || uint8(want) != checksum(payload) {
			if _, err := s.conn.Write([]byte{'-'}); err != nil {
				return "", err
			}
			continue
		}

		if _, err := s.conn.Write([]byte{'+'}); err != nil {
			return "", err
		}
		return payload, nil
	}
}

func (s *session) writePacket(payload string) error {
	frame := fmt.Sprintf("$%s#%02x", payload, checksum(payload))
	_, err := s.conn.Write([]byte(frame))
	return err
}

func checksum(payload string) uint8 {
	var sum uint8
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// dispatch handles one command. Unsupported commands reply with the
// empty packet, which the client interprets as "not implemented".
func (s *session) dispatch(payload string) (reply string, done bool) {
	if payload == "" {
		return "", false
	}

	switch payload[0] {
	case '?':
		return stopReplyTrap, false
	case 'g':
		return s.readGeneralRegisters(), false
	case 'G':
		return s.writeGeneralRegisters(payload[1:]), false
	case 'p':
		return s.readRegister(payload[1:]), false
	case 'P':
		return s.writeRegister(payload[1:]), false
	case 'm':
		return s.readMemory(payload[1:]), false
	case 'M':
		return s.writeMemory(payload[1:]), false
	case 's':
		return s.step(), false
	case 'c':
		return s.cont(), false
	case 'Z':
		return s.breakpoint(payload, true), false
	case 'z':
		return s.breakpoint(payload, false), false
	case 'D':
		return "OK", true
	case 'k':
		return "", true
	default:
		return "", false
	}
}

// readGeneralRegisters returns x0..x31 and the PC as hex-encoded
// little-endian words.
func (s *session) readGeneralRegisters() string {
	raw := make([]byte, numRegisters*4)
	for i := 0; i < 32; i++ {
		bits.WriteU32(raw[i*4:i*4+4], s.cpu.Register(uint8(i)))
	}
	bits.WriteU32(raw[32*4:], s.cpu.PC())
	return hex.EncodeToString(raw)
}

func (s *session) writeGeneralRegisters(arg string) string {
	raw, err := hex.DecodeString(arg)
	if err != nil || len(raw) < numRegisters*4 {
		return "E01"
	}
	for i := 1; i < 32; i++ {
		s.cpu.SetRegister(uint8(i), bits.ReadU32(raw[i*4:i*4+4]))
	}
	s.cpu.SetPC(bits.ReadU32(raw[32*4:]))
	return "OK"
}

func (s *session) readRegister(arg string) string {
	num, err := strconv.ParseUint(arg, 16, 8)
	if err != nil || num >= numRegisters {
		return "E01"
	}

	var v uint32
	if num == 32 {
		v = s.cpu.PC()
	} else {
		v = s.cpu.Register(uint8(num))
	}

	raw := make([]byte, 4)
	bits.WriteU32(raw, v)
	return hex.EncodeToString(raw)
}

func (s *session) writeRegister(arg string) string {
	numStr, valStr, ok := strings.Cut(arg, "=")
	if !ok {
		return "E01"
	}
	num, err := strconv.ParseUint(numStr, 16, 8)
	if err != nil || num >= numRegisters {
		return "E01"
	}
	raw, err := hex.DecodeString(valStr)
	if err != nil || len(raw) != 4 {
		return "E01"
	}

	v := bits.ReadU32(raw)
	if num == 32 {
		s.cpu.SetPC(v)
	} else {
		s.cpu.SetRegister(uint8(num), v)
	}
	return "OK"
}

func (s *session) readMemory(arg string) string {
	addr, length, ok := parseAddrLength(arg)
	if !ok {
		return "E01"
	}

	raw := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		raw[i] = s.memory.ReadByte(addr + i)
	}
	return hex.EncodeToString(raw)
}

func (s *session) writeMemory(arg string) string {
	spec, data, ok := strings.Cut(arg, ":")
	if !ok {
		return "E01"
	}
	addr, length, ok := parseAddrLength(spec)
	if !ok {
		return "E01"
	}
	raw, err := hex.DecodeString(data)
	if err != nil || uint32(len(raw)) != length {
		return "E01"
	}

	for i, b := range raw {
		s.memory.WriteByte(addr+uint32(i), b)
	}
	return "OK"
}

// step executes a single instruction. An execution abort (an invalid
// instruction) is reported to the client instead of a normal stop.
func (s *session) step() string {
	res := s.cpu.Step(s.memory)
	if res.Err != nil {
		logrus.Errorf("execution aborted: %v", res.Err)
		return "E01"
	}
	return stopReplyTrap
}

// cont resumes execution. The CPU run hook fires every 1024
// instructions so a client 0x03 break-in is noticed while the guest is
// running.
func (s *session) cont() string {
	s.cpu.SetRunHook(interruptPollPeriod, s.clientInterrupted)
	defer s.cpu.SetRunHook(interruptPollPeriod, nil)

	_, err := s.cpu.Run(s.memory)
	if err != nil {
		logrus.Errorf("execution aborted: %v", err)
	}

	return stopReplyTrap
}

// clientInterrupted drains one pending byte from the connection
// without blocking and reports whether it was the interrupt character.
func (s *session) clientInterrupted() bool {
	if s.conn == nil {
		return false
	}

	_ = s.conn.SetReadDeadline(time.Now())
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	b, err := s.reader.ReadByte()
	if err != nil {
		return false
	}
	if b == 0x03 {
		return true
	}
	_ = s.reader.UnreadByte()
	return false
}

// breakpoint handles Z0/z0. Only software breakpoints are supported;
// other kinds report unsupported via the empty packet.
func (s *session) breakpoint(payload string, insert bool) string {
	parts := strings.Split(payload, ",")
	if len(parts) < 2 || (parts[0] != "Z0" && parts[0] != "z0") {
		return ""
	}
	addr, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return "E01"
	}

	if insert {
		s.cpu.AddBreakpoint(uint32(addr))
	} else {
		s.cpu.RemoveBreakpoint(uint32(addr))
	}
	return "OK"
}

func parseAddrLength(spec string) (addr, length uint32, ok bool) {
	addrStr, lenStr, found := strings.Cut(spec, ",")
	if !found {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	l, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(a), uint32(l), true
}

