package mem

import (
	"bufio"
	"io"
	"os"

	"github.com/sarchlab/rv32sim/bits"
)

// ConsoleBase is the canonical base address of the console device.
const ConsoleBase Address = 0x2000_0000

// ConsoleSize is the size of the console backing buffer.
const ConsoleSize = 1024 * 1024

// Exchange-region offsets inside the console buffer. Test binaries
// follow this convention: the host deposits input (length then
// payload) before the run and harvests output after the program halts.
const (
	ConsoleOutputLength Address = 0x400
	ConsoleOutput       Address = ConsoleOutputLength + 4
	ConsoleInputLength  Address = 0x800
	ConsoleInput        Address = ConsoleInputLength + 4
)

// Console is the debug output device. It behaves as plain memory
// except that a write covering relative offset 0 additionally emits
// the byte stored there to the host writer and flushes.
type Console struct {
	offset Address
	buf    []byte
	out    *bufio.Writer
}

// ConsoleOption is a functional option for configuring the Console.
type ConsoleOption func(*Console)

// WithConsoleWriter redirects console output away from stdout.
func WithConsoleWriter(w io.Writer) ConsoleOption {
	return func(c *Console) {
		c.out = bufio.NewWriter(w)
	}
}

// NewConsole creates a console device mapped at offset.
func NewConsole(offset Address, opts ...ConsoleOption) *Console {
	c := &Console{
		offset: offset,
		buf:    make([]byte, ConsoleSize),
		out:    bufio.NewWriter(os.Stdout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) index(addr Address) uint32 {
	return addr - c.offset
}

// outputHook emits the byte at relative offset 0 after any write that
// lands there.
func (c *Console) outputHook(relative uint32) {
	if relative != 0 {
		return
	}
	_ = c.out.WriteByte(c.buf[0])
	_ = c.out.Flush()
}

// ReadByte reads one byte.
func (c *Console) ReadByte(addr Address) uint8 {
	return c.buf[c.index(addr)]
}

// ReadHalfword reads a little-endian halfword.
func (c *Console) ReadHalfword(addr Address) uint16 {
	i := c.index(addr)
	return bits.ReadU16(c.buf[i : i+2])
}

// ReadWord reads a little-endian word.
func (c *Console) ReadWord(addr Address) uint32 {
	i := c.index(addr)
	return bits.ReadU32(c.buf[i : i+4])
}

// WriteByte writes one byte, echoing it when it lands at offset 0.
func (c *Console) WriteByte(addr Address, v uint8) {
	i := c.index(addr)
	c.buf[i] = v
	c.outputHook(i)
}

// WriteHalfword writes a little-endian halfword.
func (c *Console) WriteHalfword(addr Address, v uint16) {
	i := c.index(addr)
	bits.WriteU16(c.buf[i:i+2], v)
	c.outputHook(i)
}

// WriteWord writes a little-endian word.
func (c *Console) WriteWord(addr Address, v uint32) {
	i := c.index(addr)
	bits.WriteU32(c.buf[i:i+4], v)
	c.outputHook(i)
}

// Offset reports the base address of the device.
func (c *Console) Offset() Address {
	return c.offset
}

// CheckForInterrupt always reports no interrupt; the console raises
// none.
func (c *Console) CheckForInterrupt() (Address, bool) {
	return 0, false
}
