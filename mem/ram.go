package mem

import "github.com/sarchlab/rv32sim/bits"

// RAMSize is the size of the main memory backing store.
const RAMSize = 128 * 1024 * 1024

// RAM is the main memory device: a zero-initialised backing store with
// no side effects and no interrupts.
type RAM struct {
	offset Address
	buf    []byte
}

// NewRAM creates a RAM device mapped at offset.
func NewRAM(offset Address) *RAM {
	return &RAM{
		offset: offset,
		buf:    make([]byte, RAMSize),
	}
}

func (r *RAM) index(addr Address) uint32 {
	return addr - r.offset
}

// ReadByte reads one byte.
func (r *RAM) ReadByte(addr Address) uint8 {
	return r.buf[r.index(addr)]
}

// ReadHalfword reads a little-endian halfword.
func (r *RAM) ReadHalfword(addr Address) uint16 {
	i := r.index(addr)
	return bits.ReadU16(r.buf[i : i+2])
}

// ReadWord reads a little-endian word.
func (r *RAM) ReadWord(addr Address) uint32 {
	i := r.index(addr)
	return bits.ReadU32(r.buf[i : i+4])
}

// WriteByte writes one byte.
func (r *RAM) WriteByte(addr Address, v uint8) {
	r.buf[r.index(addr)] = v
}

// WriteHalfword writes a little-endian halfword.
func (r *RAM) WriteHalfword(addr Address, v uint16) {
	i := r.index(addr)
	bits.WriteU16(r.buf[i:i+2], v)
}

// WriteWord writes a little-endian word.
func (r *RAM) WriteWord(addr Address, v uint32) {
	i := r.index(addr)
	bits.WriteU32(r.buf[i:i+4], v)
}

// Offset reports the base address of the device.
func (r *RAM) Offset() Address {
	return r.offset
}

// CheckForInterrupt always reports no interrupt; RAM raises none.
func (r *RAM) CheckForInterrupt() (Address, bool) {
	return 0, false
}
