// Package mem provides the memory-mapped address space of the
// emulator: the RAM, the console device, the optional video/keyboard
// device, and the router that dispatches accesses between them.
package mem

// Address is a 32-bit physical address.
type Address = uint32

// Device is the uniform access contract every memory-mapped device
// implements. Addresses passed to a device are absolute; the device
// translates them using its own Offset. Halfword and word accesses are
// little-endian and need not be aligned.
type Device interface {
	ReadByte(addr Address) uint8
	ReadHalfword(addr Address) uint16
	ReadWord(addr Address) uint32

	WriteByte(addr Address, v uint8)
	WriteHalfword(addr Address, v uint16)
	WriteWord(addr Address, v uint32)

	// Offset reports the base address the device is mapped at.
	Offset() Address

	// CheckForInterrupt polls the device for a pending interrupt.
	// When pending is true, handler is the address the CPU should
	// redirect to.
	CheckForInterrupt() (handler Address, pending bool)
}
