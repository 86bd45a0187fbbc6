package mem

import "fmt"

// Canonical device map. Each device occupies a whole number of 1 MiB
// routing pages.
const (
	RAMBase   Address = 0x0000_0000
	VideoBase Address = 0x4000_0000
)

const (
	pageShift = 20
	numPages  = 1 << (32 - pageShift)
)

// AddressSpace routes byte, halfword, and word accesses to the device
// mapped at the target address and aggregates the interrupt signals of
// all devices into a single atomic flag word.
//
// The routing table is fixed at construction; there is no dynamic
// registration once execution begins. Accessing an address no device
// covers is a fatal error.
type AddressSpace struct {
	devices []Device
	// pages maps address>>20 to an index into devices, or -1.
	pages [numPages]int8

	interrupts *InterruptLine
	video      *Video
}

// AddressSpaceOption is a functional option for configuring the
// AddressSpace.
type AddressSpaceOption func(*AddressSpace)

// WithConsoleOptions forwards options to the console device.
func WithConsoleOptions(opts ...ConsoleOption) AddressSpaceOption {
	return func(a *AddressSpace) {
		a.attach(NewConsole(ConsoleBase, opts...), ConsoleSize)
	}
}

// WithVideo attaches a video/keyboard device at VideoBase, wired to
// the address space's interrupt line.
func WithVideo(opts ...VideoOption) AddressSpaceOption {
	return func(a *AddressSpace) {
		a.video = NewVideo(VideoBase, a.interrupts, opts...)
		a.attach(a.video, VideoSize)
	}
}

// NewAddressSpace creates an address space with RAM and a console
// device mapped at their canonical bases.
func NewAddressSpace(opts ...AddressSpaceOption) *AddressSpace {
	a := &AddressSpace{
		interrupts: NewInterruptLine(),
	}
	for i := range a.pages {
		a.pages[i] = -1
	}

	a.attach(NewRAM(RAMBase), RAMSize)

	for _, opt := range opts {
		opt(a)
	}

	// Default console when no option replaced it.
	if a.pages[ConsoleBase>>pageShift] < 0 {
		a.attach(NewConsole(ConsoleBase), ConsoleSize)
	}

	return a
}

// Interrupts returns the shared interrupt line. The line exists even
// when no interrupt-raising device is attached, so future devices can
// assert bits without CPU changes.
func (a *AddressSpace) Interrupts() *InterruptLine {
	return a.interrupts
}

// Video returns the attached video device, or nil when the address
// space was built without one.
func (a *AddressSpace) Video() *Video {
	return a.video
}

func (a *AddressSpace) attach(dev Device, size uint32) {
	idx := int8(len(a.devices))
	a.devices = append(a.devices, dev)

	first := dev.Offset() >> pageShift
	last := (dev.Offset() + size - 1) >> pageShift
	for page := first; page <= last; page++ {
		a.pages[page] = idx
	}
}

func (a *AddressSpace) device(addr Address, kind string) Device {
	idx := a.pages[addr>>pageShift]
	if idx < 0 {
		panic(fmt.Sprintf("unmapped memory access: %s at 0x%08X", kind, addr))
	}
	return a.devices[idx]
}

// ReadByte reads one byte from the device mapped at addr.
func (a *AddressSpace) ReadByte(addr Address) uint8 {
	return a.device(addr, "byte read").ReadByte(addr)
}

// ReadHalfword reads a halfword from the device mapped at addr.
func (a *AddressSpace) ReadHalfword(addr Address) uint16 {
	return a.device(addr, "halfword read").ReadHalfword(addr)
}

// ReadWord reads a word from the device mapped at addr.
func (a *AddressSpace) ReadWord(addr Address) uint32 {
	return a.device(addr, "word read").ReadWord(addr)
}

// WriteByte writes one byte to the device mapped at addr.
func (a *AddressSpace) WriteByte(addr Address, v uint8) {
	a.device(addr, "byte write").WriteByte(addr, v)
}

// WriteHalfword writes a halfword to the device mapped at addr.
func (a *AddressSpace) WriteHalfword(addr Address, v uint16) {
	a.device(addr, "halfword write").WriteHalfword(addr, v)
}

// WriteWord writes a word to the device mapped at addr.
func (a *AddressSpace) WriteWord(addr Address, v uint32) {
	a.device(addr, "word write").WriteWord(addr, v)
}

// CheckForInterrupt claims the lowest asserted bit of the aggregated
// interrupt word. When a bit was pending, it is cleared and the
// handler address is returned.
func (a *AddressSpace) CheckForInterrupt() (Address, bool) {
	if _, ok := a.interrupts.Claim(); ok {
		return InterruptHandlerAddress, true
	}
	return 0, false
}
