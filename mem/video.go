package mem

import (
	"sync"

	"github.com/sarchlab/rv32sim/bits"
)

// Video surface geometry. The framebuffer holds RGBA8888 pixels, four
// bytes each, row-major.
const (
	VideoWidth  = 800
	VideoHeight = 600

	FramebufferSize = VideoWidth * VideoHeight * 4

	// KeyStateOffset is the relative address of the 8-byte key
	// state block: a pressed/released flag word followed by the key
	// code word.
	KeyStateOffset = FramebufferSize

	// VideoSize is the routed size of the device; the canonical map
	// reserves three 1 MiB pages for it.
	VideoSize = 3 * 1024 * 1024
)

// VideoInterruptBit is the interrupt-line bit the keyboard asserts.
const VideoInterruptBit = 0

// Video is the framebuffer and keyboard device. The CPU thread writes
// pixels and reads the key state block; the renderer thread snapshots
// the framebuffer into a window and posts keyboard events. Both sides
// take the buffer mutex only for the duration of a single copy, never
// across a render, so the fetch-decode-execute path is not stalled.
// Pixel-level tearing within one frame is acceptable; interrupts are
// carried by the atomic line and are never lost.
type Video struct {
	offset     Address
	interrupts *InterruptLine

	mu  sync.Mutex
	buf []byte

	renderer *renderer
}

// VideoOption is a functional option for configuring the Video device.
type VideoOption func(*Video)

// NewVideo creates a video device mapped at offset, asserting keyboard
// interrupts on line. The device is headless until Start is called.
func NewVideo(offset Address, line *InterruptLine, opts ...VideoOption) *Video {
	v := &Video{
		offset:     offset,
		interrupts: line,
		buf:        make([]byte, VideoSize),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Start opens the host window and begins presenting framebuffer
// snapshots at the display rate.
func (v *Video) Start() error {
	r, err := newRenderer(v)
	if err != nil {
		return err
	}
	v.renderer = r
	return nil
}

// Stop tears the renderer down. A headless device is a no-op.
func (v *Video) Stop() {
	if v.renderer != nil {
		v.renderer.stop()
		v.renderer = nil
	}
}

func (v *Video) index(addr Address) uint32 {
	return addr - v.offset
}

// snapshot copies the framebuffer into dst. Called once per frame by
// the renderer thread.
func (v *Video) snapshot(dst []byte) {
	v.mu.Lock()
	copy(dst, v.buf[:FramebufferSize])
	v.mu.Unlock()
}

// PostKey records a key event in the key state block and asserts the
// keyboard interrupt. The renderer thread calls this for host
// keyboard events; it is safe from any goroutine.
func (v *Video) PostKey(pressed bool, code uint32) {
	v.mu.Lock()
	flag := uint32(0)
	if pressed {
		flag = 1
	}
	bits.WriteU32(v.buf[KeyStateOffset:KeyStateOffset+4], flag)
	bits.WriteU32(v.buf[KeyStateOffset+4:KeyStateOffset+8], code)
	v.mu.Unlock()

	v.interrupts.Assert(VideoInterruptBit)
}

// ReadByte reads one byte.
func (v *Video) ReadByte(addr Address) uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buf[v.index(addr)]
}

// ReadHalfword reads a little-endian halfword.
func (v *Video) ReadHalfword(addr Address) uint16 {
	i := v.index(addr)
	v.mu.Lock()
	defer v.mu.Unlock()
	return bits.ReadU16(v.buf[i : i+2])
}

// ReadWord reads a little-endian word.
func (v *Video) ReadWord(addr Address) uint32 {
	i := v.index(addr)
	v.mu.Lock()
	defer v.mu.Unlock()
	return bits.ReadU32(v.buf[i : i+4])
}

// WriteByte writes one byte.
func (v *Video) WriteByte(addr Address, val uint8) {
	i := v.index(addr)
	v.mu.Lock()
	v.buf[i] = val
	v.mu.Unlock()
}

// WriteHalfword writes a little-endian halfword.
func (v *Video) WriteHalfword(addr Address, val uint16) {
	i := v.index(addr)
	v.mu.Lock()
	bits.WriteU16(v.buf[i:i+2], val)
	v.mu.Unlock()
}

// WriteWord writes a little-endian word.
func (v *Video) WriteWord(addr Address, val uint32) {
	i := v.index(addr)
	v.mu.Lock()
	bits.WriteU32(v.buf[i:i+4], val)
	v.mu.Unlock()
}

// Offset reports the base address of the device.
func (v *Video) Offset() Address {
	return v.offset
}

// CheckForInterrupt reports whether any bit is asserted on the shared
// line. It does not claim the bit; the address space does that.
func (v *Video) CheckForInterrupt() (Address, bool) {
	if v.interrupts.Pending() {
		return InterruptHandlerAddress, true
	}
	return 0, false
}
