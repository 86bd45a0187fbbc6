package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/mem"
)

// The video device is exercised headless: the renderer thread only
// starts on Start, so pixel and key-buffer semantics are observable
// without a window.
var _ = Describe("Video", func() {
	var (
		line  *mem.InterruptLine
		video *mem.Video
	)

	BeforeEach(func() {
		line = mem.NewInterruptLine()
		video = mem.NewVideo(mem.VideoBase, line)
	})

	It("should round-trip framebuffer pixels", func() {
		video.WriteWord(mem.VideoBase, 0xFF0000FF)
		Expect(video.ReadWord(mem.VideoBase)).To(Equal(uint32(0xFF0000FF)))

		last := mem.VideoBase + mem.FramebufferSize - 4
		video.WriteWord(last, 0x00FF00FF)
		Expect(video.ReadWord(last)).To(Equal(uint32(0x00FF00FF)))
	})

	It("should support byte and halfword access", func() {
		video.WriteByte(mem.VideoBase+2, 0xAB)
		Expect(video.ReadByte(mem.VideoBase + 2)).To(Equal(uint8(0xAB)))

		video.WriteHalfword(mem.VideoBase+4, 0xBEEF)
		Expect(video.ReadHalfword(mem.VideoBase + 4)).To(Equal(uint16(0xBEEF)))
	})

	It("should expose key events through the key state block", func() {
		video.PostKey(true, 0x61)

		flagAddr := mem.VideoBase + mem.KeyStateOffset
		Expect(video.ReadWord(flagAddr)).To(Equal(uint32(1)))
		Expect(video.ReadWord(flagAddr + 4)).To(Equal(uint32(0x61)))
	})

	It("should record key releases", func() {
		video.PostKey(true, 0x61)
		video.PostKey(false, 0x61)

		flagAddr := mem.VideoBase + mem.KeyStateOffset
		Expect(video.ReadWord(flagAddr)).To(Equal(uint32(0)))
	})

	It("should assert interrupt bit 0 on key events", func() {
		video.PostKey(true, 0x20)

		bit, ok := line.Claim()
		Expect(ok).To(BeTrue())
		Expect(bit).To(Equal(uint(mem.VideoInterruptBit)))
	})

	It("should report its pending interrupt through the device contract", func() {
		_, pending := video.CheckForInterrupt()
		Expect(pending).To(BeFalse())

		video.PostKey(true, 0x20)

		handler, pending := video.CheckForInterrupt()
		Expect(pending).To(BeTrue())
		Expect(handler).To(Equal(uint32(mem.InterruptHandlerAddress)))
	})
})
