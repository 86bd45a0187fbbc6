package mem_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/mem"
)

var _ = Describe("Console", func() {
	var (
		console *mem.Console
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		console = mem.NewConsole(mem.ConsoleBase, mem.WithConsoleWriter(out))
	})

	It("should echo bytes written to offset 0", func() {
		console.WriteByte(mem.ConsoleBase, 'A')
		Expect(out.String()).To(Equal("A"))
	})

	It("should echo once per write", func() {
		console.WriteByte(mem.ConsoleBase, 'h')
		console.WriteByte(mem.ConsoleBase, 'i')
		Expect(out.String()).To(Equal("hi"))
	})

	It("should echo the low byte of wider writes covering offset 0", func() {
		console.WriteWord(mem.ConsoleBase, 0xCAFEBA41)
		Expect(out.String()).To(Equal("A"))
	})

	It("should not echo writes elsewhere", func() {
		console.WriteByte(mem.ConsoleBase+1, 'X')
		console.WriteWord(mem.ConsoleBase+0x400, 0x12345678)
		Expect(out.Len()).To(BeZero())
	})

	It("should behave as plain memory", func() {
		console.WriteWord(mem.ConsoleBase+0x404, 0xCAFEBABE)
		Expect(console.ReadWord(mem.ConsoleBase + 0x404)).
			To(Equal(uint32(0xCAFEBABE)))

		console.WriteHalfword(mem.ConsoleBase+0x800, 0xBECA)
		Expect(console.ReadHalfword(mem.ConsoleBase + 0x800)).
			To(Equal(uint16(0xBECA)))
	})

	It("should keep the echoed byte readable at offset 0", func() {
		console.WriteByte(mem.ConsoleBase, 'Z')
		Expect(console.ReadByte(mem.ConsoleBase)).To(Equal(uint8('Z')))
	})

	It("should raise no interrupts", func() {
		_, pending := console.CheckForInterrupt()
		Expect(pending).To(BeFalse())
	})
})
