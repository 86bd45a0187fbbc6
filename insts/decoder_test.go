package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/insts"
)

// Encoder helpers mirror the RV32 instruction formats so the specs can
// drive decode round-trips from (op, operands) tuples.

func encodeR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(imm12, rs1, funct3, rd, opcode uint32) uint32 {
	return imm12&0xFFF<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(imm12, rs2, rs1, funct3 uint32) uint32 {
	imm := imm12 & 0xFFF
	return imm>>5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm&0x1F<<7 | 0b010_0011
}

// encodeB takes the halved immediate the decoder is expected to yield.
func encodeB(imm, rs2, rs1, funct3 uint32) uint32 {
	imm &= 0xFFF
	return imm>>11&1<<31 | imm>>4&0x3F<<25 | rs2<<20 | rs1<<15 |
		funct3<<12 | imm&0xF<<8 | imm>>10&1<<7 | 0b110_0011
}

// encodeJ takes the halved immediate the decoder is expected to yield.
func encodeJ(imm, rd uint32) uint32 {
	imm &= 0xFFFFF
	return imm>>19&1<<31 | imm&0x3FF<<21 | imm>>10&1<<20 |
		imm>>11&0xFF<<12 | rd<<7 | 0b110_1111
}

func encodeU(imm20, rd, opcode uint32) uint32 {
	return imm20&0xFFFFF<<12 | rd<<7 | opcode
}

func encodeAMO(funct5, rs2, rs1, rd uint32) uint32 {
	return funct5<<27 | rs2<<20 | rs1<<15 | 0b010<<12 | rd<<7 | 0b010_1111
}

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Upper-immediate instructions", func() {
		It("should decode LUI with the raw 20-bit immediate", func() {
			inst := decoder.Decode(0b11111111111111111111_00001_0110111)

			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(0xfffff)))
			Expect(inst.Size).To(Equal(uint32(4)))
		})

		It("should decode AUIPC", func() {
			inst := decoder.Decode(0b11111111111111111111_00001_0010111)

			Expect(inst.Op).To(Equal(insts.OpAUIPC))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(0xfffff)))
		})
	})

	Describe("Jumps", func() {
		It("should decode JAL with the halved immediate", func() {
			inst := decoder.Decode(0b01110100000100001010_00001_1101111)

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(0xaf40 / 2)))
		})

		It("should decode a negative JAL immediate", func() {
			inst := decoder.Decode(encodeJ(uint32(-12)&0xFFFFF, 0))

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(int32(-12)))
		})

		It("should decode JALR", func() {
			inst := decoder.Decode(0b00010000000000010000_00001_1100111)

			Expect(inst.Op).To(Equal(insts.OpJALR))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(0x100)))
		})

		It("should reject JALR with nonzero funct3", func() {
			inst := decoder.Decode(encodeI(0x100, 2, 0b001, 1, 0b110_0111))

			Expect(inst.Op).To(Equal(insts.OpInvalid))
		})
	})

	Describe("Branches", func() {
		type branchCase struct {
			funct3 uint32
			op     insts.Op
		}

		cases := []branchCase{
			{0b000, insts.OpBEQ},
			{0b001, insts.OpBNE},
			{0b100, insts.OpBLT},
			{0b101, insts.OpBGE},
			{0b110, insts.OpBLTU},
			{0b111, insts.OpBGEU},
		}

		It("should decode every branch mnemonic", func() {
			for _, c := range cases {
				inst := decoder.Decode(
					0b0111111_00010_00001<<15 | c.funct3<<12 | 0b11101_1100011)

				Expect(inst.Op).To(Equal(c.op))
				Expect(inst.Rs1).To(Equal(uint8(1)))
				Expect(inst.Rs2).To(Equal(uint8(2)))
				Expect(inst.Imm).To(Equal(int32(0xffc / 2)))
			}
		})

		It("should sign-extend backward branch targets", func() {
			inst := decoder.Decode(encodeB(uint32(-4)&0xFFF, 3, 4, 0b000))

			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Imm).To(Equal(int32(-4)))
		})

		It("should reject funct3 010 and 011", func() {
			Expect(decoder.Decode(encodeB(8, 1, 2, 0b010)).Op).
				To(Equal(insts.OpInvalid))
			Expect(decoder.Decode(encodeB(8, 1, 2, 0b011)).Op).
				To(Equal(insts.OpInvalid))
		})
	})

	Describe("Loads", func() {
		type loadCase struct {
			funct3 uint32
			op     insts.Op
		}

		cases := []loadCase{
			{0b000, insts.OpLB},
			{0b001, insts.OpLH},
			{0b010, insts.OpLW},
			{0b100, insts.OpLBU},
			{0b101, insts.OpLHU},
		}

		It("should decode every load with a sign-extended offset", func() {
			for _, c := range cases {
				inst := decoder.Decode(encodeI(0x800, 2, c.funct3, 1, 0b000_0011))

				Expect(inst.Op).To(Equal(c.op))
				Expect(inst.Rd).To(Equal(uint8(1)))
				Expect(inst.Rs1).To(Equal(uint8(2)))
				Expect(inst.Imm).To(Equal(int32(-2048)))
			}
		})

		It("should reject the unused load widths", func() {
			Expect(decoder.Decode(encodeI(0, 2, 0b011, 1, 0b000_0011)).Op).
				To(Equal(insts.OpInvalid))
			Expect(decoder.Decode(encodeI(0, 2, 0b110, 1, 0b000_0011)).Op).
				To(Equal(insts.OpInvalid))
		})
	})

	Describe("Stores", func() {
		It("should decode SB, SH, and SW with the split immediate", func() {
			ops := map[uint32]insts.Op{
				0b000: insts.OpSB,
				0b001: insts.OpSH,
				0b010: insts.OpSW,
			}
			for funct3, op := range ops {
				inst := decoder.Decode(encodeS(0x800, 2, 1, funct3))

				Expect(inst.Op).To(Equal(op))
				Expect(inst.Rs1).To(Equal(uint8(1)))
				Expect(inst.Rs2).To(Equal(uint8(2)))
				Expect(inst.Imm).To(Equal(int32(-2048)))
			}
		})

		It("should round-trip a positive store offset", func() {
			inst := decoder.Decode(encodeS(16, 2, 1, 0b000))

			Expect(inst.Op).To(Equal(insts.OpSB))
			Expect(inst.Imm).To(Equal(int32(16)))
		})
	})

	Describe("ALU immediate instructions", func() {
		It("should decode ADDI with a negative immediate", func() {
			inst := decoder.Decode(0b1000000_00000_00010_000_00001_0010011)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(-2048)))
		})

		It("should decode the comparison and logic immediates", func() {
			ops := map[uint32]insts.Op{
				0b010: insts.OpSLTI,
				0b011: insts.OpSLTIU,
				0b100: insts.OpXORI,
				0b110: insts.OpORI,
				0b111: insts.OpANDI,
			}
			for funct3, op := range ops {
				inst := decoder.Decode(encodeI(0x7FF, 2, funct3, 1, 0b001_0011))

				Expect(inst.Op).To(Equal(op))
				Expect(inst.Imm).To(Equal(int32(2047)))
			}
		})

		It("should decode shifts using only the low five immediate bits", func() {
			inst := decoder.Decode(0b0000000_11111_00010_001_00001_0010011)
			Expect(inst.Op).To(Equal(insts.OpSLLI))
			Expect(inst.Imm).To(Equal(int32(31)))

			inst = decoder.Decode(0b0000000_11111_00010_101_00001_0010011)
			Expect(inst.Op).To(Equal(insts.OpSRLI))
			Expect(inst.Imm).To(Equal(int32(31)))

			inst = decoder.Decode(0b0100000_11111_00010_101_00001_0010011)
			Expect(inst.Op).To(Equal(insts.OpSRAI))
			Expect(inst.Imm).To(Equal(int32(31)))
		})

		It("should reject a right shift with a stray funct7", func() {
			inst := decoder.Decode(encodeR(0b011_0000, 4, 2, 0b101, 1, 0b001_0011))
			Expect(inst.Op).To(Equal(insts.OpInvalid))
		})
	})

	Describe("ALU register instructions", func() {
		type regCase struct {
			funct3 uint32
			funct7 uint32
			op     insts.Op
		}

		cases := []regCase{
			{0b000, 0, insts.OpADD},
			{0b000, 0b010_0000, insts.OpSUB},
			{0b001, 0, insts.OpSLL},
			{0b010, 0, insts.OpSLT},
			{0b011, 0, insts.OpSLTU},
			{0b100, 0, insts.OpXOR},
			{0b101, 0, insts.OpSRL},
			{0b101, 0b010_0000, insts.OpSRA},
			{0b110, 0, insts.OpOR},
			{0b111, 0, insts.OpAND},
			{0b000, 1, insts.OpMUL},
			{0b001, 1, insts.OpMULH},
			{0b010, 1, insts.OpMULHSU},
			{0b011, 1, insts.OpMULHU},
			{0b100, 1, insts.OpDIV},
			{0b101, 1, insts.OpDIVU},
			{0b110, 1, insts.OpREM},
			{0b111, 1, insts.OpREMU},
		}

		It("should decode the whole (funct3, funct7) matrix", func() {
			for _, c := range cases {
				inst := decoder.Decode(encodeR(c.funct7, 3, 2, c.funct3, 1, 0b011_0011))

				Expect(inst.Op).To(Equal(c.op), "funct3=%b funct7=%b", c.funct3, c.funct7)
				Expect(inst.Rd).To(Equal(uint8(1)))
				Expect(inst.Rs1).To(Equal(uint8(2)))
				Expect(inst.Rs2).To(Equal(uint8(3)))
			}
		})

		It("should reject combinations outside the matrix", func() {
			Expect(decoder.Decode(encodeR(0b010_0000, 3, 2, 0b001, 1, 0b011_0011)).Op).
				To(Equal(insts.OpInvalid))
			Expect(decoder.Decode(encodeR(0b000_0010, 3, 2, 0b000, 1, 0b011_0011)).Op).
				To(Equal(insts.OpInvalid))
		})
	})

	Describe("Atomic instructions", func() {
		type amoCase struct {
			funct5 uint32
			op     insts.Op
		}

		cases := []amoCase{
			{0b00011, insts.OpSCW},
			{0b00001, insts.OpAMOSWAPW},
			{0b00000, insts.OpAMOADDW},
			{0b00100, insts.OpAMOXORW},
			{0b01100, insts.OpAMOANDW},
			{0b01000, insts.OpAMOORW},
			{0b10000, insts.OpAMOMINW},
			{0b10100, insts.OpAMOMAXW},
			{0b11000, insts.OpAMOMINUW},
			{0b11100, insts.OpAMOMAXUW},
		}

		It("should decode every AMO variant", func() {
			for _, c := range cases {
				inst := decoder.Decode(encodeAMO(c.funct5, 3, 2, 1))

				Expect(inst.Op).To(Equal(c.op), "funct5=%05b", c.funct5)
				Expect(inst.Rd).To(Equal(uint8(1)))
				Expect(inst.Rs1).To(Equal(uint8(2)))
				Expect(inst.Rs2).To(Equal(uint8(3)))
			}
		})

		It("should decode LR.W only with rs2=0", func() {
			Expect(decoder.Decode(encodeAMO(0b00010, 0, 2, 1)).Op).
				To(Equal(insts.OpLRW))
			Expect(decoder.Decode(encodeAMO(0b00010, 3, 2, 1)).Op).
				To(Equal(insts.OpInvalid))
		})

		It("should require word width", func() {
			word := uint32(0b00001)<<27 | 3<<20 | 2<<15 | 0b011<<12 | 1<<7 | 0b010_1111
			Expect(decoder.Decode(word).Op).To(Equal(insts.OpInvalid))
		})
	})

	Describe("System instructions", func() {
		It("should decode EBREAK", func() {
			Expect(decoder.Decode(0x00100073).Op).To(Equal(insts.OpEBREAK))
		})

		It("should decode MRET", func() {
			Expect(decoder.Decode(0x30200073).Op).To(Equal(insts.OpMRET))
		})

		It("should reject ECALL", func() {
			Expect(decoder.Decode(0x00000073).Op).To(Equal(insts.OpInvalid))
		})

		It("should decode the CSR stubs", func() {
			ops := map[uint32]insts.Op{
				0b001: insts.OpCSRRW,
				0b010: insts.OpCSRRS,
				0b011: insts.OpCSRRC,
				0b101: insts.OpCSRRWI,
				0b110: insts.OpCSRRSI,
				0b111: insts.OpCSRRCI,
			}
			for funct3, op := range ops {
				inst := decoder.Decode(encodeI(0x305, 2, funct3, 1, 0b111_0011))

				Expect(inst.Op).To(Equal(op))
				Expect(inst.Rd).To(Equal(uint8(1)))
				Expect(inst.Rs1).To(Equal(uint8(2)))
				Expect(inst.Imm).To(Equal(int32(0x305)))
			}
		})
	})

	Describe("Compressed instructions", func() {
		It("should report size 2 for the 16-bit encoding space", func() {
			for _, word := range []uint32{0x0000, 0x0001, 0x4602, 0xFFFD} {
				inst := decoder.Decode(word)

				Expect(inst.Op).To(Equal(insts.OpInvalid))
				Expect(inst.Size).To(Equal(uint32(2)))
			}
		})
	})

	Describe("Totality", func() {
		It("should return a well-formed result for arbitrary words", func() {
			// Deterministic xorshift sweep over the encoding space.
			state := uint32(0x2545F491)
			for i := 0; i < 200000; i++ {
				state ^= state << 13
				state ^= state >> 17
				state ^= state << 5

				inst := decoder.Decode(state)
				Expect(inst.Size == 2 || inst.Size == 4).To(BeTrue())
			}
		})

		It("should decode all-zero and all-one words as INVALID", func() {
			Expect(decoder.Decode(0x00000000).Op).To(Equal(insts.OpInvalid))
			Expect(decoder.Decode(0xFFFFFFFF).Op).To(Equal(insts.OpInvalid))
		})
	})

	Describe("Immediate signedness", func() {
		It("should yield negative immediates exactly when the sign bit is set", func() {
			for _, funct3 := range []uint32{0b000, 0b001, 0b010, 0b100, 0b101} {
				neg := decoder.Decode(encodeI(0x800, 2, funct3, 1, 0b000_0011))
				pos := decoder.Decode(encodeI(0x7FF, 2, funct3, 1, 0b000_0011))
				if neg.Op == insts.OpInvalid {
					continue
				}
				Expect(neg.Imm).To(BeNumerically("<", 0))
				Expect(pos.Imm).To(BeNumerically(">=", 0))
			}

			negStore := decoder.Decode(encodeS(0x800, 2, 1, 0b010))
			posStore := decoder.Decode(encodeS(0x7FF, 2, 1, 0b010))
			Expect(negStore.Imm).To(BeNumerically("<", 0))
			Expect(posStore.Imm).To(BeNumerically(">=", 0))

			negBranch := decoder.Decode(encodeB(0x800, 2, 1, 0b000))
			posBranch := decoder.Decode(encodeB(0x7FF, 2, 1, 0b000))
			Expect(negBranch.Imm).To(BeNumerically("<", 0))
			Expect(posBranch.Imm).To(BeNumerically(">=", 0))
		})
	})

	Describe("Encode round-trips", func() {
		It("should round-trip U-type operands", func() {
			for _, imm := range []uint32{0, 1, 0x20000, 0xFFFFF} {
				inst := decoder.Decode(encodeU(imm, 7, 0b011_0111))
				Expect(inst.Op).To(Equal(insts.OpLUI))
				Expect(inst.Rd).To(Equal(uint8(7)))
				Expect(inst.Imm).To(Equal(int32(imm)))
			}
		})

		It("should round-trip J-type immediates across the range", func() {
			for _, imm := range []int32{-0x80000, -2048, -12, -1, 0, 1, 8, 2047, 0x7FFFF} {
				inst := decoder.Decode(encodeJ(uint32(imm)&0xFFFFF, 5))
				Expect(inst.Op).To(Equal(insts.OpJAL))
				Expect(inst.Rd).To(Equal(uint8(5)))
				Expect(inst.Imm).To(Equal(imm))
			}
		})

		It("should round-trip B-type immediates across the range", func() {
			for _, imm := range []int32{-2048, -512, -4, -1, 0, 4, 14, 2047} {
				inst := decoder.Decode(encodeB(uint32(imm)&0xFFF, 3, 4, 0b101))
				Expect(inst.Op).To(Equal(insts.OpBGE))
				Expect(inst.Imm).To(Equal(imm))
			}
		})

		It("should round-trip S-type immediates across the range", func() {
			for _, imm := range []int32{-2048, -1, 0, 1, 16, 2047} {
				inst := decoder.Decode(encodeS(uint32(imm)&0xFFF, 6, 5, 0b010))
				Expect(inst.Op).To(Equal(insts.OpSW))
				Expect(inst.Rs1).To(Equal(uint8(5)))
				Expect(inst.Rs2).To(Equal(uint8(6)))
				Expect(inst.Imm).To(Equal(imm))
			}
		})
	})
})
