package insts

import (
	"github.com/sarchlab/rv32sim/bits"
)

// Field masks of the full 32-bit encoding.
const (
	opcodeMask   = 0b111_1111
	registerMask = 0b1_1111
	funct3Mask   = 0b111
	funct7Mask   = 0b111_1111
	imm20Mask    = 0xFFFFF
	imm12Mask    = 0xFFF
)

// Major opcodes (bits [6:0]).
const (
	opcodeLUI    = 0b011_0111
	opcodeAUIPC  = 0b001_0111
	opcodeJAL    = 0b110_1111
	opcodeJALR   = 0b110_0111
	opcodeBranch = 0b110_0011
	opcodeLoad   = 0b000_0011
	opcodeStore  = 0b010_0011
	opcodeALUImm = 0b001_0011
	opcodeALUReg = 0b011_0011
	opcodeAMO    = 0b010_1111
	opcodeSystem = 0b111_0011
)

// Decoder decodes RV32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes one instruction from word.
//
// Decode is total: every input yields a well-formed Instruction, with
// unrecognised encodings mapped to OpInvalid. The low two bits select
// between the 16-bit compressed space and the full 32-bit space; only
// the latter is currently populated.
func (d *Decoder) Decode(word uint32) Instruction {
	if word&0b11 != 0b11 {
		return d.decodeCompressed(uint16(word))
	}

	inst := Instruction{Op: OpInvalid, Size: 4}

	switch word & opcodeMask {
	case opcodeLUI:
		inst.Op = OpLUI
		inst.Rd = rdField(word)
		inst.Imm = int32(word >> 12 & imm20Mask)
	case opcodeAUIPC:
		inst.Op = OpAUIPC
		inst.Rd = rdField(word)
		inst.Imm = int32(word >> 12 & imm20Mask)
	case opcodeJAL:
		d.decodeJAL(word, &inst)
	case opcodeJALR:
		if funct3Field(word) == 0 {
			inst.Op = OpJALR
			inst.Rd = rdField(word)
			inst.Rs1 = rs1Field(word)
			inst.Imm = bits.SignExtend(int32(word>>20&imm12Mask), 12)
		}
	case opcodeBranch:
		d.decodeBranch(word, &inst)
	case opcodeLoad:
		d.decodeLoad(word, &inst)
	case opcodeStore:
		d.decodeStore(word, &inst)
	case opcodeALUImm:
		d.decodeALUImm(word, &inst)
	case opcodeALUReg:
		d.decodeALUReg(word, &inst)
	case opcodeAMO:
		d.decodeAtomic(word, &inst)
	case opcodeSystem:
		d.decodeSystem(word, &inst)
	}

	return inst
}

// decodeCompressed handles the 16-bit encoding space. RVC decoding is
// not implemented; every compressed word resolves to OpInvalid while
// still reporting the 2-byte size.
func (d *Decoder) decodeCompressed(_ uint16) Instruction {
	return Instruction{Op: OpInvalid, Size: 2}
}

// decodeJAL extracts the scrambled J-type immediate.
// imm[20|10:1|11|19:12] lives in bits {31, 30:21, 20, 19:12}; the
// decoded value is the halfword count, sign-extended to 20 bits.
func (d *Decoder) decodeJAL(word uint32, inst *Instruction) {
	imm10to1 := word >> 21 & 0b11_1111_1111
	imm11 := word >> 20 & 0b1
	imm19to12 := word >> 12 & 0b1111_1111
	imm20 := word >> 31 & 0b1

	imm := imm20<<19 | imm19to12<<11 | imm11<<10 | imm10to1

	inst.Op = OpJAL
	inst.Rd = rdField(word)
	inst.Imm = bits.SignExtend(int32(imm), 20)
}

// decodeBranch extracts the B-type immediate imm[12|10:5|4:1|11] from
// bits {31, 30:25, 11:8, 7}. The decoded value is the halfword count,
// sign-extended to 12 bits.
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	imm4to1 := word >> 8 & 0b1111
	imm10to5 := word >> 25 & 0b11_1111
	imm11 := word >> 7 & 0b1
	imm12 := word >> 31 & 0b1

	imm := imm12<<11 | imm11<<10 | imm10to5<<4 | imm4to1

	inst.Rs1 = rs1Field(word)
	inst.Rs2 = rs2Field(word)
	inst.Imm = bits.SignExtend(int32(imm), 12)

	switch funct3Field(word) {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	default:
		inst.Op = OpInvalid
	}
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	inst.Rd = rdField(word)
	inst.Rs1 = rs1Field(word)
	inst.Imm = bits.SignExtend(int32(word>>20&imm12Mask), 12)

	switch funct3Field(word) {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	default:
		inst.Op = OpInvalid
	}
}

// decodeStore extracts the split S-type immediate imm[11:5|4:0] from
// bits {31:25, 11:7}.
func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	imm4to0 := word >> 7 & 0b1_1111
	imm11to5 := word >> 25 & 0b111_1111

	inst.Rs1 = rs1Field(word)
	inst.Rs2 = rs2Field(word)
	inst.Imm = bits.SignExtend(int32(imm11to5<<5|imm4to0), 12)

	switch funct3Field(word) {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	default:
		inst.Op = OpInvalid
	}
}

func (d *Decoder) decodeALUImm(word uint32, inst *Instruction) {
	inst.Rd = rdField(word)
	inst.Rs1 = rs1Field(word)

	imm := word >> 20 & imm12Mask
	// Shift operations use only the low five immediate bits.
	shamt := int32(imm & registerMask)
	funct7 := word >> 25 & funct7Mask

	switch funct3Field(word) {
	case 0b000:
		inst.Op = OpADDI
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b010:
		inst.Op = OpSLTI
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b011:
		inst.Op = OpSLTIU
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b100:
		inst.Op = OpXORI
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b110:
		inst.Op = OpORI
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b111:
		inst.Op = OpANDI
		inst.Imm = bits.SignExtend(int32(imm), 12)
	case 0b001:
		inst.Op = OpSLLI
		inst.Imm = shamt
	case 0b101:
		switch funct7 {
		case 0b000_0000:
			inst.Op = OpSRLI
			inst.Imm = shamt
		case 0b010_0000:
			inst.Op = OpSRAI
			inst.Imm = shamt
		}
	}
}

func (d *Decoder) decodeALUReg(word uint32, inst *Instruction) {
	inst.Rd = rdField(word)
	inst.Rs1 = rs1Field(word)
	inst.Rs2 = rs2Field(word)

	funct3 := funct3Field(word)
	funct7 := word >> 25 & funct7Mask

	switch {
	case funct7 == 0b000_0000:
		switch funct3 {
		case 0b000:
			inst.Op = OpADD
		case 0b001:
			inst.Op = OpSLL
		case 0b010:
			inst.Op = OpSLT
		case 0b011:
			inst.Op = OpSLTU
		case 0b100:
			inst.Op = OpXOR
		case 0b101:
			inst.Op = OpSRL
		case 0b110:
			inst.Op = OpOR
		case 0b111:
			inst.Op = OpAND
		}
	case funct7 == 0b010_0000:
		switch funct3 {
		case 0b000:
			inst.Op = OpSUB
		case 0b101:
			inst.Op = OpSRA
		}
	case funct7 == 0b000_0001:
		switch funct3 {
		case 0b000:
			inst.Op = OpMUL
		case 0b001:
			inst.Op = OpMULH
		case 0b010:
			inst.Op = OpMULHSU
		case 0b011:
			inst.Op = OpMULHU
		case 0b100:
			inst.Op = OpDIV
		case 0b101:
			inst.Op = OpDIVU
		case 0b110:
			inst.Op = OpREM
		case 0b111:
			inst.Op = OpREMU
		}
	}
}

// decodeAtomic handles the AMO opcode. funct5 (bits [31:27]) selects
// the operation; funct3 must be 010 (word width). The aq/rl bits are
// accepted and ignored.
func (d *Decoder) decodeAtomic(word uint32, inst *Instruction) {
	if funct3Field(word) != 0b010 {
		return
	}

	inst.Rd = rdField(word)
	inst.Rs1 = rs1Field(word)
	inst.Rs2 = rs2Field(word)

	switch word >> 27 & 0b1_1111 {
	case 0b00010:
		if inst.Rs2 == 0 {
			inst.Op = OpLRW
		}
	case 0b00011:
		inst.Op = OpSCW
	case 0b00001:
		inst.Op = OpAMOSWAPW
	case 0b00000:
		inst.Op = OpAMOADDW
	case 0b00100:
		inst.Op = OpAMOXORW
	case 0b01100:
		inst.Op = OpAMOANDW
	case 0b01000:
		inst.Op = OpAMOORW
	case 0b10000:
		inst.Op = OpAMOMINW
	case 0b10100:
		inst.Op = OpAMOMAXW
	case 0b11000:
		inst.Op = OpAMOMINUW
	case 0b11100:
		inst.Op = OpAMOMAXUW
	}
}

// decodeSystem handles EBREAK, MRET, and the CSR operations. The CSR
// forms carry their operands but execute as stubs.
func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	funct3 := funct3Field(word)
	imm12 := word >> 20 & imm12Mask

	if funct3 == 0 {
		if rdField(word) != 0 || rs1Field(word) != 0 {
			return
		}
		switch imm12 {
		case 0x001:
			inst.Op = OpEBREAK
		case 0x302:
			inst.Op = OpMRET
		}
		return
	}

	switch funct3 {
	case 0b001:
		inst.Op = OpCSRRW
	case 0b010:
		inst.Op = OpCSRRS
	case 0b011:
		inst.Op = OpCSRRC
	case 0b101:
		inst.Op = OpCSRRWI
	case 0b110:
		inst.Op = OpCSRRSI
	case 0b111:
		inst.Op = OpCSRRCI
	default:
		return
	}

	inst.Rd = rdField(word)
	inst.Rs1 = rs1Field(word)
	inst.Imm = int32(imm12)
}

func rdField(word uint32) uint8 {
	return uint8(word >> 7 & registerMask)
}

func rs1Field(word uint32) uint8 {
	return uint8(word >> 15 & registerMask)
}

func rs2Field(word uint32) uint8 {
	return uint8(word >> 20 & registerMask)
}

func funct3Field(word uint32) uint32 {
	return word >> 12 & funct3Mask
}
