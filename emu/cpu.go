// Package emu provides the RV32IMA execution core.
package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/rv32sim/bits"
	"github.com/sarchlab/rv32sim/insts"
)

// Event represents the reason the CPU returned control to the caller.
type Event int

// CPU events.
const (
	// EventNone means execution can continue.
	EventNone Event = iota
	// EventHalted means the program executed EBREAK.
	EventHalted
	// EventBreakpoint means the PC landed on a registered
	// breakpoint, or the run hook requested a stop.
	EventBreakpoint
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Event is EventNone while execution can continue.
	Event Event

	// Err is set when execution aborted, e.g. on an invalid
	// instruction.
	Err error
}

// Memory is the view of the address space the CPU executes against.
type Memory interface {
	ReadByte(addr uint32) uint8
	ReadHalfword(addr uint32) uint16
	ReadWord(addr uint32) uint32

	WriteByte(addr uint32, v uint8)
	WriteHalfword(addr uint32, v uint16)
	WriteWord(addr uint32, v uint32)

	// CheckForInterrupt claims a pending interrupt, returning the
	// handler address to redirect to.
	CheckForInterrupt() (handler uint32, pending bool)
}

// defaultHookPeriod is how many instructions Run executes between run
// hook invocations.
const defaultHookPeriod = 1024

// CPU is the RV32IMA execution core: a 32-entry register file, the
// program counter, and the fetch-decode-execute machinery with its
// decoded-instruction cache.
//
// The CPU is single-threaded; all methods must be called from the
// owning goroutine.
type CPU struct {
	regs    [32]uint32
	pc      uint32
	savedPC uint32
	running bool

	breakpoints map[uint32]struct{}
	cycles      uint64

	decoder *insts.Decoder
	cache   *decodedCache

	hookPeriod uint64
	hook       func() bool
}

// CPUOption is a functional option for configuring the CPU.
type CPUOption func(*CPU)

// WithRunHook installs a callback Run invokes every period executed
// instructions. Returning true stops the run with EventBreakpoint;
// the debugger uses this to poll for a client interrupt.
func WithRunHook(period uint64, hook func() bool) CPUOption {
	return func(c *CPU) {
		c.SetRunHook(period, hook)
	}
}

// NewCPU creates a CPU with zeroed registers, PC 0, and an empty
// decoded-instruction cache.
func NewCPU(opts ...CPUOption) *CPU {
	c := &CPU{
		running:     true,
		breakpoints: map[uint32]struct{}{},
		decoder:     insts.NewDecoder(),
		cache:       newDecodedCache(),
		hookPeriod:  defaultHookPeriod,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset returns the CPU to the state of a fresh NewCPU: registers, PC,
// saved PC, cycle counter, breakpoints, and decoded cache all cleared.
func (c *CPU) Reset() {
	c.regs = [32]uint32{}
	c.pc = 0
	c.savedPC = 0
	c.running = true
	c.breakpoints = map[uint32]struct{}{}
	c.cycles = 0
	c.cache = newDecodedCache()
}

// PC returns the program counter.
func (c *CPU) PC() uint32 {
	return c.pc
}

// SetPC sets the program counter.
func (c *CPU) SetPC(pc uint32) {
	c.pc = pc
}

// Register reads register num. Register 0 always reads 0.
func (c *CPU) Register(num uint8) uint32 {
	return c.regs[num]
}

// SetRegister writes register num. Writes to register 0 are discarded.
func (c *CPU) SetRegister(num uint8, v uint32) {
	if num != 0 {
		c.regs[num] = v
	}
}

// AddBreakpoint registers a breakpoint address.
func (c *CPU) AddBreakpoint(addr uint32) {
	c.breakpoints[addr] = struct{}{}
}

// RemoveBreakpoint removes a breakpoint address.
func (c *CPU) RemoveBreakpoint(addr uint32) {
	delete(c.breakpoints, addr)
}

// CycleCounter returns the number of executed instructions.
func (c *CPU) CycleCounter() uint64 {
	return c.cycles
}

// SetRunHook replaces the periodic run hook. A nil hook disables the
// callback; period zero keeps the previous cadence.
func (c *CPU) SetRunHook(period uint64, hook func() bool) {
	if period > 0 {
		c.hookPeriod = period
	}
	c.hook = hook
}

// Run executes instructions until the program halts, a breakpoint is
// hit, the run hook requests a stop, or execution aborts with an
// error.
func (c *CPU) Run(memory Memory) (Event, error) {
	var sinceHook uint64

	for c.running {
		if handler, pending := memory.CheckForInterrupt(); pending {
			c.savedPC = c.pc
			c.pc = handler
		}

		inst, ok := c.cache.get(c.pc)
		if !ok {
			inst = c.decoder.Decode(memory.ReadWord(c.pc))
			c.cache.put(c.pc, inst)
		}

		if err := c.execute(inst, memory); err != nil {
			return EventNone, err
		}

		// A halting instruction leaves the PC on itself.
		if !c.running {
			c.cycles++
			break
		}

		c.pc += inst.Size
		c.cycles++

		if _, hit := c.breakpoints[c.pc]; hit {
			return EventBreakpoint, nil
		}

		sinceHook++
		if c.hook != nil && sinceHook >= c.hookPeriod {
			sinceHook = 0
			if c.hook() {
				return EventBreakpoint, nil
			}
		}
	}

	return EventHalted, nil
}

// Step executes exactly one instruction. A pending interrupt redirects
// the PC first and the instruction at the handler executes in the same
// step.
func (c *CPU) Step(memory Memory) StepResult {
	if handler, pending := memory.CheckForInterrupt(); pending {
		c.savedPC = c.pc
		c.pc = handler
	}

	inst := c.decoder.Decode(memory.ReadWord(c.pc))
	if err := c.execute(inst, memory); err != nil {
		return StepResult{Err: err}
	}

	if !c.running {
		c.cycles++
		return StepResult{Event: EventHalted}
	}

	c.pc += inst.Size
	c.cycles++

	if _, hit := c.breakpoints[c.pc]; hit {
		return StepResult{Event: EventBreakpoint}
	}
	return StepResult{}
}

// setPCForBranch applies the taken-branch arithmetic. imm is the
// halfword count decoded from the instruction; the unconditional
// PC += size after execution is compensated by subtracting size here.
func (c *CPU) setPCForBranch(taken bool, imm int32, size uint32) {
	if taken {
		c.pc = c.pc + uint32(imm)*2 - size
	}
}

// address computes rs1 + offset with wrapping arithmetic.
func (c *CPU) address(baseReg uint8, offset int32) uint32 {
	return c.regs[baseReg] + uint32(offset)
}

func (c *CPU) execute(inst insts.Instruction, memory Memory) error {
	size := inst.Size

	switch inst.Op {
	case insts.OpLUI:
		c.SetRegister(inst.Rd, uint32(inst.Imm)<<12)
	case insts.OpAUIPC:
		c.SetRegister(inst.Rd, c.pc+uint32(inst.Imm)<<12)
	case insts.OpJAL:
		link := c.pc + size
		c.pc = c.pc + uint32(inst.Imm)*2 - size
		c.SetRegister(inst.Rd, link)
	case insts.OpJALR:
		link := c.pc + size
		c.pc = (c.regs[inst.Rs1]+uint32(inst.Imm))&^1 - size
		c.SetRegister(inst.Rd, link)

	case insts.OpBEQ:
		c.setPCForBranch(c.regs[inst.Rs1] == c.regs[inst.Rs2], inst.Imm, size)
	case insts.OpBNE:
		c.setPCForBranch(c.regs[inst.Rs1] != c.regs[inst.Rs2], inst.Imm, size)
	case insts.OpBLT:
		c.setPCForBranch(
			int32(c.regs[inst.Rs1]) < int32(c.regs[inst.Rs2]), inst.Imm, size)
	case insts.OpBGE:
		c.setPCForBranch(
			int32(c.regs[inst.Rs1]) >= int32(c.regs[inst.Rs2]), inst.Imm, size)
	case insts.OpBLTU:
		c.setPCForBranch(c.regs[inst.Rs1] < c.regs[inst.Rs2], inst.Imm, size)
	case insts.OpBGEU:
		c.setPCForBranch(c.regs[inst.Rs1] >= c.regs[inst.Rs2], inst.Imm, size)

	case insts.OpLB:
		addr := c.address(inst.Rs1, inst.Imm)
		b := memory.ReadByte(addr)
		c.SetRegister(inst.Rd, uint32(bits.SignExtend(int32(b), 8)))
	case insts.OpLH:
		addr := c.address(inst.Rs1, inst.Imm)
		h := memory.ReadHalfword(addr)
		c.SetRegister(inst.Rd, uint32(bits.SignExtend(int32(h), 16)))
	case insts.OpLW:
		addr := c.address(inst.Rs1, inst.Imm)
		c.SetRegister(inst.Rd, memory.ReadWord(addr))
	case insts.OpLBU:
		addr := c.address(inst.Rs1, inst.Imm)
		c.SetRegister(inst.Rd, uint32(memory.ReadByte(addr)))
	case insts.OpLHU:
		addr := c.address(inst.Rs1, inst.Imm)
		c.SetRegister(inst.Rd, uint32(memory.ReadHalfword(addr)))

	case insts.OpSB:
		addr := c.address(inst.Rs1, inst.Imm)
		memory.WriteByte(addr, uint8(c.regs[inst.Rs2]))
	case insts.OpSH:
		addr := c.address(inst.Rs1, inst.Imm)
		memory.WriteHalfword(addr, uint16(c.regs[inst.Rs2]))
	case insts.OpSW:
		addr := c.address(inst.Rs1, inst.Imm)
		memory.WriteWord(addr, c.regs[inst.Rs2])

	case insts.OpADDI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]+uint32(inst.Imm))
	case insts.OpSLTI:
		c.SetRegister(inst.Rd, boolToReg(int32(c.regs[inst.Rs1]) < inst.Imm))
	case insts.OpSLTIU:
		c.SetRegister(inst.Rd, boolToReg(c.regs[inst.Rs1] < uint32(inst.Imm)))
	case insts.OpXORI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]^uint32(inst.Imm))
	case insts.OpORI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]|uint32(inst.Imm))
	case insts.OpANDI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]&uint32(inst.Imm))
	case insts.OpSLLI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]<<uint32(inst.Imm))
	case insts.OpSRLI:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]>>uint32(inst.Imm))
	case insts.OpSRAI:
		c.SetRegister(inst.Rd, uint32(int32(c.regs[inst.Rs1])>>uint32(inst.Imm)))

	case insts.OpADD:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]+c.regs[inst.Rs2])
	case insts.OpSUB:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]-c.regs[inst.Rs2])
	case insts.OpSLL:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]<<(c.regs[inst.Rs2]&0x1F))
	case insts.OpSLT:
		c.SetRegister(inst.Rd,
			boolToReg(int32(c.regs[inst.Rs1]) < int32(c.regs[inst.Rs2])))
	case insts.OpSLTU:
		c.SetRegister(inst.Rd, boolToReg(c.regs[inst.Rs1] < c.regs[inst.Rs2]))
	case insts.OpXOR:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]^c.regs[inst.Rs2])
	case insts.OpSRL:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]>>(c.regs[inst.Rs2]&0x1F))
	case insts.OpSRA:
		c.SetRegister(inst.Rd,
			uint32(int32(c.regs[inst.Rs1])>>(c.regs[inst.Rs2]&0x1F)))
	case insts.OpOR:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]|c.regs[inst.Rs2])
	case insts.OpAND:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]&c.regs[inst.Rs2])

	case insts.OpMUL:
		c.SetRegister(inst.Rd, c.regs[inst.Rs1]*c.regs[inst.Rs2])
	case insts.OpMULH:
		p := int64(int32(c.regs[inst.Rs1])) * int64(int32(c.regs[inst.Rs2]))
		c.SetRegister(inst.Rd, uint32(p>>32))
	case insts.OpMULHSU:
		p := int64(int32(c.regs[inst.Rs1])) * int64(c.regs[inst.Rs2])
		c.SetRegister(inst.Rd, uint32(p>>32))
	case insts.OpMULHU:
		p := uint64(c.regs[inst.Rs1]) * uint64(c.regs[inst.Rs2])
		c.SetRegister(inst.Rd, uint32(p>>32))
	case insts.OpDIV:
		c.SetRegister(inst.Rd,
			divSigned(int32(c.regs[inst.Rs1]), int32(c.regs[inst.Rs2])))
	case insts.OpDIVU:
		c.SetRegister(inst.Rd, divUnsigned(c.regs[inst.Rs1], c.regs[inst.Rs2]))
	case insts.OpREM:
		c.SetRegister(inst.Rd,
			remSigned(int32(c.regs[inst.Rs1]), int32(c.regs[inst.Rs2])))
	case insts.OpREMU:
		c.SetRegister(inst.Rd, remUnsigned(c.regs[inst.Rs1], c.regs[inst.Rs2]))

	case insts.OpLRW:
		// Reservation tracking is stubbed; the paired SC.W always
		// succeeds.
		c.SetRegister(inst.Rd, memory.ReadWord(c.regs[inst.Rs1]))
	case insts.OpSCW:
		memory.WriteWord(c.regs[inst.Rs1], c.regs[inst.Rs2])
		c.SetRegister(inst.Rd, 0)
	case insts.OpAMOSWAPW:
		c.amo(inst, memory, func(_, src uint32) uint32 { return src })
	case insts.OpAMOADDW:
		c.amo(inst, memory, func(old, src uint32) uint32 { return old + src })
	case insts.OpAMOXORW:
		c.amo(inst, memory, func(old, src uint32) uint32 { return old ^ src })
	case insts.OpAMOANDW:
		c.amo(inst, memory, func(old, src uint32) uint32 { return old & src })
	case insts.OpAMOORW:
		c.amo(inst, memory, func(old, src uint32) uint32 { return old | src })
	case insts.OpAMOMINW:
		c.amo(inst, memory, func(old, src uint32) uint32 {
			if int32(old) < int32(src) {
				return old
			}
			return src
		})
	case insts.OpAMOMAXW:
		c.amo(inst, memory, func(old, src uint32) uint32 {
			if int32(old) > int32(src) {
				return old
			}
			return src
		})
	case insts.OpAMOMINUW:
		c.amo(inst, memory, func(old, src uint32) uint32 {
			if old < src {
				return old
			}
			return src
		})
	case insts.OpAMOMAXUW:
		c.amo(inst, memory, func(old, src uint32) uint32 {
			if old > src {
				return old
			}
			return src
		})

	case insts.OpEBREAK:
		c.running = false
	case insts.OpMRET:
		c.pc = c.savedPC - size
	case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC,
		insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		logrus.Debugf("unimplemented CSR instruction %v at PC=0x%08X",
			inst.Op, c.pc)

	case insts.OpInvalid:
		return fmt.Errorf("invalid instruction at PC=0x%08X", c.pc)
	}

	return nil
}

// amo performs a word read-modify-write at rs1 and yields the
// pre-operation value into rd.
func (c *CPU) amo(inst insts.Instruction, memory Memory,
	f func(old, src uint32) uint32,
) {
	addr := c.regs[inst.Rs1]
	old := memory.ReadWord(addr)
	memory.WriteWord(addr, f(old, c.regs[inst.Rs2]))
	c.SetRegister(inst.Rd, old)
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// RISC-V division special cases: divide-by-zero yields all-ones for
// quotients and the unchanged dividend for remainders; INT_MIN / -1
// yields INT_MIN with remainder 0.
func divSigned(a, b int32) uint32 {
	switch {
	case b == 0:
		return 0xFFFFFFFF
	case a == -1<<31 && b == -1:
		return uint32(a)
	default:
		return uint32(a / b)
	}
}

func divUnsigned(a, b uint32) uint32 {
	if b == 0 {
		return 0xFFFFFFFF
	}
	return a / b
}

func remSigned(a, b int32) uint32 {
	switch {
	case b == 0:
		return uint32(a)
	case a == -1<<31 && b == -1:
		return 0
	default:
		return uint32(a % b)
	}
}

func remUnsigned(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
