// Package harness drives compiled guest binaries through the
// console-device exchange regions: the host deposits input (length,
// then payload) before the run and harvests output after the program
// halts.
package harness

import (
	"fmt"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/mem"
)

// TestRun prepares one guest execution. Write calls append to the
// input exchange region; Run stamps the input length and executes the
// program to its halt.
type TestRun struct {
	memory    *mem.AddressSpace
	writeAddr mem.Address
}

// New loads the ELF binary at path into a fresh address space.
func New(path string, opts ...mem.AddressSpaceOption) (*TestRun, error) {
	memory := mem.NewAddressSpace(opts...)
	if _, err := loader.Load(path, memory); err != nil {
		return nil, err
	}

	return &TestRun{
		memory:    memory,
		writeAddr: mem.ConsoleBase + mem.ConsoleInput,
	}, nil
}

// NewFromMemory wraps an already prepared address space, e.g. one with
// a hand-assembled program deposited in RAM.
func NewFromMemory(memory *mem.AddressSpace) *TestRun {
	return &TestRun{
		memory:    memory,
		writeAddr: mem.ConsoleBase + mem.ConsoleInput,
	}
}

// WriteByte appends one byte to the input region.
func (t *TestRun) WriteByte(v uint8) *TestRun {
	t.memory.WriteByte(t.writeAddr, v)
	t.writeAddr++
	return t
}

// WriteHalfword appends a halfword to the input region.
func (t *TestRun) WriteHalfword(v uint16) *TestRun {
	t.memory.WriteHalfword(t.writeAddr, v)
	t.writeAddr += 2
	return t
}

// WriteWord appends a word to the input region.
func (t *TestRun) WriteWord(v uint32) *TestRun {
	t.memory.WriteWord(t.writeAddr, v)
	t.writeAddr += 4
	return t
}

// WriteString appends a NUL-terminated string to the input region.
func (t *TestRun) WriteString(s string) *TestRun {
	for i := 0; i < len(s); i++ {
		t.WriteByte(s[i])
	}
	t.WriteByte(0)
	return t
}

// Run stamps the input length, executes the program from address 0 to
// its halt, and returns a reader over the output region.
func (t *TestRun) Run() (*Result, error) {
	t.memory.WriteWord(
		mem.ConsoleBase+mem.ConsoleInputLength,
		uint32(t.writeAddr-(mem.ConsoleBase+mem.ConsoleInput)),
	)

	cpu := emu.NewCPU()
	event, err := cpu.Run(t.memory)
	if err != nil {
		return nil, err
	}
	if event != emu.EventHalted {
		return nil, fmt.Errorf("program stopped without halting: event %v", event)
	}

	return &Result{
		memory:   t.memory,
		cpu:      cpu,
		readAddr: mem.ConsoleBase + mem.ConsoleOutput,
	}, nil
}

// Result reads the output exchange region of a completed run.
type Result struct {
	memory   *mem.AddressSpace
	cpu      *emu.CPU
	readAddr mem.Address
}

// OutputLength returns the length word the guest stamped.
func (r *Result) OutputLength() uint32 {
	return r.memory.ReadWord(mem.ConsoleBase + mem.ConsoleOutputLength)
}

// CPU returns the CPU that executed the run, for state assertions.
func (r *Result) CPU() *emu.CPU {
	return r.cpu
}

// ReadByte consumes one byte from the output region.
func (r *Result) ReadByte() uint8 {
	v := r.memory.ReadByte(r.readAddr)
	r.readAddr++
	return v
}

// ReadHalfword consumes a halfword from the output region.
func (r *Result) ReadHalfword() uint16 {
	v := r.memory.ReadHalfword(r.readAddr)
	r.readAddr += 2
	return v
}

// ReadWord consumes a word from the output region.
func (r *Result) ReadWord() uint32 {
	v := r.memory.ReadWord(r.readAddr)
	r.readAddr += 4
	return v
}

// ReadString consumes bytes up to a NUL terminator.
func (r *Result) ReadString() string {
	var s []byte
	for {
		b := r.ReadByte()
		if b == 0 {
			return string(s)
		}
		s = append(s, b)
	}
}
