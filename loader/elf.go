// Package loader provides ELF binary loading for RV32 executables.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// Memory is the byte-deposit interface the loader writes program
// segments through.
type Memory interface {
	WriteByte(addr uint32, v uint8)
}

// Program describes a loaded ELF binary.
type Program struct {
	// EntryPoint is the e_entry field of the binary. The emulator
	// starts execution at address 0 regardless; the field is kept
	// for diagnostics.
	EntryPoint uint32

	// Segments is the number of PT_LOAD segments materialised.
	Segments int

	// Bytes is the total number of file bytes deposited.
	Bytes uint32
}

// Load parses the RV32 ELF binary at path and deposits every PT_LOAD
// segment at its p_vaddr through the memory API, zero-filling up to
// p_memsz.
func Load(path string, memory Memory) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file (class: %v)", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file (data: %v)", f.Data)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{EntryPoint: uint32(f.Entry)}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w",
					phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf(
					"short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		vaddr := uint32(phdr.Vaddr)
		for i, b := range data {
			memory.WriteByte(vaddr+uint32(i), b)
		}
		// Zero-fill BSS (memsize > filesize). The backing devices
		// start zeroed, but a reloaded address space may not.
		for i := uint32(phdr.Filesz); i < uint32(phdr.Memsz); i++ {
			memory.WriteByte(vaddr+i, 0)
		}

		prog.Segments++
		prog.Bytes += uint32(phdr.Filesz)
	}

	return prog, nil
}
