package emu

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rv32sim/insts"
)

// cacheWindowSize is the span of program-counter values covered by the
// direct-mapped tier of the decoded-instruction cache, one entry per
// byte address.
const cacheWindowSize = 1 << 20

// Spill-tier geometry for code fetched above the direct window.
const (
	spillSets  = 4096
	spillWays  = 4
	// Each block caches one decoded slot; two-byte blocks keep
	// compressed-size PCs from aliasing.
	spillBlockSize = 2
)

// decodedCache caches decoded instructions by program counter. PCs
// below the window hit a direct-mapped array; PCs above it go through
// a small set-associative spill cache. Neither tier is ever
// invalidated, so self-modifying code is unsupported once a slot has
// been populated.
type decodedCache struct {
	window []insts.Instruction

	directory *akitacache.DirectoryImpl
	spill     []insts.Instruction
}

func newDecodedCache() *decodedCache {
	return &decodedCache{
		window: make([]insts.Instruction, cacheWindowSize),
		directory: akitacache.NewDirectory(
			spillSets,
			spillWays,
			spillBlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		spill: make([]insts.Instruction, spillSets*spillWays),
	}
}

func (c *decodedCache) spillIndex(block *akitacache.Block) int {
	return block.SetID*spillWays + block.WayID
}

// get returns the cached decode for pc. ok is false when the slot has
// not been populated yet.
func (c *decodedCache) get(pc uint32) (insts.Instruction, bool) {
	if pc < cacheWindowSize {
		inst := c.window[pc]
		return inst, inst.Op != insts.OpInvalid
	}

	block := c.directory.Lookup(0, uint64(pc))
	if block == nil || !block.IsValid {
		return insts.Instruction{}, false
	}
	c.directory.Visit(block)
	return c.spill[c.spillIndex(block)], true
}

// put stores a decode for pc. Invalid decodes are not cached; they
// abort execution before a second fetch could occur.
func (c *decodedCache) put(pc uint32, inst insts.Instruction) {
	if inst.Op == insts.OpInvalid {
		return
	}

	if pc < cacheWindowSize {
		c.window[pc] = inst
		return
	}

	victim := c.directory.FindVictim(uint64(pc))
	if victim == nil {
		return
	}
	victim.Tag = uint64(pc)
	victim.IsValid = true
	c.spill[c.spillIndex(victim)] = inst
	c.directory.Visit(victim)
}
