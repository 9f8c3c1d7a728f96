package engine

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-forksim/inter"
)

// MemHost is the in-process BlockHost used by the CLI runner and tests. It
// keeps one synthetic chain tip per fork and derives block hashes
// deterministically from (fork, height), so identical scenarios produce
// identical chains without any real nodes attached.
type MemHost struct {
	forks   inter.ForkSet
	heights map[inter.Fork]idx.Block
	hashes  map[inter.Fork]common.Hash
}

// NewMemHost starts every fork's synthetic chain at the common start height.
func NewMemHost(forks inter.ForkSet, start idx.Block) *MemHost {
	h := &MemHost{
		forks:   forks,
		heights: make(map[inter.Fork]idx.Block, len(forks)),
		hashes:  make(map[inter.Fork]common.Hash, len(forks)),
	}
	for _, d := range forks {
		h.heights[d.ID] = start
		h.hashes[d.ID] = blockHash(d.Name, start)
	}
	return h
}

// ProduceBlock appends one block to fork f's synthetic chain and reports the
// new tip.
func (h *MemHost) ProduceBlock(f inter.Fork, producerID string, t inter.SimTime) (idx.Block, common.Hash, error) {
	if _, ok := h.heights[f]; !ok {
		return 0, common.Hash{}, fmt.Errorf("unknown fork %d", f)
	}
	h.heights[f]++
	h.hashes[f] = blockHash(h.forks.Name(f), h.heights[f])
	return h.heights[f], h.hashes[f], nil
}

// Height returns fork f's current synthetic tip height.
func (h *MemHost) Height(f inter.Fork) idx.Block { return h.heights[f] }

// TipHash returns fork f's current synthetic tip hash.
func (h *MemHost) TipHash(f inter.Fork) common.Hash { return h.hashes[f] }

// blockHash derives a stable synthetic hash for a (fork, height) pair.
func blockHash(forkName string, height idx.Block) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", forkName, height)))
}
