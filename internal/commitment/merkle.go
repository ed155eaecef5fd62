package commitment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Tree is a complete binary Merkle tree stored level by level, leaves first.
type Tree struct {
	levels [][]common.Hash
	count  int
}

// Build hashes the leaves and folds them into a tree.
func Build(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}

	width := nextPowerOfTwo(len(leaves))
	level := make([]common.Hash, width)
	for i, leaf := range leaves {
		level[i] = leaf.Hash()
	}
	for i := len(leaves); i < width; i++ {
		level[i] = level[len(leaves)-1]
	}

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		parent := make([]common.Hash, len(level)/2)
		for i := range parent {
			parent[i] = hashPair(level[2*i], level[2*i+1])
		}
		levels = append(levels, parent)
		level = parent
	}

	return &Tree{levels: levels, count: len(leaves)}, nil
}

// Root returns the 32-byte batch root.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of real (unpadded) leaves.
func (t *Tree) Len() int {
	return t.count
}

// Proof returns the sibling path for the leaf at index, bottom up.
func (t *Tree) Proof(index int) ([][32]byte, error) {
	if index < 0 || index >= t.count {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.count)
	}
	path := make([][32]byte, 0, len(t.levels)-1)
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		path = append(path, level[pos^1])
		pos /= 2
	}
	return path, nil
}

// VerifyProof checks that leaf sits at index under root.
func VerifyProof(root common.Hash, leaf Leaf, index int, path [][32]byte) bool {
	if index < 0 || (len(path) < 63 && index >= 1<<len(path)) {
		return false
	}
	node := leaf.Hash()
	pos := index
	for _, sibling := range path {
		if pos%2 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
		pos /= 2
	}
	return node == root
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
