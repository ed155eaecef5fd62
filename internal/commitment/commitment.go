// Package commitment derives Merkle-tree leaves from verification submissions
// and builds the batch root that is announced on chain.
//
// Leaves are Keccak-256 commitments over each submission. The tree pads its
// leaf level to a power of two by repeating the last leaf hash, and each
// parent is keccak(left || right). Construction is a pure function of the
// ordered leaf sequence, so any party holding the same submissions in the
// same order recomputes the same root.
package commitment

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/batcher/internal/core/domain"
)

// ErrEmptyBatch is returned when a commitment is requested for zero items.
var ErrEmptyBatch = errors.New("commitment: empty batch")

// Leaf holds the per-submission commitments hashed into the tree.
type Leaf struct {
	ProofCommitment                [32]byte
	PubInputCommitment             [32]byte
	ProvingSystemAuxDataCommitment [32]byte
	ProofGeneratorAddr             common.Address
}

// NewLeaf commits to a single submission. Absent optional fields commit to
// 32 zero bytes. The aux-data commitment binds the proving system id to the
// VM program code when present, otherwise to the verification key.
func NewLeaf(vd domain.VerificationData) Leaf {
	leaf := Leaf{
		ProofCommitment:    crypto.Keccak256Hash(vd.Proof),
		ProofGeneratorAddr: vd.ProofGeneratorAddr,
	}
	if vd.PubInput != nil {
		leaf.PubInputCommitment = crypto.Keccak256Hash(vd.PubInput)
	}

	provingSystem := []byte{byte(vd.ProvingSystem)}
	switch {
	case vd.VMProgramCode != nil:
		leaf.ProvingSystemAuxDataCommitment = crypto.Keccak256Hash(vd.VMProgramCode, provingSystem)
	case vd.VerificationKey != nil:
		leaf.ProvingSystemAuxDataCommitment = crypto.Keccak256Hash(vd.VerificationKey, provingSystem)
	}
	return leaf
}

// Bytes is the payload hashed into the leaf node.
func (l Leaf) Bytes() []byte {
	out := make([]byte, 0, 32*3+common.AddressLength)
	out = append(out, l.ProofCommitment[:]...)
	out = append(out, l.PubInputCommitment[:]...)
	out = append(out, l.ProvingSystemAuxDataCommitment[:]...)
	out = append(out, l.ProofGeneratorAddr[:]...)
	return out
}

// Hash is the leaf node value.
func (l Leaf) Hash() common.Hash {
	return crypto.Keccak256Hash(l.Bytes())
}

// Leaves maps a batch to its leaves, preserving order.
func Leaves(batch []domain.VerificationData) []Leaf {
	leaves := make([]Leaf, len(batch))
	for i := range batch {
		leaves[i] = NewLeaf(batch[i])
	}
	return leaves
}

// FromBatch builds the commitment for an ordered batch.
func FromBatch(batch []domain.VerificationData) (*Tree, error) {
	return Build(Leaves(batch))
}
