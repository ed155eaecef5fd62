package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Batch is the archived record of a committed batch.
type Batch struct {
	Root      common.Hash
	ItemCount int
	SizeBytes int
	// Payload is the canonical encoding of the batch items. Listings leave
	// it empty.
	Payload   []byte
	CreatedAt time.Time
}

// InclusionProof is the sibling path from a leaf to the batch root.
type InclusionProof struct {
	MerklePath [][32]byte `cbor:"merkle_path"`
}

// BatchInclusionData is sent to a submitter once its item is committed.
type BatchInclusionData struct {
	BatchMerkleRoot     [32]byte       `cbor:"batch_merkle_root"`
	BatchInclusionProof InclusionProof `cbor:"batch_inclusion_proof"`
	IndexInBatch        uint64         `cbor:"index_in_batch"`
}

// NewBatchNotice is broadcast to every connected peer after a commit.
type NewBatchNotice struct {
	BatchMerkleRoot [32]byte `cbor:"batch_merkle_root"`
	ItemCount       uint64   `cbor:"item_count"`
	GasPrice        []byte   `cbor:"gas_price,omitempty"`
}
