// Package ffi is the boundary used by callers outside the Go runtime to
// re-derive a batch root and check it against an expected value.
//
// The boundary speaks only booleans. The caller owns the buffer and claims
// how many of its bytes are valid; that claim is checked against the fixed
// capacity before anything is read.
package ffi

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/commitment"
	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/metrics"
)

// MaxBatchSize is the fixed capacity of the batch buffer: 20 MiB.
const MaxBatchSize = 2 * 1024 * 1024 * 10

// RootSize is the length of a batch root.
const RootSize = 32

// VerifyBatch parses buf[:length] as a batch, rebuilds its Merkle root and
// reports whether it equals expected. Malformed input yields false; nothing
// escapes the boundary as a panic or error.
func VerifyBatch(buf *[MaxBatchSize]byte, length uint32, expected *[RootSize]byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Batch verification panicked", "panic", r)
			metrics.BatchVerificationsTotal.WithLabelValues("invalid").Inc()
			ok = false
		}
	}()

	payload, valid := boundedPayload(buf, length, expected)
	if !valid {
		metrics.BatchVerificationsTotal.WithLabelValues("invalid").Inc()
		return false
	}

	batch, err := domain.DecodeBatch(payload)
	if err != nil {
		slog.Error("Failed to parse batch data", "error", err, "length", length)
		metrics.BatchVerificationsTotal.WithLabelValues("invalid").Inc()
		return false
	}

	computed, err := commitment.FromBatch(batch)
	if err != nil {
		slog.Error("Failed to build batch commitment", "error", err)
		metrics.BatchVerificationsTotal.WithLabelValues("invalid").Inc()
		return false
	}

	calculatedRoot := computed.Root()
	calculatedHex := common.Bytes2Hex(calculatedRoot[:])
	receivedHex := common.Bytes2Hex(expected[:])

	slog.Info("Calculated merkle root", "root", calculatedHex)
	slog.Info("Received merkle root", "root", receivedHex)

	if calculatedHex != receivedHex {
		metrics.BatchVerificationsTotal.WithLabelValues("mismatch").Inc()
		return false
	}
	metrics.BatchVerificationsTotal.WithLabelValues("match").Inc()
	return true
}

// boundedPayload validates the caller's claims before any byte is parsed.
func boundedPayload(buf *[MaxBatchSize]byte, length uint32, expected *[RootSize]byte) ([]byte, bool) {
	if buf == nil || expected == nil {
		slog.Error("Batch verification called with nil buffer")
		return nil, false
	}
	if uint64(length) > MaxBatchSize {
		slog.Error("Batch length exceeds buffer capacity", "length", length, "capacity", MaxBatchSize)
		return nil, false
	}
	if length == 0 {
		slog.Error("Batch verification called with empty batch")
		return nil, false
	}
	return buf[:length:length], true
}

// VerifyBytes copies an in-memory batch into a boundary buffer and verifies
// it. Batches larger than MaxBatchSize fail.
func VerifyBytes(payload []byte, root common.Hash) bool {
	if len(payload) > MaxBatchSize {
		slog.Error("Batch exceeds buffer capacity", "size", len(payload), "capacity", MaxBatchSize)
		metrics.BatchVerificationsTotal.WithLabelValues("invalid").Inc()
		return false
	}
	buf := new([MaxBatchSize]byte)
	copy(buf[:], payload)
	expected := [RootSize]byte(root)
	return VerifyBatch(buf, uint32(len(payload)), &expected)
}
