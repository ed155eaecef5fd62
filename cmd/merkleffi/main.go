// Command merkleffi builds the batch verifier as a C shared library:
//
//	go build -buildmode=c-shared -o libmerkle.so ./cmd/merkleffi
//
// Callers pass a buffer of exactly ffi.MaxBatchSize bytes, the number of valid
// bytes in it, and a 32-byte expected root.
package main

/*
#include <stdbool.h>
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/vietddude/batcher/internal/ffi"
)

//export verify_merkle_tree_batch_ffi
func verify_merkle_tree_batch_ffi(batch *C.uint8_t, length C.uint32_t, root *C.uint8_t) C.bool {
	if batch == nil || root == nil {
		return C.bool(false)
	}
	buf := (*[ffi.MaxBatchSize]byte)(unsafe.Pointer(batch))
	expected := (*[ffi.RootSize]byte)(unsafe.Pointer(root))
	return C.bool(ffi.VerifyBatch(buf, uint32(length), expected))
}

func main() {}
