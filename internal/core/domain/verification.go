package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// ProvingSystemID identifies the proof system a submission targets.
// The numeric value is part of the commitment and must not be reordered.
type ProvingSystemID uint8

const (
	GnarkPlonkBls12_381 ProvingSystemID = iota
	GnarkPlonkBn254
	Groth16Bn254
	SP1
	Halo2KZG
	Halo2IPA
	Risc0
)

var provingSystemNames = map[ProvingSystemID]string{
	GnarkPlonkBls12_381: "GnarkPlonkBls12_381",
	GnarkPlonkBn254:     "GnarkPlonkBn254",
	Groth16Bn254:        "Groth16Bn254",
	SP1:                 "SP1",
	Halo2KZG:            "Halo2KZG",
	Halo2IPA:            "Halo2IPA",
	Risc0:               "Risc0",
}

var provingSystemByName = func() map[string]ProvingSystemID {
	m := make(map[string]ProvingSystemID, len(provingSystemNames))
	for id, name := range provingSystemNames {
		m[name] = id
	}
	return m
}()

func (p ProvingSystemID) String() string {
	if name, ok := provingSystemNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ProvingSystemID(%d)", uint8(p))
}

// ParseProvingSystemID resolves a proving system by its wire name.
func ParseProvingSystemID(s string) (ProvingSystemID, error) {
	id, ok := provingSystemByName[s]
	if !ok {
		return 0, fmt.Errorf("unknown proving system %q", s)
	}
	return id, nil
}

func (p ProvingSystemID) MarshalText() ([]byte, error) {
	name, ok := provingSystemNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown proving system id %d", uint8(p))
	}
	return []byte(name), nil
}

func (p *ProvingSystemID) UnmarshalText(text []byte) error {
	id, err := ParseProvingSystemID(string(text))
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// Bytes is a byte string encoded in JSON as an array of integers, the way
// the batch wire format carries proofs and inputs. A nil Bytes encodes as
// null and marks an absent optional field; an empty non-nil Bytes encodes
// as [].
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	var values []uint16
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode byte array: %w", err)
	}
	out := make(Bytes, len(values))
	for i, v := range values {
		if v > 0xff {
			return fmt.Errorf("byte array element %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// VerificationData is one client submission. The core never inspects the
// proof itself; it only commits to the submission's bytes.
type VerificationData struct {
	ProvingSystem      ProvingSystemID `json:"proving_system"`
	Proof              Bytes           `json:"proof"`
	PubInput           Bytes           `json:"pub_input"`
	VerificationKey    Bytes           `json:"verification_key"`
	VMProgramCode      Bytes           `json:"vm_program_code"`
	ProofGeneratorAddr common.Address  `json:"proof_generator_addr"`
}

// EncodeBatch returns the canonical wire encoding of a batch.
func EncodeBatch(batch []VerificationData) ([]byte, error) {
	if batch == nil {
		batch = []VerificationData{}
	}
	return json.Marshal(batch)
}

// DecodeBatch parses a batch. Only the canonical encoding produced by
// EncodeBatch is accepted: unknown fields, trailing data, and any input that
// does not re-encode to the identical bytes are rejected, so that distinct
// byte strings never decode to the same batch.
func DecodeBatch(data []byte) ([]VerificationData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var batch []VerificationData
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	canonical, err := EncodeBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("re-encode batch: %w", err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, fmt.Errorf("decode batch: input is not canonically encoded")
	}
	return batch, nil
}
