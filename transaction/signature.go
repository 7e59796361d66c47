package transaction

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SignatureLength is the length of an r || s || v signature.
const SignatureLength = 65

// Signature is an owner signature over the transaction hash.
type Signature struct {
	Signer common.Address
	Data   []byte
}

func (s Signature) clone() Signature {
	return Signature{Signer: s.Signer, Data: slices.Clone(s.Data)}
}

func cloneSignatures(sigs []Signature) []Signature {
	if sigs == nil {
		return nil
	}
	out := make([]Signature, len(sigs))
	for i, s := range sigs {
		out[i] = s.clone()
	}

	return out
}

// SortSignatures returns the signatures in the order the relay and the Safe contract expect:
// ascending by the lowercase hex string of the signer address.
func SortSignatures(sigs []Signature) []Signature {
	sorted := cloneSignatures(sigs)
	slices.SortStableFunc(sorted, func(a, b Signature) int {
		return strings.Compare(strings.ToLower(a.Signer.Hex()), strings.ToLower(b.Signer.Hex()))
	})

	return sorted
}

// PackSignatures concatenates sigs in canonical order, as expected by execTransaction.
func PackSignatures(sigs []Signature) []byte {
	var buf bytes.Buffer
	for _, s := range SortSignatures(sigs) {
		buf.Write(s.Data)
	}

	return buf.Bytes()
}

// RequiredRemoteSignatures returns how many signatures must be collected from other devices
// before this device adds its own, which is always the last one.
func RequiredRemoteSignatures(threshold int) int {
	return max(threshold-1, 0)
}

// AddressRecoverer recovers the signer of a hash.
type AddressRecoverer interface {
	AddressRecover(hash []byte, signature []byte) (common.Address, error)
}

// VerifyRemoteSignature checks that sig over hash was produced by owner. Addresses are
// compared case-insensitively.
func VerifyRemoteSignature(recoverer AddressRecoverer, hash []byte, sig Signature, owner common.Address) error {
	if len(sig.Data) != SignatureLength {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(sig.Data))
	}

	recovered, err := recoverer.AddressRecover(hash, sig.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !strings.EqualFold(recovered.Hex(), owner.Hex()) {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrSignatureMismatch, recovered.Hex(), owner.Hex())
	}
	if sig.Signer != (common.Address{}) && !strings.EqualFold(sig.Signer.Hex(), owner.Hex()) {
		return fmt.Errorf("%w: attributed to %s, expected %s", ErrSignatureMismatch, sig.Signer.Hex(), owner.Hex())
	}

	return nil
}
