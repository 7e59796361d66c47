package encryption

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	secp256k1N     = math.MustParseBig256("0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// ErrSignatureBounds is returned for an (r, s, v) triple outside the secp256k1 bounds.
var ErrSignatureBounds = errors.New("signature out of bounds")

// Signature is an ECDSA signature with v in {27, 28}.
type Signature struct {
	R *big.Int
	S *big.Int
	V uint64
}

// ParseSignature splits a 65 byte r || s || v signature. v may be given as 0/1 or 27/28.
func ParseSignature(b []byte) (Signature, error) {
	if len(b) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(b))
	}

	v := uint64(b[crypto.RecoveryIDOffset])
	if v < 27 {
		v += 27
	}

	return Signature{
		R: new(big.Int).SetBytes(b[:32]),
		S: new(big.Int).SetBytes(b[32:64]),
		V: v,
	}, nil
}

// Validate checks 0 < r, s < n and v in {27, 28}.
func (s Signature) Validate() error {
	switch {
	case s.R == nil || s.R.Sign() <= 0 || s.R.Cmp(secp256k1N) >= 0:
		return fmt.Errorf("%w: r", ErrSignatureBounds)
	case s.S == nil || s.S.Sign() <= 0 || s.S.Cmp(secp256k1N) >= 0:
		return fmt.Errorf("%w: s", ErrSignatureBounds)
	case s.V != 27 && s.V != 28:
		return fmt.Errorf("%w: v=%d", ErrSignatureBounds, s.V)
	}

	return nil
}

// Bytes returns r || s || v with v in {27, 28}. The signature must be valid.
func (s Signature) Bytes() []byte {
	b := s.recoverable()
	b[crypto.RecoveryIDOffset] += 27

	return b
}

// recoverable returns r || s || v with v in {0, 1}, the layout go-ethereum expects.
func (s Signature) recoverable() []byte {
	b := make([]byte, crypto.SignatureLength)
	s.R.FillBytes(b[:32])
	s.S.FillBytes(b[32:64])
	b[crypto.RecoveryIDOffset] = byte(s.V - 27)

	return b
}
