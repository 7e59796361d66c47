package relay

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/encryption"
)

var (
	ErrInvalidSignature = errors.New("invalid safe creation signature")
	ErrAddressMismatch  = errors.New("safe address does not match the creation transaction")
	ErrInvalidResponse  = errors.New("invalid safe creation response")
)

// ValidationError is a rejected safe creation response. It is never retried.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("safe creation response rejected: %s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ContractAddresser recovers the address of the contract a signed creation transaction
// deploys. *encryption.Service implements it.
type ContractAddresser interface {
	ContractAddress(sig encryption.Signature, tx encryption.UnsignedTransaction) (common.Address, error)
}

// ValidateSafeCreation accepts resp only when its s matches the requested one, the signature
// is within the secp256k1 bounds and the signed transaction deploys exactly resp.Safe.
func ValidateSafeCreation(enc ContractAddresser, req SafeCreationRequest, resp SafeCreationResponse) error {
	sig := resp.Signature

	if req.S == nil || sig.S == nil || sig.S.Cmp(req.S) != 0 {
		return &ValidationError{Reason: "s does not match the request", Err: ErrInvalidSignature}
	}
	if err := sig.Validate(); err != nil {
		return &ValidationError{Reason: err.Error(), Err: ErrInvalidSignature}
	}
	if resp.Safe == (common.Address{}) {
		return &ValidationError{Reason: "missing safe address", Err: ErrInvalidResponse}
	}
	if resp.PaymentToken != req.PaymentToken {
		return &ValidationError{
			Reason: fmt.Sprintf("payment token %s, requested %s", resp.PaymentToken.Hex(), req.PaymentToken.Hex()),
			Err:    ErrInvalidResponse,
		}
	}
	if resp.Payment == nil || resp.Payment.Sign() < 0 {
		return &ValidationError{Reason: "missing payment", Err: ErrInvalidResponse}
	}

	addr, err := enc.ContractAddress(sig, resp.Tx)
	if err != nil {
		return &ValidationError{Reason: err.Error(), Err: ErrInvalidSignature}
	}
	if addr != resp.Safe {
		return &ValidationError{
			Reason: fmt.Sprintf("recovered %s, claimed %s", addr.Hex(), resp.Safe.Hex()),
			Err:    ErrAddressMismatch,
		}
	}

	return nil
}
