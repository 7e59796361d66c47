package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/safe-wallet-framework/encryption"
)

// signedCreation returns a request and the matching response of a relay that signed the
// creation transaction with a fresh key.
func signedCreation(t *testing.T) (SafeCreationRequest, SafeCreationResponse) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	unsigned := encryption.UnsignedTransaction{
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      500_000,
		Value:    big.NewInt(0),
		Data:     common.FromHex("0x6080604052"),
	}
	signed, err := types.SignTx(types.NewTx(&types.LegacyTx{
		GasPrice: unsigned.GasPrice,
		Gas:      unsigned.Gas,
		Value:    unsigned.Value,
		Data:     unsigned.Data,
	}), types.HomesteadSigner{}, key)
	require.NoError(t, err)
	v, r, s := signed.RawSignatureValues()

	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	req := SafeCreationRequest{
		Owners:       []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		Threshold:    1,
		S:            new(big.Int).Set(s),
		PaymentToken: token,
	}
	resp := SafeCreationResponse{
		Signature:    encryption.Signature{R: r, S: s, V: v.Uint64()},
		Tx:           unsigned,
		Safe:         crypto.CreateAddress(crypto.PubkeyToAddress(key.PublicKey), 0),
		Payment:      big.NewInt(1_000),
		PaymentToken: token,
	}

	return req, resp
}

func TestValidateSafeCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(req *SafeCreationRequest, resp *SafeCreationResponse)
		wantErr error
	}{
		{
			name:   "valid response",
			mutate: func(*SafeCreationRequest, *SafeCreationResponse) {},
		},
		{
			name: "s differs from request",
			mutate: func(req *SafeCreationRequest, _ *SafeCreationResponse) {
				req.S = new(big.Int).Add(req.S, big.NewInt(1))
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "v out of range",
			mutate: func(_ *SafeCreationRequest, resp *SafeCreationResponse) {
				resp.Signature.V = 300
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "r zero",
			mutate: func(_ *SafeCreationRequest, resp *SafeCreationResponse) {
				resp.Signature.R = new(big.Int)
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "claimed safe differs",
			mutate: func(_ *SafeCreationRequest, resp *SafeCreationResponse) {
				resp.Safe = common.HexToAddress("0x00000000000000000000000000000000000000bb")
			},
			wantErr: ErrAddressMismatch,
		},
		{
			name: "payment token differs",
			mutate: func(_ *SafeCreationRequest, resp *SafeCreationResponse) {
				resp.PaymentToken = common.Address{}
			},
			wantErr: ErrInvalidResponse,
		},
		{
			name: "missing payment",
			mutate: func(_ *SafeCreationRequest, resp *SafeCreationResponse) {
				resp.Payment = nil
			},
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, resp := signedCreation(t)
			tt.mutate(&req, &resp)

			err := ValidateSafeCreation(encryption.New(), req, resp)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}
