package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeProxy_SetupRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		give SetupArgs
	}{
		{
			name: "single owner without payment",
			give: SetupArgs{
				Owners:          []common.Address{ownerA},
				Threshold:       big.NewInt(1),
				To:              common.Address{},
				Data:            []byte{},
				FallbackHandler: common.Address{},
				PaymentToken:    common.Address{},
				Payment:         big.NewInt(0),
				PaymentReceiver: common.Address{},
			},
		},
		{
			name: "four owners paying in a token",
			give: SetupArgs{
				Owners:          []common.Address{ownerA, ownerB, ownerC, ownerD},
				Threshold:       big.NewInt(2),
				To:              ownerD,
				Data:            []byte{0xde, 0xad, 0xbe, 0xef, 0x01},
				FallbackHandler: ownerC,
				PaymentToken:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
				Payment:         big.NewInt(1_000_000_000_000_000),
				PaymentReceiver: ownerB,
			},
		},
	}

	p := NewSafeProxy(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := p.DecodeSetup(p.Setup(tt.give))
			require.NoError(t, err)

			assert.Zero(t, tt.give.Threshold.Cmp(got.Threshold))
			assert.Zero(t, tt.give.Payment.Cmp(got.Payment))
			want := tt.give
			want.Threshold, want.Payment = nil, nil
			got.Threshold, got.Payment = nil, nil
			assert.Equal(t, want, got)
		})
	}
}

func TestSafeProxy_ExecTransactionRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewSafeProxy(nil)
	give := ExecTransactionArgs{
		To:             ownerA,
		Value:          big.NewInt(5),
		Data:           NewOwnerManagerProxy(nil).ChangeThreshold(big.NewInt(2)),
		Operation:      DelegateCall,
		SafeTxGas:      big.NewInt(50_000),
		BaseGas:        big.NewInt(21_000),
		GasPrice:       big.NewInt(1_000_000_000),
		GasToken:       common.Address{},
		RefundReceiver: ownerB,
		Signatures:     make([]byte, 130),
	}

	data := p.ExecTransaction(give)
	assert.Equal(t, p.Selector(sigExecTransaction), data[:4])

	got, err := p.DecodeExecTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, give, got)
}

func TestSafeProxy_RequiredTxGas(t *testing.T) {
	t.Parallel()

	p := NewSafeProxy(nil)
	give := RequiredTxGasArgs{To: ownerC, Value: big.NewInt(3), Data: []byte{0x01}, Operation: Call}

	got, err := p.DecodeRequiredTxGas(p.RequiredTxGas(give))
	require.NoError(t, err)
	assert.Equal(t, give, got)

	packed, err := uint256Result.Pack(big.NewInt(36_000))
	require.NoError(t, err)
	gas, err := p.DecodeRequiredTxGasResult(packed)
	require.NoError(t, err)
	assert.Equal(t, int64(36_000), gas.Int64())
}

func TestSafeProxy_TransactionHash(t *testing.T) {
	t.Parallel()

	p := NewSafeProxy(nil)
	tx := SafeTx{
		Safe:      ownerD,
		To:        ownerA,
		Value:     big.NewInt(1),
		Data:      []byte{},
		Operation: Call,
		Nonce:     big.NewInt(0),
	}

	hash := p.TransactionHash(tx)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, hash, p.TransactionHash(tx))

	other := tx
	other.Nonce = big.NewInt(1)
	assert.NotEqual(t, hash, p.TransactionHash(other))

	other = tx
	other.Safe = ownerC
	assert.NotEqual(t, hash, p.TransactionHash(other))
}
