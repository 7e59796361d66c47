package transaction

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// Repository persists transactions. Lookups return ErrNotFound when nothing matches.
type Repository interface {
	Save(ctx context.Context, tx *Transaction) error
	Remove(ctx context.Context, id ID) error
	Find(ctx context.Context, id ID) (*Transaction, error)
	FindByHash(ctx context.Context, hash common.Hash) (*Transaction, error)
	// FindByWalletAndType returns the most recently created transaction of the given type
	// that has not been discarded.
	FindByWalletAndType(ctx context.Context, walletID wallet.ID, txType Type) (*Transaction, error)
	NextID(ctx context.Context) (ID, error)
}
