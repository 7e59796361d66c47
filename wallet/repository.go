package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Repository persists wallets. Find returns ErrNotFound for unknown ids and
// SelectedWallet returns ErrNoSelectedWallet when nothing is selected.
type Repository interface {
	Save(ctx context.Context, w *Wallet) error
	Remove(ctx context.Context, id ID) error
	Find(ctx context.Context, id ID) (*Wallet, error)
	FindAll(ctx context.Context) ([]*Wallet, error)
	SelectedWallet(ctx context.Context) (*Wallet, error)
	Select(ctx context.Context, id ID) error
}

// AccountID identifies the balance of a wallet in one token. The zero token is ether.
type AccountID struct {
	WalletID ID
	Token    common.Address
}

// EtherAccountID returns the ether account of a wallet.
func EtherAccountID(id ID) AccountID {
	return AccountID{WalletID: id}
}

func (id AccountID) String() string {
	return string(id.WalletID) + "/" + id.Token.Hex()
}

// IsEther reports whether the account holds ether.
func (id AccountID) IsEther() bool {
	return id.Token == (common.Address{})
}

// Account is the last known balance of a wallet in a token.
type Account struct {
	ID      AccountID
	Balance *big.Int
}

// NewAccount returns an account with a zero balance.
func NewAccount(id AccountID) *Account {
	return &Account{ID: id, Balance: new(big.Int)}
}

// Update sets the balance to a copy of balance.
func (a *Account) Update(balance *big.Int) {
	if balance == nil {
		balance = new(big.Int)
	}
	a.Balance = new(big.Int).Set(balance)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := &Account{ID: a.ID, Balance: new(big.Int)}
	if a.Balance != nil {
		c.Balance.Set(a.Balance)
	}

	return c
}

// AccountRepository persists accounts. Find returns ErrAccountNotFound for unknown ids.
type AccountRepository interface {
	Find(ctx context.Context, id AccountID) (*Account, error)
	Save(ctx context.Context, account *Account) error
}
