// Package wallet simulates the token chain the game pays through: entry
// fees, reward payouts and the daily bonus, against Solana-style accounts.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrWrongWallet         = errors.New("wrong wallet adapter")
	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionFailed   = errors.New("transaction failed due to network congestion")
	ErrDailyClaimed        = errors.New("daily bonus already claimed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
)

// Wallet is a connected player account.
type Wallet struct {
	Address   solana.PublicKey
	Adapter   string
	Connected bool
}

// Connect parses a base58 address. An empty address yields a disconnected
// wallet rather than an error so callers can surface ErrWalletNotConnected.
func Connect(address, adapter string) (Wallet, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Wallet{Adapter: adapter}, nil
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Wallet{Address: pk, Adapter: strings.TrimSpace(adapter), Connected: true}, nil
}

func (w Wallet) String() string {
	if !w.Connected {
		return "<disconnected>"
	}
	return w.Address.String()
}

// verify checks the connection and, when required is set, the adapter name.
func (w Wallet) verify(required string) error {
	if !w.Connected || w.Address == (solana.PublicKey{}) {
		return ErrWalletNotConnected
	}
	if required != "" && !strings.EqualFold(w.Adapter, required) {
		return fmt.Errorf("%w: connect using %s", ErrWrongWallet, required)
	}
	return nil
}
