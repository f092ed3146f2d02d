package escrow

import (
	"errors"

	"github.com/adgram/adgram/platforms/ton"
	"github.com/google/uuid"
)

var (
	ErrFunding = errors.New("escrow funding transfer failed")
	ErrNoFunds = errors.New("advertiser wallet has no secret on file")
)

// Chain is the slice of the chain gateway the escrow flow needs.
type Chain interface {
	CreateWallet() (*ton.Wallet, error)
	Balance(address string) (float64, error)
	Transfer(mnemonic, to string, amount float64) (string, error)
}

// Secrets is the mnemonic vault interface.
type Secrets interface {
	Put(id, value string) error
	Get(id string) (string, error)
}

// Escrow is the disposable per-ad wallet holding the advertiser's funds.
type Escrow struct {
	Address  string
	SecretId string
}

// Cost derives the funding amounts: the advertiser's single transfer
// covers the spendable budget plus the platform's cut.
func Cost(budget float64, duration int, feeRate float64) (totalCost, totalFee float64) {
	base := budget * float64(duration)
	return base * (1 + feeRate), base * feeRate
}

// Fund stands up a fresh escrow wallet and moves totalCost into it from
// the advertiser's wallet. The new mnemonic goes to the vault before the
// transfer so a crash in between leaves a recoverable (if orphaned)
// wallet rather than a funded one nobody can sign for.
func Fund(chain Chain, sec Secrets, advSecretId string, totalCost float64) (*Escrow, error) {
	if advSecretId == "" {
		return nil, ErrNoFunds
	}

	advMnemonic, err := sec.Get(advSecretId)
	if err != nil {
		return nil, err
	}

	w, err := chain.CreateWallet()
	if err != nil {
		return nil, err
	}

	secretId := uuid.NewString()
	if err := sec.Put(secretId, w.Mnemonic); err != nil {
		return nil, err
	}

	if _, err := chain.Transfer(advMnemonic, w.Address, totalCost); err != nil {
		return nil, err
	}

	return &Escrow{Address: w.Address, SecretId: secretId}, nil
}
