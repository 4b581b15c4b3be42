package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when the spendable balance cannot
	// cover a debit.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrKeepAlive is returned when a keep-alive transfer would leave the
	// sender below the existential deposit.
	ErrKeepAlive = errors.New("bank: transfer would reap sender")
	// ErrExistentialDeposit is returned when a credit would create an account
	// holding less than the existential deposit.
	ErrExistentialDeposit = errors.New("bank: balance below existential deposit")
	// ErrOverflow is returned when a credit would exceed the amount range.
	ErrOverflow = errors.New("bank: balance overflow")

	errNilState    = errors.New("bank: state not configured")
	errEmptySymbol = errors.New("bank: symbol required")
	errEmptyLockID = errors.New("bank: lock id required")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVIterate(prefix []byte, fn func(key, raw []byte) bool) error
}

// Lock restricts how much of an account's free balance can be moved.
// Overlapping locks do not stack: the effective restriction is the largest.
type Lock struct {
	ID     string
	Amount *uint256.Int
}

// Account is the stored balance record for one holder of one asset.
type Account struct {
	Free  *uint256.Int
	Locks []Lock
}

func (a *Account) normalize() {
	if a.Free == nil {
		a.Free = new(uint256.Int)
	}
	for i := range a.Locks {
		if a.Locks[i].Amount == nil {
			a.Locks[i].Amount = new(uint256.Int)
		}
	}
}

// Frozen returns the effective lock, the maximum over all named locks.
func (a *Account) Frozen() *uint256.Int {
	frozen := new(uint256.Int)
	for _, lock := range a.Locks {
		if lock.Amount != nil && lock.Amount.Gt(frozen) {
			frozen.Set(lock.Amount)
		}
	}
	return frozen
}

// Spendable returns the free balance not covered by a lock.
func (a *Account) Spendable() *uint256.Int {
	frozen := a.Frozen()
	if frozen.Cmp(a.Free) >= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a.Free, frozen)
}

func (a *Account) empty() bool {
	return a.Free.IsZero() && len(a.Locks) == 0
}

// Ledger tracks balances, locks and total issuance of a single asset. The pool
// runs two of them on the same state: the base asset and the derivative.
type Ledger struct {
	state       ledgerState
	symbol      string
	existential *uint256.Int
}

// NewLedger returns a ledger for symbol. Accounts whose free balance would
// fall below existentialDeposit are rejected on credit and reaped on debit.
func NewLedger(state ledgerState, symbol string, existentialDeposit *uint256.Int) (*Ledger, error) {
	if state == nil {
		return nil, errNilState
	}
	trimmed := strings.ToLower(strings.TrimSpace(symbol))
	if trimmed == "" {
		return nil, errEmptySymbol
	}
	ed := new(uint256.Int)
	if existentialDeposit != nil {
		ed.Set(existentialDeposit)
	}
	return &Ledger{state: state, symbol: trimmed, existential: ed}, nil
}

// Symbol returns the asset symbol the ledger was created for.
func (l *Ledger) Symbol() string { return l.symbol }

// MinimumBalance returns the existential deposit.
func (l *Ledger) MinimumBalance() *uint256.Int { return new(uint256.Int).Set(l.existential) }

func (l *Ledger) accountPrefix() []byte {
	return []byte(fmt.Sprintf("bank/%s/account/", l.symbol))
}

func (l *Ledger) accountKey(account [20]byte) []byte {
	return append(l.accountPrefix(), hex.EncodeToString(account[:])...)
}

func (l *Ledger) issuanceKey() []byte {
	return []byte(fmt.Sprintf("bank/%s/issuance", l.symbol))
}

// Account loads the balance record for account. Unknown accounts return an
// empty record.
func (l *Ledger) Account(account [20]byte) (*Account, error) {
	var stored Account
	if _, err := l.state.KVGet(l.accountKey(account), &stored); err != nil {
		return nil, fmt.Errorf("bank: load %s account: %w", l.symbol, err)
	}
	stored.normalize()
	return &stored, nil
}

func (l *Ledger) putAccount(account [20]byte, record *Account) error {
	if record.empty() {
		return l.state.KVDelete(l.accountKey(account))
	}
	return l.state.KVPut(l.accountKey(account), record)
}

// FreeBalance returns the free balance of account, locked funds included.
func (l *Ledger) FreeBalance(account [20]byte) (*uint256.Int, error) {
	record, err := l.Account(account)
	if err != nil {
		return nil, err
	}
	return record.Free, nil
}

// TotalBalance returns everything the account holds. The ledger has no
// reserved balances, so this equals the free balance.
func (l *Ledger) TotalBalance(account [20]byte) (*uint256.Int, error) {
	return l.FreeBalance(account)
}

// SpendableBalance returns the free balance minus the effective lock.
func (l *Ledger) SpendableBalance(account [20]byte) (*uint256.Int, error) {
	record, err := l.Account(account)
	if err != nil {
		return nil, err
	}
	return record.Spendable(), nil
}

// TotalIssuance returns the sum of every free balance.
func (l *Ledger) TotalIssuance() (*uint256.Int, error) {
	issuance := new(uint256.Int)
	if _, err := l.state.KVGet(l.issuanceKey(), issuance); err != nil {
		return nil, fmt.Errorf("bank: load %s issuance: %w", l.symbol, err)
	}
	return issuance, nil
}

func (l *Ledger) putIssuance(value *uint256.Int) error {
	return l.state.KVPut(l.issuanceKey(), value)
}

// Holders visits every account with a stored balance in ascending address
// order.
func (l *Ledger) Holders(fn func(account [20]byte, record *Account) bool) error {
	prefix := l.accountPrefix()
	var decodeErr error
	err := l.state.KVIterate(prefix, func(key, raw []byte) bool {
		var addr [20]byte
		decoded, err := hex.DecodeString(string(key[len(prefix):]))
		if err != nil || len(decoded) != len(addr) {
			decodeErr = fmt.Errorf("bank: malformed account key %q", key)
			return false
		}
		copy(addr[:], decoded)
		var record Account
		if err := decodeRLP(raw, &record); err != nil {
			decodeErr = err
			return false
		}
		record.normalize()
		return fn(addr, &record)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
