package bank

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

func decodeRLP(raw []byte, out interface{}) error {
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return fmt.Errorf("bank: decode account: %w", err)
	}
	return nil
}

// Transfer moves amount of free balance from one account to another. With
// keepAlive set the sender must retain at least the existential deposit;
// otherwise a sender left holding dust is reaped and the dust is burned.
func (l *Ledger) Transfer(from, to [20]byte, amount *uint256.Int, keepAlive bool) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	sender, err := l.Account(from)
	if err != nil {
		return err
	}
	if sender.Spendable().Lt(amount) {
		return ErrInsufficientBalance
	}
	remaining := new(uint256.Int).Sub(sender.Free, amount)
	dust := new(uint256.Int)
	if remaining.Lt(l.existential) {
		if keepAlive {
			return ErrKeepAlive
		}
		if len(sender.Locks) == 0 {
			dust.Set(remaining)
			remaining.Clear()
		}
	}

	recipient, err := l.Account(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(recipient.Free, amount)
	if overflow {
		return ErrOverflow
	}
	if credited.Lt(l.existential) {
		return ErrExistentialDeposit
	}

	sender.Free = remaining
	recipient.Free = credited
	if err := l.putAccount(from, sender); err != nil {
		return err
	}
	if err := l.putAccount(to, recipient); err != nil {
		return err
	}
	if dust.IsZero() {
		return nil
	}
	issuance, err := l.TotalIssuance()
	if err != nil {
		return err
	}
	if issuance.Lt(dust) {
		return fmt.Errorf("bank: %s issuance underflow", l.symbol)
	}
	return l.putIssuance(issuance.Sub(issuance, dust))
}

// Mint credits amount to account and grows total issuance.
func (l *Ledger) Mint(account [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	record, err := l.Account(account)
	if err != nil {
		return err
	}
	issuance, err := l.TotalIssuance()
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(record.Free, amount)
	if overflow {
		return ErrOverflow
	}
	grown, overflow := new(uint256.Int).AddOverflow(issuance, amount)
	if overflow {
		return ErrOverflow
	}
	if credited.Lt(l.existential) {
		return ErrExistentialDeposit
	}
	record.Free = credited
	if err := l.putAccount(account, record); err != nil {
		return err
	}
	return l.putIssuance(grown)
}

// Burn destroys amount of account's spendable balance and shrinks total
// issuance.
func (l *Ledger) Burn(account [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	record, err := l.Account(account)
	if err != nil {
		return err
	}
	if record.Spendable().Lt(amount) {
		return ErrInsufficientBalance
	}
	issuance, err := l.TotalIssuance()
	if err != nil {
		return err
	}
	if issuance.Lt(amount) {
		return fmt.Errorf("bank: %s issuance underflow", l.symbol)
	}
	record.Free = new(uint256.Int).Sub(record.Free, amount)
	if err := l.putAccount(account, record); err != nil {
		return err
	}
	return l.putIssuance(new(uint256.Int).Sub(issuance, amount))
}

// SetLock creates or replaces the named lock on account. A zero amount removes
// the lock. The lock may exceed the free balance.
func (l *Ledger) SetLock(id string, account [20]byte, amount *uint256.Int) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errEmptyLockID
	}
	if amount == nil || amount.IsZero() {
		return l.RemoveLock(id, account)
	}
	record, err := l.Account(account)
	if err != nil {
		return err
	}
	value := new(uint256.Int).Set(amount)
	for i := range record.Locks {
		if record.Locks[i].ID == id {
			record.Locks[i].Amount = value
			return l.putAccount(account, record)
		}
	}
	record.Locks = append(record.Locks, Lock{ID: id, Amount: value})
	return l.putAccount(account, record)
}

// RemoveLock drops the named lock from account. Removing an absent lock is a
// no-op.
func (l *Ledger) RemoveLock(id string, account [20]byte) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errEmptyLockID
	}
	record, err := l.Account(account)
	if err != nil {
		return err
	}
	kept := record.Locks[:0]
	removed := false
	for _, lock := range record.Locks {
		if lock.ID == id {
			removed = true
			continue
		}
		kept = append(kept, lock)
	}
	if !removed {
		return nil
	}
	record.Locks = kept
	return l.putAccount(account, record)
}

// LockOf returns the amount held by the named lock, zero when absent.
func (l *Ledger) LockOf(id string, account [20]byte) (*uint256.Int, error) {
	record, err := l.Account(account)
	if err != nil {
		return nil, err
	}
	for _, lock := range record.Locks {
		if lock.ID == id {
			return new(uint256.Int).Set(lock.Amount), nil
		}
	}
	return new(uint256.Int), nil
}

// Slash removes up to amount from account's free balance regardless of locks
// and returns how much was actually removed.
func (l *Ledger) Slash(account [20]byte, amount *uint256.Int) (*uint256.Int, error) {
	slashed := new(uint256.Int)
	if amount == nil || amount.IsZero() {
		return slashed, nil
	}
	record, err := l.Account(account)
	if err != nil {
		return nil, err
	}
	slashed.Set(amount)
	if record.Free.Lt(slashed) {
		slashed.Set(record.Free)
	}
	if slashed.IsZero() {
		return slashed, nil
	}
	issuance, err := l.TotalIssuance()
	if err != nil {
		return nil, err
	}
	if issuance.Lt(slashed) {
		return nil, fmt.Errorf("bank: %s issuance underflow", l.symbol)
	}
	record.Free = new(uint256.Int).Sub(record.Free, slashed)
	if err := l.putAccount(account, record); err != nil {
		return nil, err
	}
	if err := l.putIssuance(new(uint256.Int).Sub(issuance, slashed)); err != nil {
		return nil, err
	}
	return slashed, nil
}
