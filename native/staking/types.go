package staking

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrNotStash is returned when an account has no bonding ledger.
	ErrNotStash = errors.New("staking: not a stash")
	// ErrAlreadyBonded is returned when a stash bonds twice.
	ErrAlreadyBonded = errors.New("staking: stash already bonded")
	// ErrAlreadyPaired is returned when a controller already controls a stash.
	ErrAlreadyPaired = errors.New("staking: controller already paired")
	// ErrInsufficientBond is returned when a bond is below the minimum.
	ErrInsufficientBond = errors.New("staking: bond below minimum")
	// ErrNoMoreChunks is returned when a stash already has the maximum number
	// of unlocking chunks.
	ErrNoMoreChunks = errors.New("staking: too many unlocking chunks")
	// ErrEmptyTargets is returned by Nominate without any target.
	ErrEmptyTargets = errors.New("staking: empty nomination targets")
	// ErrTooManyTargets is returned by Nominate above MaxNominations.
	ErrTooManyTargets = errors.New("staking: too many nomination targets")
	// ErrNotValidator is returned when a nomination target is not a registered
	// validator.
	ErrNotValidator = errors.New("staking: target is not a validator")

	errNilState = errors.New("staking: state not configured")
)

// UnlockChunk is a slice of stake that becomes withdrawable at Era.
type UnlockChunk struct {
	Era   uint64
	Value *uint256.Int
}

// Ledger is the bonding record of one stash.
type Ledger struct {
	Stash      [20]byte
	Controller [20]byte
	Payee      [20]byte
	Active     *uint256.Int
	Unlocking  []UnlockChunk
}

func (l *Ledger) normalize() {
	if l.Active == nil {
		l.Active = new(uint256.Int)
	}
	for i := range l.Unlocking {
		if l.Unlocking[i].Value == nil {
			l.Unlocking[i].Value = new(uint256.Int)
		}
	}
}

// Total returns the active bond plus everything still unlocking.
func (l *Ledger) Total() (*uint256.Int, error) {
	total := new(uint256.Int).Set(l.Active)
	for _, chunk := range l.Unlocking {
		if _, overflow := total.AddOverflow(total, chunk.Value); overflow {
			return nil, fmt.Errorf("staking: ledger total overflow for %x", l.Stash)
		}
	}
	return total, nil
}

// Nominations records the targets a stash backs and the era they were set.
type Nominations struct {
	Targets     [][20]byte
	SubmittedIn uint64
}

// EraInfo is the era clock record.
type EraInfo struct {
	Index      uint64
	StartBlock uint64
}
