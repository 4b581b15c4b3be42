package liquidstake

import "errors"

// Error is a pool rejection with a stable numeric code. Callers branch on it
// with errors.Is against the exported sentinels or read Code through
// CodeOf.
type Error struct {
	Code    uint16
	Message string
}

func (e *Error) Error() string { return "liquidstake: " + e.Message }

var (
	ErrInsufficientStake                    = &Error{Code: 1, Message: "stake must exceed the minimum"}
	ErrExceededMaxStake                     = &Error{Code: 2, Message: "mint computation overflows"}
	ErrInsufficientFundsForRedemption       = &Error{Code: 3, Message: "insufficient derivative balance for redemption"}
	ErrTooManyRedemptionsAwaitingWithdrawal = &Error{Code: 4, Message: "too many redemptions awaiting withdrawal"}
	ErrVoteUnauthorized                     = &Error{Code: 5, Message: "voting is not open for this account"}
	ErrVoteQuantityInvalid                  = &Error{Code: 6, Message: "vote weight exceeds free derivative balance"}
	ErrValidatorVoteQuantityInvalid         = &Error{Code: 7, Message: "validator tally overflows"}
	ErrNoSuchValidator                      = &Error{Code: 8, Message: "nominee is not a validator"}
	ErrRedemptionOverflow                   = &Error{Code: 9, Message: "redemption amount overflows"}
	ErrEmptySlate                           = &Error{Code: 10, Message: "nomination slate is empty"}
	ErrTooManyNominees                      = &Error{Code: 11, Message: "nomination slate exceeds the nominee bound"}
	ErrDuplicateNominee                     = &Error{Code: 12, Message: "nomination slate names a validator twice"}
	ErrNoSuchRedemption                     = &Error{Code: 13, Message: "no redemption for era"}
	ErrRedemptionNotYetAvailable            = &Error{Code: 14, Message: "redemption era not reached"}
	ErrInsufficientPoolLiquidity            = &Error{Code: 15, Message: "pool stash lacks unlocked funds for payout"}
	ErrPayoutOverflow                       = &Error{Code: 16, Message: "payout computation overflows"}
	ErrAccountCollision                     = &Error{Code: 17, Message: "stash and controller accounts collide"}
	ErrInvalidAmount                        = &Error{Code: 18, Message: "amount must be positive"}
)

// Errors lists every pool rejection in code order.
func Errors() []*Error {
	return []*Error{
		ErrInsufficientStake,
		ErrExceededMaxStake,
		ErrInsufficientFundsForRedemption,
		ErrTooManyRedemptionsAwaitingWithdrawal,
		ErrVoteUnauthorized,
		ErrVoteQuantityInvalid,
		ErrValidatorVoteQuantityInvalid,
		ErrNoSuchValidator,
		ErrRedemptionOverflow,
		ErrEmptySlate,
		ErrTooManyNominees,
		ErrDuplicateNominee,
		ErrNoSuchRedemption,
		ErrRedemptionNotYetAvailable,
		ErrInsufficientPoolLiquidity,
		ErrPayoutOverflow,
		ErrAccountCollision,
		ErrInvalidAmount,
	}
}

// CodeOf extracts the pool error code from err.
func CodeOf(err error) (uint16, bool) {
	var poolErr *Error
	if errors.As(err, &poolErr) {
		return poolErr.Code, true
	}
	return 0, false
}

var (
	errNilState    = errors.New("liquidstake engine: state not configured")
	errNilLedger   = errors.New("liquidstake engine: ledgers not configured")
	errNilBackend  = errors.New("liquidstake engine: staking backend not configured")
	errEmptySeed   = errors.New("liquidstake engine: account seeds required")
	errTallyTotals = errors.New("liquidstake engine: tally total overflows")
)
