package liquidstake

import "github.com/holiman/uint256"

// MintAmount returns the derivative units owed for deposit given the stash's
// total base balance and the derivative supply. An empty stash mints 1:1.
func MintAmount(deposit, stashBalance, derivativeIssuance *uint256.Int) (*uint256.Int, error) {
	if deposit == nil {
		return nil, ErrInvalidAmount
	}
	issuance := derivativeIssuance
	if issuance == nil {
		issuance = new(uint256.Int)
	}
	product, overflow := new(uint256.Int).MulOverflow(issuance, deposit)
	if overflow {
		return nil, ErrExceededMaxStake
	}
	if stashBalance == nil || stashBalance.IsZero() {
		return new(uint256.Int).Set(deposit), nil
	}
	return product.Div(product, stashBalance), nil
}

// RedemptionValue converts derivative units into base asset at the current
// share price. outstanding is the derivative supply the stash backs.
func RedemptionValue(units, stashBalance, outstanding *uint256.Int) (*uint256.Int, error) {
	if units == nil || stashBalance == nil || outstanding == nil || outstanding.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(units, stashBalance)
	if overflow {
		return nil, ErrPayoutOverflow
	}
	return product.Div(product, outstanding), nil
}
