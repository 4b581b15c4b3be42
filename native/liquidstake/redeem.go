package liquidstake

import (
	"fmt"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// RedeemStake burns amount of the caller's derivative and records a claim
// payable once the backend's bonding duration has passed. The base-asset
// value of the claim is unbonded from the stash on a best-effort basis.
func (e *Engine) RedeemStake(caller [20]byte, amount *uint256.Int) error {
	return e.atomic(func() error {
		if amount == nil || amount.IsZero() {
			return ErrInsufficientFundsForRedemption
		}
		spendable, err := e.derivative.SpendableBalance(caller)
		if err != nil {
			return err
		}
		if amount.Gt(spendable) {
			return ErrInsufficientFundsForRedemption
		}
		era, err := e.backend.CurrentEra()
		if err != nil {
			return err
		}
		availability := era + e.backend.BondingDuration()
		if availability < era {
			return ErrRedemptionOverflow
		}
		height, err := e.height()
		if err != nil {
			return err
		}

		record, err := e.redemptions(caller)
		if err != nil {
			return err
		}
		if err := e.expireRedemptions(caller, record, era, height); err != nil {
			return err
		}
		if idx := record.find(availability); idx >= 0 {
			sum, overflow := new(uint256.Int).AddOverflow(record.Buckets[idx].Units, amount)
			if overflow {
				return ErrRedemptionOverflow
			}
			record.Buckets[idx].Units = sum
		} else {
			if len(record.Buckets) >= e.params.WithdrawalBound {
				return ErrTooManyRedemptionsAwaitingWithdrawal
			}
			record.insert(RedemptionBucket{Era: availability, Units: new(uint256.Int).Set(amount)})
		}

		stashBalance, err := e.base.TotalBalance(e.stash)
		if err != nil {
			return err
		}
		supply, err := e.outstandingSupply()
		if err != nil {
			return err
		}
		value, err := RedemptionValue(amount, stashBalance, supply)
		if err != nil {
			return err
		}

		pending, err := e.pendingUnits()
		if err != nil {
			return err
		}
		grown, overflow := new(uint256.Int).AddOverflow(pending, amount)
		if overflow {
			return ErrRedemptionOverflow
		}
		if err := e.derivative.Burn(caller, amount); err != nil {
			return err
		}
		if err := e.putAmount(pendingKey, grown); err != nil {
			return err
		}
		if err := e.putRedemptions(caller, record); err != nil {
			return err
		}
		if err := e.unbondValue(value, height); err != nil {
			return err
		}
		e.emit(events.DerivativeRedeemed{Height: height, Account: caller, Amount: amount, Era: availability})
		return nil
	})
}

// unbondValue asks the backend to start unlocking value. Backend refusals
// become unbondFailed events.
func (e *Engine) unbondValue(value *uint256.Int, height uint64) error {
	if value == nil || value.IsZero() {
		return nil
	}
	staker, err := e.isStaker()
	if err != nil {
		return err
	}
	if !staker {
		return nil
	}
	if callErr := e.soft(func() error { return e.backend.Unbond(e.stash, value) }); callErr != nil {
		e.emit(events.StakingCallFailed{
			Height: height,
			Kind:   events.TypeUnbondFailed,
			Stash:  e.stash,
			Amount: value,
			Reason: callErr.Error(),
		})
	}
	return nil
}

// expireRedemptions forfeits buckets left unclaimed for more than
// RedemptionExpiryEras after maturing. Forfeited units leave the pending
// total, so their value accrues to the remaining holders.
func (e *Engine) expireRedemptions(account [20]byte, record *redemptionRecord, era, height uint64) error {
	expiry := e.params.RedemptionExpiryEras
	if expiry == 0 || len(record.Buckets) == 0 {
		return nil
	}
	forfeited := new(uint256.Int)
	kept := record.Buckets[:0]
	var expired []RedemptionBucket
	for _, bucket := range record.Buckets {
		deadline := bucket.Era + expiry
		if deadline >= bucket.Era && deadline < era {
			forfeited.Add(forfeited, bucket.Units)
			expired = append(expired, bucket)
			continue
		}
		kept = append(kept, bucket)
	}
	if len(expired) == 0 {
		return nil
	}
	record.Buckets = kept
	pending, err := e.pendingUnits()
	if err != nil {
		return err
	}
	if pending.Lt(forfeited) {
		return fmt.Errorf("liquidstake: pending redemptions underflow")
	}
	if err := e.putAmount(pendingKey, new(uint256.Int).Sub(pending, forfeited)); err != nil {
		return err
	}
	if err := e.putRedemptions(account, record); err != nil {
		return err
	}
	for _, bucket := range expired {
		e.emit(events.RedemptionExpired{Height: height, Account: account, Units: bucket.Units, Era: bucket.Era})
	}
	return nil
}
