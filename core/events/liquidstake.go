package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"liquidstake/core/types"
	"liquidstake/crypto"
)

const (
	// TypeStakeAdded is emitted when a deposit is accepted and derivative minted.
	TypeStakeAdded = "liquidstake.stakeAdded"
	// TypeDerivativeRedeemed is emitted when derivative is burned for a deferred payout.
	TypeDerivativeRedeemed = "liquidstake.derivativeRedeemed"
	// TypeStakeReleased is emitted when a matured redemption is paid out.
	TypeStakeReleased = "liquidstake.stakeReleased"
	// TypeRedemptionExpired is emitted when an unclaimed redemption bucket is forfeited.
	TypeRedemptionExpired = "liquidstake.redemptionExpired"
	// TypeBondFailed signals that the staking backend refused to bond pooled funds.
	TypeBondFailed = "liquidstake.bondFailed"
	// TypeUnbondFailed signals that the staking backend refused to unbond pooled funds.
	TypeUnbondFailed = "liquidstake.unbondFailed"
	// TypeWithdrawUnbondedFailed signals that matured stake could not be released.
	TypeWithdrawUnbondedFailed = "liquidstake.withdrawUnbondedFailed"
	// TypeNominationSubmitted is emitted for every accepted nomination slate.
	TypeNominationSubmitted = "liquidstake.nominationSubmitted"
	// TypeVotingWindowOpened marks the first block of an era's voting window.
	TypeVotingWindowOpened = "liquidstake.votingWindowOpened"
	// TypeVotingWindowClosed marks the window-close transition.
	TypeVotingWindowClosed = "liquidstake.votingWindowClosed"
	// TypeQuorumNotReached is emitted when the previous nominations are retained.
	TypeQuorumNotReached = "liquidstake.quorumNotReached"
	// TypeNominationsApplied is emitted when the backend accepted a new nomination set.
	TypeNominationsApplied = "liquidstake.nominationsApplied"
	// TypeNominationFailed signals that the backend rejected the tallied set.
	TypeNominationFailed = "liquidstake.nominationFailed"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// StakeAdded captures a deposit into the pool.
type StakeAdded struct {
	Height  uint64
	Account [20]byte
	Amount  *uint256.Int
	Minted  *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeAdded) EventType() string { return TypeStakeAdded }

// Event converts the structured payload into a broadcastable event.
func (e StakeAdded) Event() *types.Event {
	return &types.Event{Type: TypeStakeAdded, Height: e.Height, Attributes: map[string]string{
		"account": crypto.FormatAccount(e.Account),
		"amount":  formatAmount(e.Amount),
		"minted":  formatAmount(e.Minted),
	}}
}

// DerivativeRedeemed captures a burn that creates a pending redemption.
type DerivativeRedeemed struct {
	Height  uint64
	Account [20]byte
	Amount  *uint256.Int
	Era     uint64
}

// EventType satisfies the Event interface.
func (DerivativeRedeemed) EventType() string { return TypeDerivativeRedeemed }

// Event converts the structured payload into a broadcastable event.
func (e DerivativeRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeDerivativeRedeemed, Height: e.Height, Attributes: map[string]string{
		"account": crypto.FormatAccount(e.Account),
		"amount":  formatAmount(e.Amount),
		"era":     formatUint(e.Era),
	}}
}

// StakeReleased captures a withdrawal payout.
type StakeReleased struct {
	Height  uint64
	Account [20]byte
	Units   *uint256.Int
	Payout  *uint256.Int
	Era     uint64
}

// EventType satisfies the Event interface.
func (StakeReleased) EventType() string { return TypeStakeReleased }

// Event converts the structured payload into a broadcastable event.
func (e StakeReleased) Event() *types.Event {
	return &types.Event{Type: TypeStakeReleased, Height: e.Height, Attributes: map[string]string{
		"account": crypto.FormatAccount(e.Account),
		"units":   formatAmount(e.Units),
		"payout":  formatAmount(e.Payout),
		"era":     formatUint(e.Era),
	}}
}

// RedemptionExpired captures a forfeited redemption bucket.
type RedemptionExpired struct {
	Height  uint64
	Account [20]byte
	Units   *uint256.Int
	Era     uint64
}

// EventType satisfies the Event interface.
func (RedemptionExpired) EventType() string { return TypeRedemptionExpired }

// Event converts the structured payload into a broadcastable event.
func (e RedemptionExpired) Event() *types.Event {
	return &types.Event{Type: TypeRedemptionExpired, Height: e.Height, Attributes: map[string]string{
		"account": crypto.FormatAccount(e.Account),
		"units":   formatAmount(e.Units),
		"era":     formatUint(e.Era),
	}}
}

// StakingCallFailed captures a soft failure of a bond or unbond call. The
// user-facing operation that triggered it still succeeded.
type StakingCallFailed struct {
	Height uint64
	Kind   string
	Stash  [20]byte
	Amount *uint256.Int
	Reason string
}

// EventType satisfies the Event interface.
func (e StakingCallFailed) EventType() string { return e.Kind }

// Event converts the structured payload into a broadcastable event.
func (e StakingCallFailed) Event() *types.Event {
	attrs := map[string]string{
		"stash":  crypto.FormatAccount(e.Stash),
		"amount": formatAmount(e.Amount),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: e.Kind, Height: e.Height, Attributes: attrs}
}

// NominationSubmitted captures an accepted nomination slate.
type NominationSubmitted struct {
	Height   uint64
	Account  [20]byte
	Weight   *uint256.Int
	Locked   *uint256.Int
	Nominees int
}

// EventType satisfies the Event interface.
func (NominationSubmitted) EventType() string { return TypeNominationSubmitted }

// Event converts the structured payload into a broadcastable event.
func (e NominationSubmitted) Event() *types.Event {
	return &types.Event{Type: TypeNominationSubmitted, Height: e.Height, Attributes: map[string]string{
		"account":  crypto.FormatAccount(e.Account),
		"weight":   formatAmount(e.Weight),
		"locked":   formatAmount(e.Locked),
		"nominees": strconv.Itoa(e.Nominees),
	}}
}

// VotingWindowOpened marks an era rollover.
type VotingWindowOpened struct {
	Height     uint64
	Era        uint64
	StartBlock uint64
	EndBlock   uint64
}

// EventType satisfies the Event interface.
func (VotingWindowOpened) EventType() string { return TypeVotingWindowOpened }

// Event converts the structured payload into a broadcastable event.
func (e VotingWindowOpened) Event() *types.Event {
	return &types.Event{Type: TypeVotingWindowOpened, Height: e.Height, Attributes: map[string]string{
		"era":        formatUint(e.Era),
		"startBlock": formatUint(e.StartBlock),
		"endBlock":   formatUint(e.EndBlock),
	}}
}

// VotingWindowClosed summarises a finished voting window.
type VotingWindowClosed struct {
	Height     uint64
	Era        uint64
	TotalVotes *uint256.Int
	Issuance   *uint256.Int
	Voters     int
	QuorumMet  bool
}

// EventType satisfies the Event interface.
func (VotingWindowClosed) EventType() string { return TypeVotingWindowClosed }

// Event converts the structured payload into a broadcastable event.
func (e VotingWindowClosed) Event() *types.Event {
	return &types.Event{Type: TypeVotingWindowClosed, Height: e.Height, Attributes: map[string]string{
		"era":        formatUint(e.Era),
		"totalVotes": formatAmount(e.TotalVotes),
		"issuance":   formatAmount(e.Issuance),
		"voters":     strconv.Itoa(e.Voters),
		"quorumMet":  strconv.FormatBool(e.QuorumMet),
	}}
}

// QuorumNotReached records that the previous nominations were kept.
type QuorumNotReached struct {
	Height     uint64
	Era        uint64
	TotalVotes *uint256.Int
	Required   *uint256.Int
}

// EventType satisfies the Event interface.
func (QuorumNotReached) EventType() string { return TypeQuorumNotReached }

// Event converts the structured payload into a broadcastable event.
func (e QuorumNotReached) Event() *types.Event {
	return &types.Event{Type: TypeQuorumNotReached, Height: e.Height, Attributes: map[string]string{
		"era":        formatUint(e.Era),
		"totalVotes": formatAmount(e.TotalVotes),
		"required":   formatAmount(e.Required),
	}}
}

// NominationsApplied lists the validators the pool now nominates.
type NominationsApplied struct {
	Height     uint64
	Era        uint64
	Validators [][20]byte
}

// EventType satisfies the Event interface.
func (NominationsApplied) EventType() string { return TypeNominationsApplied }

// Event converts the structured payload into a broadcastable event.
func (e NominationsApplied) Event() *types.Event {
	rendered := make([]string, len(e.Validators))
	for i, v := range e.Validators {
		rendered[i] = crypto.FormatAccount(v)
	}
	return &types.Event{Type: TypeNominationsApplied, Height: e.Height, Attributes: map[string]string{
		"era":        formatUint(e.Era),
		"validators": strings.Join(rendered, ","),
		"count":      strconv.Itoa(len(rendered)),
	}}
}

// NominationFailed records a backend rejection of the tallied set.
type NominationFailed struct {
	Height uint64
	Era    uint64
	Reason string
}

// EventType satisfies the Event interface.
func (NominationFailed) EventType() string { return TypeNominationFailed }

// Event converts the structured payload into a broadcastable event.
func (e NominationFailed) Event() *types.Event {
	return &types.Event{Type: TypeNominationFailed, Height: e.Height, Attributes: map[string]string{
		"era":    formatUint(e.Era),
		"reason": e.Reason,
	}}
}
