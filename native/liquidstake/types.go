package liquidstake

import "github.com/holiman/uint256"

// Nomination is one entry of a voting slate.
type Nomination struct {
	Validator [20]byte
	Weight    *uint256.Int
}

// RedemptionBucket holds the derivative units an account burned that become
// payable at Era.
type RedemptionBucket struct {
	Era   uint64
	Units *uint256.Int
}

// redemptionRecord is the stored per-account ledger, buckets sorted by era.
type redemptionRecord struct {
	Buckets []RedemptionBucket
}

func (r *redemptionRecord) find(era uint64) int {
	for i := range r.Buckets {
		if r.Buckets[i].Era == era {
			return i
		}
	}
	return -1
}

func (r *redemptionRecord) insert(bucket RedemptionBucket) {
	idx := len(r.Buckets)
	for i := range r.Buckets {
		if r.Buckets[i].Era > bucket.Era {
			idx = i
			break
		}
	}
	r.Buckets = append(r.Buckets, RedemptionBucket{})
	copy(r.Buckets[idx+1:], r.Buckets[idx:])
	r.Buckets[idx] = bucket
}

func (r *redemptionRecord) remove(idx int) {
	r.Buckets = append(r.Buckets[:idx], r.Buckets[idx+1:]...)
}

// Phase is the voting window state.
type Phase uint8

const (
	// PhaseClosed rejects nominations.
	PhaseClosed Phase = iota
	// PhaseOpen accepts nominations.
	PhaseOpen
)

func (p Phase) String() string {
	if p == PhaseOpen {
		return "open"
	}
	return "closed"
}

// EraTracker is the scheduler's view of the era clock.
type EraTracker struct {
	Era        uint64
	StartBlock uint64
	WindowOpen bool
}

// TallyEntry is the accumulated weight of one validator.
type TallyEntry struct {
	Validator [20]byte
	Votes     *uint256.Int
}

// LockEntry is the vote weight one account has locked in the current window.
type LockEntry struct {
	Account [20]byte
	Amount  *uint256.Int
}

// PoolInfo summarises the pool for queries.
type PoolInfo struct {
	Stash              [20]byte
	Controller         [20]byte
	StashBalance       *uint256.Int
	StashSpendable     *uint256.Int
	ActiveStake        *uint256.Int
	TotalStake         *uint256.Int
	Bonded             bool
	DerivativeIssuance *uint256.Int
	PendingRedemptions *uint256.Int
	Era                uint64
	EraStartBlock      uint64
	Height             uint64
	Phase              Phase
	WindowEndBlock     uint64
	Nominations        [][20]byte
}
