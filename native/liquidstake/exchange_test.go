package liquidstake

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestMintAmount(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()
	cases := []struct {
		name     string
		deposit  *uint256.Int
		stash    *uint256.Int
		issuance *uint256.Int
		want     uint64
		err      error
	}{
		{name: "bootstrap", deposit: u(7), stash: u(0), issuance: u(0), want: 7},
		{name: "bootstrap ignores issuance", deposit: u(7), stash: u(0), issuance: u(100), want: 7},
		{name: "proportional", deposit: u(3), stash: u(20), issuance: u(160), want: 24},
		{name: "floors", deposit: u(4), stash: u(6), issuance: u(3), want: 2},
		{name: "share price below one", deposit: u(4), stash: u(2), issuance: u(3), want: 6},
		{name: "overflow", deposit: u(2), stash: u(1), issuance: maxAmount, err: ErrExceededMaxStake},
		{name: "overflow on empty stash", deposit: maxAmount, stash: u(0), issuance: u(2), err: ErrExceededMaxStake},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MintAmount(tc.deposit, tc.stash, tc.issuance)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("mint amount: %v", err)
			}
			if got.Uint64() != tc.want {
				t.Fatalf("expected %d, got %s", tc.want, got.Dec())
			}
		})
	}
}

func TestMintAmountPreservesShareValue(t *testing.T) {
	stash, issuance := u(1_000), u(800)
	minted, err := MintAmount(u(250), stash, issuance)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	newStash := new(uint256.Int).Add(stash, u(250))
	newIssuance := new(uint256.Int).Add(issuance, minted)
	// value of one existing unit must not fall: stash/issuance <= newStash/newIssuance
	left := new(uint256.Int).Mul(stash, newIssuance)
	right := new(uint256.Int).Mul(newStash, issuance)
	if left.Gt(right) {
		t.Fatalf("deposit diluted existing holders")
	}
}

func TestRedemptionValue(t *testing.T) {
	got, err := RedemptionValue(u(40), u(110), u(100))
	if err != nil || got.Uint64() != 44 {
		t.Fatalf("expected 44, got %v err=%v", got, err)
	}
	if got, _ := RedemptionValue(u(40), u(110), u(0)); !got.IsZero() {
		t.Fatalf("empty supply must be worth zero")
	}
	if _, err := RedemptionValue(new(uint256.Int).SetAllOne(), u(2), u(1)); !errors.Is(err, ErrPayoutOverflow) {
		t.Fatalf("expected payout overflow, got %v", err)
	}
}

func TestPoolAccounts(t *testing.T) {
	stash, controller, err := PoolAccounts(DefaultParams())
	if err != nil {
		t.Fatalf("pool accounts: %v", err)
	}
	if stash == controller {
		t.Fatalf("stash and controller must differ")
	}
	again, _, _ := PoolAccounts(DefaultParams())
	if again != stash {
		t.Fatalf("derivation must be deterministic")
	}
	params := DefaultParams()
	params.ControllerSeed = params.StashSeed
	if _, _, err := PoolAccounts(params); !errors.Is(err, ErrAccountCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
}

func TestErrorCodesAreDistinct(t *testing.T) {
	seen := make(map[uint16]string)
	for i, e := range Errors() {
		if int(e.Code) != i+1 {
			t.Fatalf("code %d out of order at index %d", e.Code, i)
		}
		if prev, dup := seen[e.Code]; dup {
			t.Fatalf("code %d shared by %q and %q", e.Code, prev, e.Message)
		}
		seen[e.Code] = e.Message
	}
	code, ok := CodeOf(errors.Join(errors.New("ctx"), ErrNoSuchValidator))
	if !ok || code != 8 {
		t.Fatalf("expected code 8, got %d ok=%v", code, ok)
	}
}
