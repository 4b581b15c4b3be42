package events

import (
	"testing"

	"github.com/holiman/uint256"

	"liquidstake/crypto"
)

func TestBufferFlushesOnlyOnDemand(t *testing.T) {
	var buf Buffer
	rec := &Recorder{}

	buf.Emit(StakeAdded{Height: 7, Amount: uint256.NewInt(3), Minted: uint256.NewInt(24)})
	buf.Emit(nil)
	if buf.Len() != 1 {
		t.Fatalf("expected one buffered event, got %d", buf.Len())
	}
	buf.Reset()
	buf.Flush(rec)
	if len(rec.Events) != 0 {
		t.Fatalf("reset buffer must not publish")
	}

	buf.Emit(StakeAdded{Height: 7})
	buf.Emit(DerivativeRedeemed{Height: 7})
	buf.Flush(MultiEmitter{rec, NoopEmitter{}, nil})
	if len(rec.Events) != 2 || buf.Len() != 0 {
		t.Fatalf("expected two flushed events, got %d (pending %d)", len(rec.Events), buf.Len())
	}
	if got := rec.OfType(TypeDerivativeRedeemed); len(got) != 1 {
		t.Fatalf("expected one redemption event, got %d", len(got))
	}
}

func TestStakeAddedAttributes(t *testing.T) {
	var account [20]byte
	account[0] = 0xAA
	evt := StakeAdded{Height: 9, Account: account, Amount: uint256.NewInt(3), Minted: uint256.NewInt(24)}.Event()
	if evt.Type != TypeStakeAdded || evt.Height != 9 {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	if evt.Attributes["account"] != crypto.FormatAccount(account) {
		t.Fatalf("unexpected account attribute %q", evt.Attributes["account"])
	}
	if evt.Attributes["amount"] != "3" || evt.Attributes["minted"] != "24" {
		t.Fatalf("unexpected amounts %+v", evt.Attributes)
	}
}

func TestStakingCallFailedUsesKind(t *testing.T) {
	evt := StakingCallFailed{Kind: TypeBondFailed, Amount: nil, Reason: "  staking: not a stash "}
	if evt.EventType() != TypeBondFailed {
		t.Fatalf("unexpected type %s", evt.EventType())
	}
	attrs := evt.Event().Attributes
	if attrs["amount"] != "0" || attrs["reason"] != "staking: not a stash" {
		t.Fatalf("unexpected attributes %+v", attrs)
	}
}

func TestNominationsAppliedJoinsValidators(t *testing.T) {
	var v1, v2 [20]byte
	v1[19], v2[19] = 1, 2
	attrs := NominationsApplied{Era: 4, Validators: [][20]byte{v1, v2}}.Event().Attributes
	want := crypto.FormatAccount(v1) + "," + crypto.FormatAccount(v2)
	if attrs["validators"] != want || attrs["count"] != "2" || attrs["era"] != "4" {
		t.Fatalf("unexpected attributes %+v", attrs)
	}
}
