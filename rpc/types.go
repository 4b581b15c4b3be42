package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"liquidstake/core"
	"liquidstake/crypto"
	"liquidstake/eventlog"
	"liquidstake/native/liquidstake"
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type amountParams struct {
	Amount string `json:"amount"`
}

type withdrawParams struct {
	Era uint64 `json:"era"`
}

type NominationParam struct {
	Validator string `json:"validator"`
	Weight    string `json:"weight"`
}

type nominateParams struct {
	Nominations []NominationParam `json:"nominations"`
}

type accountParams struct {
	Account string `json:"account,omitempty"`
}

type eventsParams struct {
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// OperationResult acknowledges an accepted pool operation.
type OperationResult struct {
	Caller string `json:"caller"`
	Height uint64 `json:"height"`
}

type PoolInfoResult struct {
	Stash              string   `json:"stash"`
	Controller         string   `json:"controller"`
	StashBalance       string   `json:"stashBalance"`
	StashSpendable     string   `json:"stashSpendable"`
	ActiveStake        string   `json:"activeStake"`
	TotalStake         string   `json:"totalStake"`
	Bonded             bool     `json:"bonded"`
	DerivativeIssuance string   `json:"derivativeIssuance"`
	PendingRedemptions string   `json:"pendingRedemptions"`
	Era                uint64   `json:"era"`
	EraStartBlock      uint64   `json:"eraStartBlock"`
	Height             uint64   `json:"height"`
	Phase              string   `json:"phase"`
	WindowEndBlock     uint64   `json:"windowEndBlock,omitempty"`
	Nominations        []string `json:"nominations"`
}

type RedemptionResult struct {
	Era   uint64 `json:"era"`
	Units string `json:"units"`
}

type NominationLockResult struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type TallyResult struct {
	Validator string `json:"validator"`
	Votes     string `json:"votes"`
}

type LockResult struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

type BalanceResult struct {
	Account             string             `json:"account"`
	BaseSymbol          string             `json:"baseSymbol"`
	BaseFree            string             `json:"baseFree"`
	BaseSpendable       string             `json:"baseSpendable"`
	DerivativeSymbol    string             `json:"derivativeSymbol"`
	DerivativeFree      string             `json:"derivativeFree"`
	DerivativeSpendable string             `json:"derivativeSpendable"`
	DerivativeLocks     []LockResult       `json:"derivativeLocks,omitempty"`
	NominationLock      string             `json:"nominationLock"`
	PendingRedemptions  []RedemptionResult `json:"pendingRedemptions"`
}

type EventResult struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

func parseAmount(amount string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.IsZero() {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAccounts(accounts [][20]byte) []string {
	out := make([]string, len(accounts))
	for i, account := range accounts {
		out[i] = crypto.FormatAccount(account)
	}
	return out
}

func poolInfoResult(info *liquidstake.PoolInfo) PoolInfoResult {
	return PoolInfoResult{
		Stash:              crypto.FormatAccount(info.Stash),
		Controller:         crypto.FormatAccount(info.Controller),
		StashBalance:       formatAmount(info.StashBalance),
		StashSpendable:     formatAmount(info.StashSpendable),
		ActiveStake:        formatAmount(info.ActiveStake),
		TotalStake:         formatAmount(info.TotalStake),
		Bonded:             info.Bonded,
		DerivativeIssuance: formatAmount(info.DerivativeIssuance),
		PendingRedemptions: formatAmount(info.PendingRedemptions),
		Era:                info.Era,
		EraStartBlock:      info.EraStartBlock,
		Height:             info.Height,
		Phase:              info.Phase.String(),
		WindowEndBlock:     info.WindowEndBlock,
		Nominations:        formatAccounts(info.Nominations),
	}
}

func redemptionResults(buckets []liquidstake.RedemptionBucket) []RedemptionResult {
	out := make([]RedemptionResult, len(buckets))
	for i, bucket := range buckets {
		out[i] = RedemptionResult{Era: bucket.Era, Units: formatAmount(bucket.Units)}
	}
	return out
}

func balanceResult(account [20]byte, balance *core.Balance) BalanceResult {
	out := BalanceResult{
		Account:             crypto.FormatAccount(account),
		BaseSymbol:          balance.BaseSymbol,
		BaseFree:            formatAmount(balance.BaseFree),
		BaseSpendable:       formatAmount(balance.BaseSpendable),
		DerivativeSymbol:    balance.DerivativeSymbol,
		DerivativeFree:      formatAmount(balance.DerivativeFree),
		DerivativeSpendable: formatAmount(balance.DerivativeSpendable),
		NominationLock:      formatAmount(balance.NominationLock),
		PendingRedemptions:  redemptionResults(balance.PendingRedemptions),
	}
	for _, lock := range balance.DerivativeLocks {
		out.DerivativeLocks = append(out.DerivativeLocks, LockResult{ID: lock.ID, Amount: formatAmount(lock.Amount)})
	}
	return out
}

func eventResults(records []eventlog.Record) []EventResult {
	out := make([]EventResult, len(records))
	for i, record := range records {
		out[i] = EventResult{
			Seq:        record.Seq,
			Type:       record.Type,
			Height:     record.Height,
			Attributes: record.Attributes,
		}
	}
	return out
}
