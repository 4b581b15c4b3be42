package rpc

import (
	"net/http"
	"strings"

	"liquidstake/crypto"
	"liquidstake/rpc/middleware"
)

// resolveAccount reads the optional account parameter, falling back to the
// authenticated caller.
func resolveAccount(r *http.Request, req *RPCRequest) ([20]byte, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(req, &params, true); rpcErr != nil {
		return [20]byte{}, rpcErr
	}
	if trimmed := strings.TrimSpace(params.Account); trimmed != "" {
		account, err := crypto.ParseAccount(trimmed)
		if err != nil {
			return [20]byte{}, invalidParams("invalid account", err.Error())
		}
		return account, nil
	}
	if caller, ok := middleware.CallerFromContext(r.Context()); ok {
		return caller, nil
	}
	return [20]byte{}, invalidParams("account is required", nil)
}

func (s *Server) handlePoolInfo(_ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	info, err := s.pool.PoolInfo()
	if err != nil {
		return nil, operationError(err)
	}
	return poolInfoResult(info), nil
}

func (s *Server) handleRedemptions(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	account, rpcErr := resolveAccount(r, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	buckets, err := s.pool.Redemptions(account)
	if err != nil {
		return nil, operationError(err)
	}
	return redemptionResults(buckets), nil
}

func (s *Server) handleNominationLock(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	account, rpcErr := resolveAccount(r, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.pool.NominationLock(account)
	if err != nil {
		return nil, operationError(err)
	}
	return NominationLockResult{Account: crypto.FormatAccount(account), Amount: formatAmount(amount)}, nil
}

func (s *Server) handleTally(_ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	entries, err := s.pool.NominationTally()
	if err != nil {
		return nil, operationError(err)
	}
	out := make([]TallyResult, len(entries))
	for i, entry := range entries {
		out[i] = TallyResult{Validator: crypto.FormatAccount(entry.Validator), Votes: formatAmount(entry.Votes)}
	}
	return out, nil
}

func (s *Server) handleBalance(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	account, rpcErr := resolveAccount(r, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.pool.Balance(account)
	if err != nil {
		return nil, operationError(err)
	}
	return balanceResult(account, balance), nil
}

func (s *Server) handleEvents(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event archive not configured", status: http.StatusServiceUnavailable}
	}
	var params eventsParams
	if rpcErr := decodeParams(req, &params, true); rpcErr != nil {
		return nil, rpcErr
	}
	records, err := s.events.Recent(r.Context(), params.Type, params.Limit)
	if err != nil {
		return nil, operationError(err)
	}
	return eventResults(records), nil
}
