package rpc

import (
	"net/http"
	"strings"

	"liquidstake/crypto"
	"liquidstake/native/liquidstake"
)

func (s *Server) accepted(caller [20]byte) OperationResult {
	return OperationResult{Caller: crypto.FormatAccount(caller), Height: s.pool.Height()}
}

func (s *Server) handleAddStake(_ *http.Request, req *RPCRequest, caller [20]byte) (interface{}, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error(), nil)
	}
	if err := s.pool.AddStake(caller, amount); err != nil {
		return nil, operationError(err)
	}
	return s.accepted(caller), nil
}

func (s *Server) handleRedeemStake(_ *http.Request, req *RPCRequest, caller [20]byte) (interface{}, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error(), nil)
	}
	if err := s.pool.RedeemStake(caller, amount); err != nil {
		return nil, operationError(err)
	}
	return s.accepted(caller), nil
}

func (s *Server) handleWithdrawStake(_ *http.Request, req *RPCRequest, caller [20]byte) (interface{}, *RPCError) {
	var params withdrawParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.pool.WithdrawStake(caller, params.Era); err != nil {
		return nil, operationError(err)
	}
	return s.accepted(caller), nil
}

func (s *Server) handleNominate(_ *http.Request, req *RPCRequest, caller [20]byte) (interface{}, *RPCError) {
	var params nominateParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	slate := make([]liquidstake.Nomination, 0, len(params.Nominations))
	for _, entry := range params.Nominations {
		validator, err := crypto.ParseAccount(strings.TrimSpace(entry.Validator))
		if err != nil {
			return nil, invalidParams("invalid validator", err.Error())
		}
		weight, err := parseAmount(entry.Weight)
		if err != nil {
			return nil, invalidParams(err.Error(), entry.Validator)
		}
		slate = append(slate, liquidstake.Nomination{Validator: validator, Weight: weight})
	}
	if err := s.pool.Nominate(caller, slate); err != nil {
		return nil, operationError(err)
	}
	return s.accepted(caller), nil
}
