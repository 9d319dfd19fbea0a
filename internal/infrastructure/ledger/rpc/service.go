// Package rpc implements the ledger port against a JSON-RPC ledger gateway.
// The gateway owns key custody and transaction signing; this client only
// submits escrow operations and maps engine result codes onto the domain
// error taxonomy.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
)

type Service struct {
	url    string
	client *retryablehttp.Client
}

func NewService(url string) *Service {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	return &Service{url: url, client: client}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

type submitResult struct {
	Hash       string `json:"hash"`
	Sequence   uint32 `json:"sequence"`
	ResultCode string `json:"engine_result"`
	Owner      string `json:"owner,omitempty"`
	State      string `json:"state,omitempty"`
	LedgerTime int64  `json:"ledger_time,omitempty"`
}

func (s *Service) call(ctx context.Context, method string, params any, out *submitResult) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", domain.ErrLedgerTimeout, method)
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrLedgerTimeout, method, err)
	}
	defer func() {
		// nolint:all
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway returned %d", domain.ErrLedgerTimeout, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned %d", domain.ErrLedgerRejected, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("malformed gateway response: %s", err)
	}
	if rpcResp.Error != "" {
		return fmt.Errorf("%w: %s", domain.ErrLedgerRejected, rpcResp.Error)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("malformed gateway result: %s", err)
	}
	return mapResultCode(out.ResultCode)
}

// mapResultCode translates engine result codes into the domain taxonomy.
// tes* means applied; tec* are final rejections with a specific cause.
func mapResultCode(code string) error {
	switch code {
	case "", "tesSUCCESS":
		return nil
	case "tecCRYPTOCONDITION_ERROR":
		return fmt.Errorf("%w: %s", domain.ErrConditionMismatch, code)
	case "tecNO_PERMISSION":
		return fmt.Errorf("%w: %s", domain.ErrNotYetExpired, code)
	case "tecNO_TARGET":
		return fmt.Errorf("%w: %s", domain.ErrAlreadyFinished, code)
	case "tecEXPIRED":
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExpired, code)
	default:
		return fmt.Errorf("%w: %s", domain.ErrLedgerRejected, code)
	}
}

func (s *Service) CreateEscrow(
	ctx context.Context,
	creatorKey, destination, asset string, amount float64,
	cond string, expiresAt int64,
) (domain.EscrowRef, *ports.TxResult, error) {
	var res submitResult
	err := s.call(ctx, "escrow_create", map[string]any{
		"key":         creatorKey,
		"destination": destination,
		"asset":       asset,
		"amount":      amount,
		"condition":   cond,
		"cancel_after": expiresAt,
	}, &res)
	if err != nil {
		return domain.EscrowRef{}, nil, err
	}

	ref := domain.EscrowRef{Owner: res.Owner, Sequence: res.Sequence}
	if ref.Owner == "" {
		ref.Owner = creatorKey
	}
	log.WithFields(log.Fields{
		"escrow_owner": ref.Owner,
		"escrow_seq":   ref.Sequence,
		"tx":           res.Hash,
	}).Debug("escrow created")
	return ref, &ports.TxResult{Hash: res.Hash, Sequence: res.Sequence, ResultCode: res.ResultCode}, nil
}

func (s *Service) FinishEscrow(
	ctx context.Context,
	finisherKey string, ref domain.EscrowRef, cond, fulfillment string,
) (*ports.TxResult, error) {
	var res submitResult
	err := s.call(ctx, "escrow_finish", map[string]any{
		"key":         finisherKey,
		"owner":       ref.Owner,
		"offer_seq":   ref.Sequence,
		"condition":   cond,
		"fulfillment": fulfillment,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &ports.TxResult{Hash: res.Hash, Sequence: res.Sequence, ResultCode: res.ResultCode}, nil
}

func (s *Service) CancelEscrow(
	ctx context.Context, cancellerKey string, ref domain.EscrowRef,
) (*ports.TxResult, error) {
	var res submitResult
	err := s.call(ctx, "escrow_cancel", map[string]any{
		"key":       cancellerKey,
		"owner":     ref.Owner,
		"offer_seq": ref.Sequence,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &ports.TxResult{Hash: res.Hash, Sequence: res.Sequence, ResultCode: res.ResultCode}, nil
}

func (s *Service) QueryEscrow(ctx context.Context, ref domain.EscrowRef) (ports.EscrowState, error) {
	var res submitResult
	err := s.call(ctx, "escrow_query", map[string]any{
		"owner":     ref.Owner,
		"offer_seq": ref.Sequence,
	}, &res)
	if err != nil {
		return ports.EscrowNotFound, err
	}
	return parseState(res.State), nil
}

func (s *Service) FindEscrow(ctx context.Context, owner, cond string) (domain.EscrowRef, ports.EscrowState, error) {
	var res submitResult
	err := s.call(ctx, "escrow_find", map[string]any{
		"owner":     owner,
		"condition": cond,
	}, &res)
	if err != nil {
		return domain.EscrowRef{}, ports.EscrowNotFound, err
	}
	ref := domain.EscrowRef{Owner: res.Owner, Sequence: res.Sequence}
	return ref, parseState(res.State), nil
}

func (s *Service) LedgerTime(ctx context.Context) (int64, error) {
	var res submitResult
	if err := s.call(ctx, "ledger_time", map[string]any{}, &res); err != nil {
		return 0, err
	}
	return res.LedgerTime, nil
}

func parseState(state string) ports.EscrowState {
	switch state {
	case "held":
		return ports.EscrowHeld
	case "finished":
		return ports.EscrowFinished
	case "cancelled":
		return ports.EscrowCancelled
	default:
		return ports.EscrowNotFound
	}
}
