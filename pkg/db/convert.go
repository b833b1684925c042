package db

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db/dao"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
)

func toTransferDao(t *Transfer) *dao.TransferDao {
	return &dao.TransferDao{
		ID:                 t.ID,
		Path:               t.Path,
		Status:             string(t.Status),
		SourceChain:        t.SourceChain,
		DestinationChain:   t.DestinationChain,
		SourceAddress:      t.SourceAddress,
		DestinationAddress: t.DestinationAddress,
		Nonce:              int64(t.Nonce),
		SourceOffset:       int64(t.SourceOffset),
		Payload:            t.Payload,
		TokenAddress:       t.TokenAddress,
		Recipient:          t.Recipient,
		Amount:             amountOrZero(t.Amount),
		ErrorMessage:       t.ErrorMessage,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		CompletedAt:        t.CompletedAt,
	}
}

func toTransfer(d *dao.TransferDao) *Transfer {
	return &Transfer{
		ID:                 d.ID,
		Path:               d.Path,
		Status:             TransferStatus(d.Status),
		SourceChain:        d.SourceChain,
		DestinationChain:   d.DestinationChain,
		SourceAddress:      d.SourceAddress,
		DestinationAddress: d.DestinationAddress,
		Nonce:              uint64(d.Nonce),
		SourceOffset:       uint64(d.SourceOffset),
		Payload:            d.Payload,
		TokenAddress:       d.TokenAddress,
		Recipient:          d.Recipient,
		Amount:             d.Amount,
		ErrorMessage:       d.ErrorMessage,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		CompletedAt:        d.CompletedAt,
	}
}

func amountOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func decString(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

func parseDec(s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, err := uint256.FromDecimal(*s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", *s, err)
	}
	return v, nil
}

// snapshotRows flattens a snapshot into its three tables.
func snapshotRows(snap bridge.Snapshot) (*dao.BridgeStateDao, []*dao.BridgeTokenDao, []*dao.BridgeRouteDao) {
	state := &dao.BridgeStateDao{
		ID:        snap.ID,
		Kind:      string(snap.Kind),
		Owner:     snap.Owner.Hex(),
		Paused:    snap.Paused,
		UpdatedAt: time.Now().UTC(),
	}

	tokens := make([]*dao.BridgeTokenDao, 0, len(snap.Tokens)+len(snap.Supported))
	for _, t := range snap.Tokens {
		start := t.WindowStart
		tokens = append(tokens, &dao.BridgeTokenDao{
			BridgeID:        snap.ID,
			TokenAddress:    t.Token.Hex(),
			MaxTransferSize: decString(t.MaxTransferSize),
			DailyLimit:      decString(t.DailyLimit),
			DailyUsed:       decString(t.DailyUsed),
			WindowStart:     &start,
		})
	}
	for _, token := range snap.Supported {
		tokens = append(tokens, &dao.BridgeTokenDao{
			BridgeID:     snap.ID,
			TokenAddress: token.Hex(),
		})
	}

	routes := make([]*dao.BridgeRouteDao, len(snap.Routes))
	for i, r := range snap.Routes {
		routes[i] = &dao.BridgeRouteDao{
			BridgeID:    snap.ID,
			Chain:       r.Chain,
			Counterpart: r.Counterpart,
		}
	}
	return state, tokens, routes
}

// snapshotFromRows is the inverse of snapshotRows.
func snapshotFromRows(state *dao.BridgeStateDao, tokens []dao.BridgeTokenDao, routes []dao.BridgeRouteDao) (*bridge.Snapshot, error) {
	snap := &bridge.Snapshot{
		ID:     state.ID,
		Kind:   bridge.Kind(state.Kind),
		Owner:  common.HexToAddress(state.Owner),
		Paused: state.Paused,
	}

	for i := range tokens {
		t := &tokens[i]
		token := common.HexToAddress(t.TokenAddress)
		if snap.Kind == bridge.KindDestination {
			snap.Supported = append(snap.Supported, token)
			continue
		}
		limits := registry.TokenLimits{Token: token}
		var err error
		if limits.MaxTransferSize, err = parseDec(t.MaxTransferSize); err != nil {
			return nil, err
		}
		if limits.DailyLimit, err = parseDec(t.DailyLimit); err != nil {
			return nil, err
		}
		if limits.DailyUsed, err = parseDec(t.DailyUsed); err != nil {
			return nil, err
		}
		if t.WindowStart != nil {
			limits.WindowStart = t.WindowStart.UTC()
		}
		snap.Tokens = append(snap.Tokens, limits)
	}

	for _, r := range routes {
		snap.Routes = append(snap.Routes, bridge.Route{Chain: r.Chain, Counterpart: r.Counterpart})
	}

	// same order as bridge.Snapshot
	sort.Slice(snap.Tokens, func(i, j int) bool { return snap.Tokens[i].Token.Cmp(snap.Tokens[j].Token) < 0 })
	sort.Slice(snap.Supported, func(i, j int) bool { return snap.Supported[i].Cmp(snap.Supported[j]) < 0 })
	sort.Slice(snap.Routes, func(i, j int) bool { return snap.Routes[i].Chain < snap.Routes[j].Chain })
	return snap, nil
}
