// Package api implements the HTTP control surface (§4.4/§6): the five
// routes a node exposes to the launcher and to its peers.
package api

import (
	"encoding/json"

	"github.com/arvidsson/benor-agreement/consensus"
	"github.com/arvidsson/benor-agreement/core"
)

// messageRequest is the /message request body. Fields are json.RawMessage so
// an absent key decodes to nil and is distinguishable from a present-but-
// zero value, matching §4.4's "reject when any of type, round, val are
// missing" rule.
type messageRequest struct {
	Type   json.RawMessage `json:"type"`
	Round  json.RawMessage `json:"round"`
	Val    json.RawMessage `json:"val"`
	Sender json.RawMessage `json:"sender"`
}

// getStateResponse is the three-branch shape §6 fixes for /getState.
// Pointer fields render as JSON null when nil, matching the faulty-node
// branch exactly.
type getStateResponse struct {
	Killed  bool        `json:"killed"`
	X       *core.Value `json:"x"`
	Decided *bool       `json:"decided"`
	K       *core.Round `json:"k"`
}

// newGetStateResponse applies §6's three branches over a state snapshot.
func newGetStateResponse(snap consensus.Snapshot, exceeding bool) getStateResponse {
	if snap.K == nil && snap.X == nil && snap.Decided == nil {
		return getStateResponse{Killed: snap.Killed}
	}
	if exceeding {
		decided := false
		k := *snap.K
		if k < 11 {
			k = 11
		}
		return getStateResponse{Killed: snap.Killed, X: snap.X, Decided: &decided, K: &k}
	}
	return getStateResponse{Killed: snap.Killed, X: snap.X, Decided: snap.Decided, K: snap.K}
}

// toPayload validates and decodes the request, per §4.4/§6's rule that only
// type, round and val are required; sender is optional and defaults to 0
// when absent.
func (r messageRequest) toPayload() (core.MsgPayload, error) {
	if len(r.Type) == 0 || len(r.Round) == 0 || len(r.Val) == 0 {
		return core.MsgPayload{}, errMissingField
	}

	var typeStr, valStr string
	if err := json.Unmarshal(r.Type, &typeStr); err != nil {
		return core.MsgPayload{}, err
	}
	if err := json.Unmarshal(r.Val, &valStr); err != nil {
		return core.MsgPayload{}, err
	}
	typ, err := core.ParseMessageType(typeStr)
	if err != nil {
		return core.MsgPayload{}, err
	}
	val, err := core.ParseValue(valStr)
	if err != nil {
		return core.MsgPayload{}, err
	}

	var round uint64
	if err := json.Unmarshal(r.Round, &round); err != nil {
		return core.MsgPayload{}, err
	}
	var sender int
	if len(r.Sender) > 0 {
		if err := json.Unmarshal(r.Sender, &sender); err != nil {
			return core.MsgPayload{}, err
		}
	}

	return core.MsgPayload{Type: typ, Round: core.Round(round), Val: val, Sender: core.NodeID(sender)}, nil
}
