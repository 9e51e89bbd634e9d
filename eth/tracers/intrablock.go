// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package tracers

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"

	"github.com/otterscan-labs/retrace/core/state"
	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

// LiveState is the executor's live intra-transaction account view:
// the (existence, balance, nonce, code) a transaction leaves behind
// once it has settled, before the executor's own commit/rollback.
type LiveState interface {
	Exists(addr common.Address) (bool, error)
	GetBalance(addr common.Address) (uint256.Int, error)
	GetNonce(addr common.Address) (uint64, error)
	GetCode(addr common.Address) ([]byte, error)
}

// IntraBlockStateTracer mirrors (balance, nonce, code) from the live
// intra-transaction state into the C2 shadow once a transaction
// settles (C6), so later transactions in the same block-level replay
// see this transaction's effects without the executor committing to
// the backing store. StateDiffTracer does not depend on this mirroring
// for its post-state; it reads that from Live directly.
//
// The addresses mirrored are those seen as sender, recipient or code
// address of a frame entered during the transaction. Accounts touched
// only in other ways (for example read by BALANCE or credited by
// SELFDESTRUCT) are not mirrored.
type IntraBlockStateTracer struct {
	// Live is consulted, once the transaction settles, for every
	// address seen in a frame's message.
	Live LiveState
	// Shadow is the C2 overlay transactions are mirrored into.
	Shadow *state.Addresses

	seen map[common.Address]struct{}
}

// NewIntraBlockStateTracer constructs a tracer mirroring live into
// shadow.
func NewIntraBlockStateTracer(live LiveState, shadow *state.Addresses) *IntraBlockStateTracer {
	return &IntraBlockStateTracer{
		Live:   live,
		Shadow: shadow,
		seen:   make(map[common.Address]struct{}),
	}
}

// Hooks returns the observer callbacks this tracer answers to.
func (t *IntraBlockStateTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnExecutionStart: t.onExecutionStart,
		OnRewardGranted:  t.onRewardGranted,
	}
}

func (t *IntraBlockStateTracer) onExecutionStart(rev vm.Revision, msg *vm.Message, code []byte) {
	t.seen[msg.From] = struct{}{}
	t.seen[msg.Recipient] = struct{}{}
	if msg.CodeAddress != (common.Address{}) {
		t.seen[msg.CodeAddress] = struct{}{}
	}
}

func (t *IntraBlockStateTracer) onRewardGranted(result vm.CallResult, ibs tracing.IntraBlockState) {
	if t.Live == nil || t.Shadow == nil {
		return
	}
	for addr := range t.seen {
		if bal, err := t.Live.GetBalance(addr); err == nil {
			t.Shadow.SetBalance(addr, bal)
		}
		if nonce, err := t.Live.GetNonce(addr); err == nil {
			t.Shadow.SetNonce(addr, nonce)
		}
		if code, err := t.Live.GetCode(addr); err == nil {
			t.Shadow.SetCode(addr, code)
		}
	}
	t.seen = make(map[common.Address]struct{})
}
