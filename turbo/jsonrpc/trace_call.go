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

// Package jsonrpc wires the core tracers (C1-C6) and the executor
// collaborator together into the trace_* family of operations (C7).
// It mirrors turbo/jsonrpc/trace_*.go's one-method-per-RPC layout,
// without the JSON-RPC transport itself (out of scope, §6).
package jsonrpc

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/otterscan-labs/retrace/core/executor"
	"github.com/otterscan-labs/retrace/core/state"
	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/eth/tracers"
)

// wireJSON is the teacher's streaming-compatible jsoniter
// configuration (cmd/rpcdaemon22/commands/trace_filtering.go writes
// ParityTrace values through the same config), used to marshal
// TraceResultSet batches for a transport to hand off.
var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalResults encodes a batch of trace results the way a
// trace_block/trace_filter response does: a JSON array, one element
// per result, in the order produced.
func MarshalResults(results []TraceResultSet) ([]byte, error) {
	return wireJSON.Marshal(results)
}

// StatefulExecutor is the executor collaborator (§6.2), plus the live
// intra-transaction account view IntraBlockStateTracer (C6) mirrors
// into the C2 shadow. An executor implementation and its IntraBlockState
// are one external collaborator in practice: the live values it reports
// from GetBalance/GetNonce/GetCode must be valid during its own Call.
type StatefulExecutor interface {
	executor.Executor
	tracers.LiveState
}

// TraceResultSet is one trace_* response unit: whichever of the three
// co-produced traces its TraceConfig selected.
type TraceResultSet struct {
	VmTrace   *tracers.VmTrace  `json:"vmTrace,omitempty"`
	Trace     []*tracers.Trace  `json:"trace,omitempty"`
	StateDiff tracers.StateDiff `json:"stateDiff,omitempty"`
}

// TraceCallExecutor implements the trace_* operations (C7): trace_call,
// trace_calls, trace_transaction, trace_block (and trace_replayBlockTransactions'
// role of the latter), plus the TraceGet projection.
type TraceCallExecutor struct {
	// Backing is the world-state reader anchored at the block being
	// traced against.
	Backing state.Reader
	// Exec replays transactions and hypothetical calls.
	Exec StatefulExecutor
	// GasCap bounds CallRequest.Gas when the caller leaves it unset.
	GasCap uint64
	Logger log.Logger
}

// NewTraceCallExecutor constructs a TraceCallExecutor. logger may be
// nil, in which case log.Root() is used lazily.
func NewTraceCallExecutor(backing state.Reader, exec StatefulExecutor, gasCap uint64, logger log.Logger) *TraceCallExecutor {
	return &TraceCallExecutor{Backing: backing, Exec: exec, GasCap: gasCap, Logger: logger}
}

func (e *TraceCallExecutor) logger() log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Root()
}

// attachedTracers is the set of tracers wired up for one replayed
// transaction, whichever the caller's TraceConfig selected.
type attachedTracers struct {
	hooks     *tracing.Hooks
	vmTrace   *tracers.VmTraceTracer
	callTrace *tracers.TraceTracer
	stateDiff *tracers.StateDiffTracer
}

func (e *TraceCallExecutor) attach(cfg tracers.TraceConfig, shadow *state.Addresses, idxPrefix string) attachedTracers {
	var hooksList []*tracing.Hooks
	var at attachedTracers

	if cfg.VmTrace {
		at.vmTrace = tracers.NewVmTraceTracer(idxPrefix)
		hooksList = append(hooksList, at.vmTrace.Hooks())
	}
	if cfg.Trace {
		at.callTrace = tracers.NewTraceTracer(shadow)
		hooksList = append(hooksList, at.callTrace.Hooks())
	}
	if cfg.StateDiff {
		at.stateDiff = tracers.NewStateDiffTracer(e.Backing, shadow, e.Exec)
		hooksList = append(hooksList, at.stateDiff.Hooks())
	}

	// IntraBlockStateTracer always runs last: even a vmTrace-only or
	// trace-only request must leave the shadow mirrored for the next
	// transaction in the same block-level replay. Running it after
	// StateDiffTracer is safe (rather than stale) because StateDiffTracer
	// reads this transaction's own post-state from e.Exec (Live)
	// directly, not from the shadow — the shadow it reads is only ever
	// this transaction's pre-state, mirrored in by a prior transaction's
	// settlement.
	ibt := tracers.NewIntraBlockStateTracer(e.Exec, shadow)
	hooksList = append(hooksList, ibt.Hooks())

	at.hooks = tracing.Combine(hooksList...)
	return at
}

func (at attachedTracers) result() TraceResultSet {
	var res TraceResultSet
	if at.vmTrace != nil {
		res.VmTrace = at.vmTrace.Result()
	}
	if at.callTrace != nil {
		res.Trace = at.callTrace.Result()
	}
	if at.stateDiff != nil {
		res.StateDiff = at.stateDiff.Result()
	}
	return res
}

// replayPrefix replays priorTxns against shadow with only
// IntraBlockStateTracer attached (§4.7): it warms the shadow and the
// executor's live intra-block state to the point just before the
// target call/transaction, without producing any trace output of its
// own.
func (e *TraceCallExecutor) replayPrefix(ctx context.Context, block executor.Block, priorTxns []executor.Transaction, shadow *state.Addresses) error {
	for i, txn := range priorTxns {
		ibt := tracers.NewIntraBlockStateTracer(e.Exec, shadow)
		outcome, err := e.Exec.Call(ctx, block, txn, true, false, ibt.Hooks())
		if err != nil {
			return fmt.Errorf("prefix replay: tx %d: %w", i, err)
		}
		if outcome.PreCheckError != nil {
			return fmt.Errorf("prefix replay: tx %d: err: %w", i, outcome.PreCheckError)
		}
	}
	return nil
}

// Call implements trace_call: the block's transactions are replayed
// first to warm the shadow (§4.7), then one hypothetical call is
// executed against the backing world state, never committed anywhere.
func (e *TraceCallExecutor) Call(ctx context.Context, block executor.Block, priorTxns []executor.Transaction, req executor.CallRequest, cfg tracers.TraceConfig) (TraceResultSet, error) {
	shadow := state.NewAddresses(e.Backing)
	if err := e.replayPrefix(ctx, block, priorTxns, shadow); err != nil {
		return TraceResultSet{}, fmt.Errorf("trace_call: %w", err)
	}

	txn := req.AsTransaction(e.GasCap)
	at := e.attach(cfg, shadow, "")

	outcome, err := e.Exec.Call(ctx, block, txn, false, true, at.hooks)
	if err != nil {
		return TraceResultSet{}, fmt.Errorf("trace_call: %w", err)
	}
	if outcome.PreCheckError != nil {
		return TraceResultSet{}, fmt.Errorf("err: %w", outcome.PreCheckError)
	}
	return at.result(), nil
}

// Calls implements trace_calls: a batch of hypothetical calls replayed
// against one shared shadow, the executor reset between each (§4.7) so
// one call's side effects never leak state mutation into the next
// call's starting gas/EVM internals — but the shadow itself persists,
// so calls in the batch do observe each other's writes.
func (e *TraceCallExecutor) Calls(ctx context.Context, block executor.Block, reqs []executor.CallRequest, cfgs []tracers.TraceConfig) ([]TraceResultSet, error) {
	if len(cfgs) != len(reqs) {
		return nil, fmt.Errorf("trace_calls: %d requests but %d trace configs", len(reqs), len(cfgs))
	}

	shadow := state.NewAddresses(e.Backing)
	results := make([]TraceResultSet, len(reqs))
	for i, req := range reqs {
		txn := req.AsTransaction(e.GasCap)
		at := e.attach(cfgs[i], shadow, "")

		outcome, err := e.Exec.Call(ctx, block, txn, false, true, at.hooks)
		if err != nil {
			return nil, fmt.Errorf("trace_calls: call %d: %w", i, err)
		}
		if outcome.PreCheckError != nil {
			return nil, fmt.Errorf("trace_calls: call %d: err: %w", i, outcome.PreCheckError)
		}
		results[i] = at.result()
		e.Exec.Reset()
	}
	return results, nil
}

// Transaction implements trace_transaction: transactions [0, txIndex)
// are replayed first to prime state (§4.7), then the target
// already-mined transaction is traced, its frames annotated with the
// block/transaction identity that produced it.
func (e *TraceCallExecutor) Transaction(ctx context.Context, block executor.Block, priorTxns []executor.Transaction, txn executor.Transaction, txIndex uint64, cfg tracers.TraceConfig) (TraceResultSet, error) {
	shadow := state.NewAddresses(e.Backing)
	if err := e.replayPrefix(ctx, block, priorTxns, shadow); err != nil {
		return TraceResultSet{}, fmt.Errorf("trace_transaction: %w", err)
	}

	at := e.attach(cfg, shadow, fmt.Sprintf("%d-", txIndex))

	outcome, err := e.Exec.Call(ctx, block, txn, true, false, at.hooks)
	if err != nil {
		return TraceResultSet{}, fmt.Errorf("trace_transaction: %w", err)
	}
	if outcome.PreCheckError != nil {
		return TraceResultSet{}, fmt.Errorf("err: %w", outcome.PreCheckError)
	}

	res := at.result()
	annotateFrames(res.Trace, block, txn.Hash, txIndex)
	return res, nil
}

// Block implements trace_block / trace_block_transactions: every
// transaction in the block is replayed in order over one shared shadow
// (so later transactions see earlier ones' balance/nonce/code
// mutations), followed by the supplemented block/uncle reward frames
// when the caller asked for call traces.
func (e *TraceCallExecutor) Block(ctx context.Context, block executor.Block, txns []executor.Transaction, cfg tracers.TraceConfig, rewardBase *uint256.Int, uncles []tracers.UncleInfo) ([]TraceResultSet, error) {
	shadow := state.NewAddresses(e.Backing)
	results := make([]TraceResultSet, 0, len(txns)+1)

	for i, txn := range txns {
		at := e.attach(cfg, shadow, fmt.Sprintf("%d-", i))
		outcome, err := e.Exec.Call(ctx, block, txn, true, false, at.hooks)
		if err != nil {
			return nil, fmt.Errorf("trace_block: tx %d: %w", i, err)
		}
		if outcome.PreCheckError != nil {
			return nil, fmt.Errorf("trace_block: tx %d: err: %w", i, outcome.PreCheckError)
		}
		res := at.result()
		annotateFrames(res.Trace, block, txn.Hash, uint64(i))
		results = append(results, res)
	}

	if cfg.Trace && rewardBase != nil {
		e.logger().Debug("trace_block: appending reward frames", "block", block.Number, "uncles", len(uncles))
		results = append(results, TraceResultSet{Trace: tracers.RewardFrames(block.Number, block.Coinbase, rewardBase, uncles)})
	}

	return results, nil
}

func annotateFrames(frames []*tracers.Trace, block executor.Block, txHash common.Hash, txPos uint64) {
	for _, f := range frames {
		bh, bn, th, tp := block.Hash, block.Number, txHash, txPos
		f.BlockHash = &bh
		f.BlockNumber = &bn
		f.TransactionHash = &th
		f.TransactionPosition = &tp
	}
}

// TraceGet is a pure-function projection over an already-produced
// frame vector: it returns the single frame whose TraceAddr equals
// path, without re-executing anything.
func TraceGet(frames []*tracers.Trace, path []int) (*tracers.Trace, bool) {
	for _, f := range frames {
		if traceAddrEqual(f.TraceAddr, path) {
			return f, true
		}
	}
	return nil, false
}

func traceAddrEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
