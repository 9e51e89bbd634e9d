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
	"github.com/erigontech/erigon-lib/common"
	"github.com/erigontech/erigon-lib/common/hexutil"

	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

// InitialStateChecker answers "did addr exist at the block this trace
// request is anchored to", independent of anything shadowed mid-trace.
// *state.Addresses satisfies this directly.
type InitialStateChecker interface {
	Exists(addr common.Address) (bool, error)
}

// TraceTracer builds the flat call/create frame tree (C4). Frames are
// appended in execution order; TraceAddr records each frame's path
// from the root so the flat slice can be replayed as a tree by callers
// that want one.
//
// Create-vs-call classification deliberately ignores msg.Kind and uses
// an existence test instead (§4.4), so interpreters that report Kind
// unreliably still produce correct frames. This relies on the executor
// leaving Message.CodeAddress the zero address for CREATE-family
// frames, since a freshly computed contract address has no "borrowed
// code" address to report.
type TraceTracer struct {
	// InitialState answers the existence test create classification is
	// built on.
	InitialState InitialStateChecker

	frames       []*Trace
	indexStack   []int
	startGas     []uint64
	currentDepth int
	initialGas   uint64
	created      map[common.Address]struct{}
}

// NewTraceTracer constructs a TraceTracer reading account existence
// from initialState.
func NewTraceTracer(initialState InitialStateChecker) *TraceTracer {
	return &TraceTracer{
		InitialState: initialState,
		created:      make(map[common.Address]struct{}),
	}
}

// Hooks returns the observer callbacks this tracer answers to.
func (t *TraceTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnExecutionStart: t.onExecutionStart,
		OnExecutionEnd:   t.onExecutionEnd,
		OnRewardGranted:  t.onRewardGranted,
	}
}

// Result returns the flat frame vector, in execution order, once the
// owning transaction's terminal callbacks have fired.
func (t *TraceTracer) Result() []*Trace {
	return t.frames
}

func (t *TraceTracer) isCreate(msg *vm.Message) bool {
	_, alreadyCreated := t.created[msg.Recipient]
	if alreadyCreated || msg.Recipient == msg.CodeAddress {
		return false
	}
	existsInitial := false
	if t.InitialState != nil {
		existsInitial, _ = t.InitialState.Exists(msg.Recipient)
	}
	return !existsInitial
}

func (t *TraceTracer) onExecutionStart(rev vm.Revision, msg *vm.Message, code []byte) {
	var frame *Trace
	if t.isCreate(msg) {
		t.created[msg.Recipient] = struct{}{}
		addr := msg.Recipient
		frame = &Trace{
			Type: FrameTypeCreate,
			Action: TraceAction{
				From:  msg.From,
				Gas:   hexutil.Uint64(msg.Gas),
				Init:  msg.Input,
				Value: bigFromU256(msg.Value),
			},
			Result: &TraceResult{Address: &addr},
		}
	} else {
		ct := CallTypeCall
		switch msg.Kind {
		case vm.CallKindDelegateCall:
			ct = CallTypeDelegateCall
		case vm.CallKindCallCode:
			ct = CallTypeCallCode
		default:
			if msg.Static {
				ct = CallTypeStaticCall
			}
		}
		to := msg.Recipient
		from := msg.From
		if msg.Kind == vm.CallKindDelegateCall {
			// §4.4: report from=recipient (the frame executing borrowed
			// code), to=code_address (where the code lives).
			from = msg.Recipient
			to = msg.CodeAddress
		}
		frame = &Trace{
			Type: FrameTypeCall,
			Action: TraceAction{
				CallType: &ct,
				From:     from,
				To:       &to,
				Gas:      hexutil.Uint64(msg.Gas),
				Input:    msg.Input,
				Value:    bigFromU256(msg.Value),
			},
			Result: &TraceResult{},
		}
	}

	if msg.Depth == 0 {
		t.initialGas = msg.Gas
		frame.TraceAddr = []int{}
	} else if len(t.indexStack) > 0 {
		parent := t.frames[t.indexStack[len(t.indexStack)-1]]
		frame.TraceAddr = append(append([]int{}, parent.TraceAddr...), parent.SubTraces)
		parent.SubTraces++
	} else {
		frame.TraceAddr = []int{}
	}

	t.frames = append(t.frames, frame)
	t.indexStack = append(t.indexStack, len(t.frames)-1)
	t.startGas = append(t.startGas, msg.Gas)
	t.currentDepth++
}

func (t *TraceTracer) onExecutionEnd(result vm.ExecutionResult, ibs tracing.IntraBlockState) {
	if len(t.indexStack) == 0 {
		return
	}
	idx := t.indexStack[len(t.indexStack)-1]
	t.indexStack = t.indexStack[:len(t.indexStack)-1]
	startGas := t.startGas[len(t.startGas)-1]
	t.startGas = t.startGas[:len(t.startGas)-1]
	if t.currentDepth > 0 {
		t.currentDepth--
	}

	frame := t.frames[idx]
	gasUsed, errStr, keepResult := classifyStatus(result.StatusCode, startGas, result.GasLeft)

	if !keepResult {
		frame.Result = nil
		frame.Error = errStr
		return
	}
	if frame.Result == nil {
		frame.Result = &TraceResult{}
	}
	frame.Result.GasUsed = hexutil.Uint64(gasUsed)
	if frame.Type == FrameTypeCreate {
		frame.Result.Code = result.Output
	} else {
		frame.Result.Output = result.Output
	}
}

func (t *TraceTracer) onRewardGranted(result vm.CallResult, ibs tracing.IntraBlockState) {
	if len(t.frames) == 0 {
		return
	}
	frame := t.frames[0]
	gasUsed, errStr, keepResult := classifyStatus(result.StatusCode, t.initialGas, result.GasLeft)

	if !keepResult {
		frame.Result = nil
		frame.Error = errStr
		return
	}
	if frame.Result == nil {
		frame.Result = &TraceResult{}
	}
	frame.Result.GasUsed = hexutil.Uint64(gasUsed)
	if keepResult && len(result.Output) > 0 {
		if frame.Type == FrameTypeCreate {
			frame.Result.Code = result.Output
		} else {
			frame.Result.Output = result.Output
		}
	}
}

// classifyStatus maps a status code to the §4.4 (gasUsed, error)
// pair. keepResult is false when the frame's Result must be dropped
// entirely in favor of Error.
func classifyStatus(status vm.StatusCode, startGas, gasLeft uint64) (gasUsed uint64, errStr string, keepResult bool) {
	switch status {
	case vm.StatusSuccess:
		return startGas - gasLeft, "", true
	case vm.StatusRevert:
		return startGas - gasLeft, "Reverted", false
	case vm.StatusOutOfGas, vm.StatusStackOverflow:
		return startGas, "Out of gas", false
	case vm.StatusStackUnderflow:
		return startGas, "Stack underflow", false
	case vm.StatusUndefinedInstruction:
		return startGas, "Bad instruction", false
	case vm.StatusInvalidInstruction:
		return startGas, "Bad instruction", false
	case vm.StatusBadJumpDestination:
		return startGas, "Bad jump destination", false
	default:
		return startGas, "", false
	}
}
