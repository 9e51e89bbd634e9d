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
	"fmt"

	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

// VmTraceTracer builds the hierarchical per-opcode vmTrace (C3). Gas
// cost per op is not known until the next instruction or frame exit,
// so the tracer keeps three parallel per-frame stacks and resolves
// gas_cost/used in arrears (§4.8).
type VmTraceTracer struct {
	// NameTable, if set, overrides the built-in opcode name table for
	// the revision passed to OnExecutionStart; it is cached on first use
	// per §4.3.
	NameTable func(rev vm.Revision) map[vm.OpCode]string
	// TxIndexPrefix is the root index_prefix for depth-0 frames
	// ("" for a standalone call, "<tx_index>-" inside a block replay).
	TxIndexPrefix string

	names     map[vm.OpCode]string
	namesInit bool

	root        *VmTrace
	frames      []*VmTrace
	startGas    []uint64
	indexPrefix []string
}

// NewVmTraceTracer constructs a VmTraceTracer rooted at the given
// index prefix (empty for a lone call, "<tx_index>-" inside a block).
func NewVmTraceTracer(txIndexPrefix string) *VmTraceTracer {
	return &VmTraceTracer{TxIndexPrefix: txIndexPrefix}
}

// Hooks returns the observer callbacks this tracer answers to.
func (t *VmTraceTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnExecutionStart:   t.onExecutionStart,
		OnInstructionStart: t.onInstructionStart,
		OnExecutionEnd:     t.onExecutionEnd,
		OnPrecompiledRun:   t.onPrecompiledRun,
	}
}

// Result returns the root VmTrace once the owning transaction's
// terminal callback has fired.
func (t *VmTraceTracer) Result() *VmTrace {
	return t.root
}

func (t *VmTraceTracer) onExecutionStart(rev vm.Revision, msg *vm.Message, code []byte) {
	if !t.namesInit {
		if t.NameTable != nil {
			t.names = t.NameTable(rev)
		}
		t.namesInit = true
	}

	t.startGas = append(t.startGas, msg.Gas)

	if msg.Depth == 0 {
		t.root = &VmTrace{Code: hexBytes(code)}
		t.frames = append(t.frames, t.root)
		t.indexPrefix = append(t.indexPrefix, t.TxIndexPrefix)
		return
	}

	parent := t.frames[len(t.frames)-1]
	if len(parent.Ops) == 0 {
		// Defensive: a sub-frame cannot be entered without a calling op
		// having been recorded first.
		sub := &VmTrace{}
		t.frames = append(t.frames, sub)
		t.indexPrefix = append(t.indexPrefix, t.indexPrefix[len(t.indexPrefix)-1])
		return
	}

	callingOp := parent.Ops[len(parent.Ops)-1]
	sub := &VmTrace{}
	callingOp.Sub = sub
	t.frames = append(t.frames, sub)
	parentPrefix := t.indexPrefix[len(t.indexPrefix)-1]
	t.indexPrefix = append(t.indexPrefix, fmt.Sprintf("%s%d-", parentPrefix, len(parent.Ops)-1))

	switch msg.Kind {
	case vm.CallKindCall, vm.CallKindDelegateCall, vm.CallKindStaticCall:
		gasCap := callingOp.GasCost - int64(msg.Gas)
		callingOp.CallGasCap = &gasCap
		callingOp.GasCost = gasCap
	}
}

func (t *VmTraceTracer) onInstructionStart(pc uint64, state tracing.ExecutionState, ibs tracing.IntraBlockState) {
	frame := t.frames[len(t.frames)-1]

	if len(frame.Ops) > 0 {
		prev := frame.Ops[len(frame.Ops)-1]
		if prev.PrecompiledCallGas != nil {
			prev.GasCost -= *prev.PrecompiledCallGas
		} else if prev.Depth == state.Depth {
			prev.GasCost -= int64(state.GasLeft)
		}
		prev.Ex.Used = int64(state.GasLeft)
		if prev.memOperand != nil && prev.memOperand.len > 0 {
			end := prev.memOperand.offset + prev.memOperand.len
			var data []byte
			if end <= uint64(len(state.Memory)) {
				data = state.Memory[prev.memOperand.offset:end]
			}
			prev.Ex.Memory = &TraceMemory{
				Offset: prev.memOperand.offset,
				Len:    prev.memOperand.len,
				Data:   hexDump(data),
			}
		}
		if n := vm.PushedCount(vm.OpCode(prev.OpCode)); n > 0 && state.Stack != nil {
			words := state.Stack.Top(n)
			prev.Ex.Stack = make([]string, len(words))
			for i, w := range words {
				prev.Ex.Stack[i] = hexPaddedWord(w)
			}
		}
	}

	op := state.OpCode
	opByte := byte(op)
	traceOp := &TraceOp{
		GasCost: int64(state.GasLeft),
		Idx:     fmt.Sprintf("%s%d", t.indexPrefix[len(t.indexPrefix)-1], len(frame.Ops)),
		Depth:   state.Depth,
		OpCode:  opByte,
		OpName:  op.TraceName(t.names),
		Pc:      pc,
	}
	if operand := vm.MemoryOperandOf(op, state.Stack); operand != nil {
		traceOp.memOperand = &memOperand{offset: operand.Offset, len: operand.Len}
	}
	if vm.IsSSTORE(op) && state.Stack != nil {
		traceOp.Ex.Storage = &TraceStorage{
			Key:   hexPaddedWord(*state.Stack.At(0)),
			Value: hexPaddedWord(*state.Stack.At(-1)),
		}
	}
	frame.Ops = append(frame.Ops, traceOp)
}

func (t *VmTraceTracer) onPrecompiledRun(result vm.PrecompileResult, gas uint64, ibs tracing.IntraBlockState) {
	frame := t.frames[len(t.frames)-1]
	if len(frame.Ops) == 0 {
		return
	}
	last := frame.Ops[len(frame.Ops)-1]
	g := int64(gas)
	last.PrecompiledCallGas = &g
	last.Sub = &VmTrace{Code: hexBytes(nil)}
}

func (t *VmTraceTracer) onExecutionEnd(result vm.ExecutionResult, ibs tracing.IntraBlockState) {
	frame := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	startGas := t.startGas[len(t.startGas)-1]
	t.startGas = t.startGas[:len(t.startGas)-1]
	t.indexPrefix = t.indexPrefix[:len(t.indexPrefix)-1]

	if len(frame.Ops) == 0 {
		return
	}
	last := frame.Ops[len(frame.Ops)-1]
	switch result.StatusCode {
	case vm.StatusOutOfGas:
		last.Ex.Used = int64(result.GasLeft)
		last.GasCost -= int64(result.GasLeft)
	case vm.StatusUndefinedInstruction:
		last.Ex.Used = last.GasCost - (int64(startGas) - last.GasCost)
		last.GasCost = int64(startGas) - last.GasCost
	default:
		last.GasCost -= int64(result.GasLeft)
		last.Ex.Used = int64(result.GasLeft)
	}

	if len(frame.Ops) == 1 && frame.Ops[0].OpName == "STOP" && frame.Ops[0].Sub == nil {
		frame.Ops = nil
	}
}

func hexBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
