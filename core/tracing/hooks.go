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

// Package tracing defines the observer protocol (§6.3) the EVM
// interpreter drives tracers with. It follows the teacher's
// struct-of-function-fields Hooks convention (core/tracing.Hooks,
// eth/tracers/logger.StructLogger.Hooks) rather than a Go interface,
// so attaching N tracers to one execution is just building one Hooks
// value whose fields fan out to each tracer's own hook.
package tracing

import (
	"github.com/otterscan-labs/retrace/core/vm"
)

// ExecutionState is the per-instruction state handed to
// OnInstructionStart: the gas left before the opcode executes and the
// stack/memory views needed to classify it.
type ExecutionState struct {
	GasLeft     uint64
	Stack       vm.StackPeeker
	StackHeight int
	Depth       int
	// OpCode is the instruction about to execute.
	OpCode vm.OpCode
	// Memory is the full memory buffer as it stands when the callback
	// fires, used to hex-dump the TraceMemory slice a prior op touched.
	Memory []byte
}

// IntraBlockState is the minimal live-state surface a tracer needs
// during execution: storage/gas reads that must not suspend (§9,
// "Observer callbacks vs suspension"). Tracers never mutate it.
type IntraBlockState interface {
	GetCurrentStorage(addr [20]byte, key [32]byte) [32]byte
}

// Hooks is the set of observer callbacks (§6.3). All are optional;
// a nil field means no tracer cares about that event. Combine merges
// several Hooks values, invoking each tracer's non-nil hook of a kind
// in the fixed order the tracers were attached (§5: "tracers do not
// observe each other").
type Hooks struct {
	OnExecutionStart   func(rev vm.Revision, msg *vm.Message, code []byte)
	OnInstructionStart func(pc uint64, state ExecutionState, ibs IntraBlockState)
	OnExecutionEnd     func(result vm.ExecutionResult, ibs IntraBlockState)
	OnPrecompiledRun   func(result vm.PrecompileResult, gas uint64, ibs IntraBlockState)
	OnRewardGranted    func(result vm.CallResult, ibs IntraBlockState)
}

// Combine fans a single EVM step out to every tracer's Hooks, each
// tracer's callback invoked in attachment order. Tracers never observe
// each other's output; Combine only sequences delivery.
func Combine(all ...*Hooks) *Hooks {
	combined := &Hooks{}
	combined.OnExecutionStart = func(rev vm.Revision, msg *vm.Message, code []byte) {
		for _, h := range all {
			if h != nil && h.OnExecutionStart != nil {
				h.OnExecutionStart(rev, msg, code)
			}
		}
	}
	combined.OnInstructionStart = func(pc uint64, state ExecutionState, ibs IntraBlockState) {
		for _, h := range all {
			if h != nil && h.OnInstructionStart != nil {
				h.OnInstructionStart(pc, state, ibs)
			}
		}
	}
	combined.OnExecutionEnd = func(result vm.ExecutionResult, ibs IntraBlockState) {
		for _, h := range all {
			if h != nil && h.OnExecutionEnd != nil {
				h.OnExecutionEnd(result, ibs)
			}
		}
	}
	combined.OnPrecompiledRun = func(result vm.PrecompileResult, gas uint64, ibs IntraBlockState) {
		for _, h := range all {
			if h != nil && h.OnPrecompiledRun != nil {
				h.OnPrecompiledRun(result, gas, ibs)
			}
		}
	}
	combined.OnRewardGranted = func(result vm.CallResult, ibs IntraBlockState) {
		for _, h := range all {
			if h != nil && h.OnRewardGranted != nil {
				h.OnRewardGranted(result, ibs)
			}
		}
	}
	return combined
}
