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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

func TestVmTraceTracerSingleStopIsErasedToEmptyOps(t *testing.T) {
	t.Parallel()

	tr := NewVmTraceTracer("")
	hooks := tr.Hooks()

	msg := &vm.Message{Kind: vm.CallKindCall, Depth: 0, Gas: 100000}
	hooks.OnExecutionStart(0, msg, []byte{byte(vm.STOP)})
	hooks.OnInstructionStart(0, tracing.ExecutionState{OpCode: vm.STOP, GasLeft: 100000, Depth: 0, Stack: vm.NewStack()}, nil)
	hooks.OnExecutionEnd(vm.ExecutionResult{StatusCode: vm.StatusSuccess, GasLeft: 100000}, nil)

	root := tr.Result()
	require.NotNil(t, root)
	require.Nil(t, root.Ops)
}

func TestVmTraceTracerTwoOpsResolvesGasCostInArrears(t *testing.T) {
	t.Parallel()

	tr := NewVmTraceTracer("")
	hooks := tr.Hooks()

	msg := &vm.Message{Kind: vm.CallKindCall, Depth: 0, Gas: 100000}
	hooks.OnExecutionStart(0, msg, []byte{byte(vm.PUSH1), 0x01, byte(vm.STOP)})
	hooks.OnInstructionStart(0, tracing.ExecutionState{OpCode: vm.PUSH1, GasLeft: 100000, Depth: 0, Stack: vm.NewStack()}, nil)
	hooks.OnInstructionStart(2, tracing.ExecutionState{OpCode: vm.STOP, GasLeft: 99997, Depth: 0, Stack: vm.NewStack([32]byte{1})}, nil)
	hooks.OnExecutionEnd(vm.ExecutionResult{StatusCode: vm.StatusSuccess, GasLeft: 99997}, nil)

	root := tr.Result()
	require.Len(t, root.Ops, 2)
	require.Equal(t, int64(3), root.Ops[0].GasCost)
	require.Len(t, root.Ops[0].Ex.Stack, 1, "PUSH1 must report the one word it pushed")
}

func TestVmTraceTracerOutOfGasFixesUpLastOp(t *testing.T) {
	t.Parallel()

	tr := NewVmTraceTracer("")
	hooks := tr.Hooks()

	msg := &vm.Message{Kind: vm.CallKindCall, Depth: 0, Gas: 100}
	hooks.OnExecutionStart(0, msg, []byte{byte(vm.SLOAD)})
	hooks.OnInstructionStart(0, tracing.ExecutionState{OpCode: vm.SLOAD, GasLeft: 100, Depth: 0, Stack: vm.NewStack([32]byte{})}, nil)
	hooks.OnExecutionEnd(vm.ExecutionResult{StatusCode: vm.StatusOutOfGas, GasLeft: 0}, nil)

	root := tr.Result()
	require.Len(t, root.Ops, 1)
	require.Equal(t, int64(100), root.Ops[0].GasCost)
}
