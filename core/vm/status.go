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

package vm

// StatusCode classifies how an EVM frame (or the top-level call)
// terminated. The interpreter is the authority on these values; this
// module only consumes them.
type StatusCode int

const (
	StatusSuccess StatusCode = iota
	StatusRevert
	StatusOutOfGas
	StatusUndefinedInstruction
	StatusInvalidInstruction
	StatusStackOverflow
	StatusStackUnderflow
	StatusBadJumpDestination
	StatusOther
)

// ExecutionResult is the outcome handed to on_execution_end.
type ExecutionResult struct {
	StatusCode StatusCode
	GasLeft    uint64
	Output     []byte
}

// PrecompileResult is the outcome handed to on_precompiled_run.
type PrecompileResult struct {
	Output []byte
	Err    error
}

// CallResult is the settled outcome of a top-level call, handed to
// on_reward_granted.
type CallResult struct {
	StatusCode StatusCode
	GasLeft    uint64
	Output     []byte
}
