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

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
)

// CallKind is the interpreter's notion of how a frame was entered.
type CallKind int

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
	CallKindCreate
	CallKindCreate2
)

// Message describes the EVM frame the interpreter is about to enter;
// it is passed to on_execution_start.
type Message struct {
	Kind CallKind
	// Depth is 0 for the transaction's outermost frame.
	Depth int
	From  common.Address
	// Recipient is the frame's "to" address: the callee for CALL-family
	// frames, the newly computed contract address for CREATE-family
	// frames.
	Recipient common.Address
	// CodeAddress is the address code is executed from. Equal to
	// Recipient for CALL/STATICCALL frames; for DELEGATECALL/CALLCODE it
	// is the address code is borrowed from. CREATE-family frames leave it
	// the zero address, which TraceTracer's create classification and
	// IntraBlockStateTracer rely on.
	CodeAddress common.Address
	Static      bool
	Gas         uint64
	Value       *uint256.Int
	// Input is calldata for CALL-family frames, init code for
	// CREATE-family frames.
	Input []byte
}

// Revision identifies the fork rules in effect, used to select the
// opcode-name table (§6.3 on_execution_start).
type Revision int
