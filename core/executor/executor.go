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

// Package executor carries the §6.2 EVM-executor collaborator
// interface. The interpreter and host it describes live outside this
// module's scope (§1); only the boundary is specified here.
package executor

import (
	"context"

	"github.com/erigontech/erigon-lib/common"

	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

// Block is the minimal header context a transaction is replayed against.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Coinbase   common.Address
	Time       uint64
}

// Transaction is the minimal shape of a chain transaction the executor
// needs to build the EVM call message. Sender recovery (§4.7) is the
// executor's job when From is the zero address and Recover is set.
type Transaction struct {
	Hash     common.Hash
	From     common.Address
	To       *common.Address
	Gas      uint64
	GasPrice *uint64
	Value    [32]byte
	Data     []byte
	Nonce    uint64
	Recover  func() (common.Address, error)
}

// Sender returns tx.From, recovering it from the signature first if it
// is not already populated (§4.7).
func (tx Transaction) Sender() (common.Address, error) {
	if tx.From != (common.Address{}) || tx.Recover == nil {
		return tx.From, nil
	}
	return tx.Recover()
}

// CallRequest is a hypothetical (un-mined) call, used by trace_call and
// trace_calls.
type CallRequest struct {
	From     common.Address
	To       *common.Address
	Gas      *uint64
	GasPrice *uint64
	Value    *[32]byte
	Data     []byte
}

// AsTransaction adapts a CallRequest into the Transaction shape Call
// replays, defaulting Gas when the caller left it unset.
func (c CallRequest) AsTransaction(gasCap uint64) Transaction {
	gas := gasCap
	if c.Gas != nil {
		gas = *c.Gas
	}
	var value [32]byte
	if c.Value != nil {
		value = *c.Value
	}
	return Transaction{
		From:     c.From,
		To:       c.To,
		Gas:      gas,
		GasPrice: c.GasPrice,
		Value:    value,
		Data:     c.Data,
	}
}

// Outcome is the settled result of one Executor.Call (§6.2).
type Outcome struct {
	PreCheckError error
	Data          []byte
	GasLeft       uint64
	Status        vm.StatusCode
}

// Executor is the EVM-executor collaborator (§6.2): it applies one
// transaction or hypothetical call against the world state it was
// constructed with, invoking the attached observer hooks synchronously
// as it steps.
type Executor interface {
	Call(ctx context.Context, block Block, txn Transaction, refund bool, gasBailout bool, hooks *tracing.Hooks) (Outcome, error)
	// Reset clears warm EVM/world-state between independent hypothetical
	// calls issued against the same shadow (used by trace_calls, §4.7).
	Reset()
}
