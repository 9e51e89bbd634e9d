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

package state

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
)

// Addresses is the per-request shadow (C2): a cached snapshot of
// (balance, nonce, code) keyed by address, backed by a read-only
// Reader. Reads fall through to the backing reader when the shadow has
// not recorded a value; writes only ever touch the shadow.
//
// One Addresses lives for the duration of one block-level trace
// request (§3, "Lifecycles") and is advanced between transactions by
// IntraBlockStateTracer (C6).
type Addresses struct {
	backing Reader

	balance map[common.Address]uint256.Int
	nonce   map[common.Address]uint64
	code    map[common.Address][]byte
}

// NewAddresses builds a shadow over backing. backing is never mutated.
func NewAddresses(backing Reader) *Addresses {
	return &Addresses{
		backing: backing,
		balance: make(map[common.Address]uint256.Int),
		nonce:   make(map[common.Address]uint64),
		code:    make(map[common.Address][]byte),
	}
}

// Exists consults the backing state, not the shadow: it answers "does
// this account exist at the block this request is anchored to",
// independent of anything this request has shadowed.
func (a *Addresses) Exists(addr common.Address) (bool, error) {
	return a.backing.Exists(addr)
}

// BalanceExists reports whether the shadow itself has recorded a
// balance for addr, without consulting the backing reader. Distinct
// from Exists per §4.2.
func (a *Addresses) BalanceExists(addr common.Address) bool {
	_, ok := a.balance[addr]
	return ok
}

// GetBalance returns the shadowed balance if recorded, else the
// backing state's.
func (a *Addresses) GetBalance(addr common.Address) (uint256.Int, error) {
	if v, ok := a.balance[addr]; ok {
		return v, nil
	}
	return a.backing.GetBalance(addr)
}

// SetBalance writes only to the shadow.
func (a *Addresses) SetBalance(addr common.Address, balance uint256.Int) {
	a.balance[addr] = balance
}

// GetNonce returns the shadowed nonce if recorded, else the backing
// state's.
func (a *Addresses) GetNonce(addr common.Address) (uint64, error) {
	if v, ok := a.nonce[addr]; ok {
		return v, nil
	}
	return a.backing.GetNonce(addr)
}

// SetNonce writes only to the shadow.
func (a *Addresses) SetNonce(addr common.Address, nonce uint64) {
	a.nonce[addr] = nonce
}

// GetCode returns the shadowed code if recorded, else the backing
// state's.
func (a *Addresses) GetCode(addr common.Address) ([]byte, error) {
	if v, ok := a.code[addr]; ok {
		return v, nil
	}
	return a.backing.GetCode(addr)
}

// SetCode writes only to the shadow.
func (a *Addresses) SetCode(addr common.Address, code []byte) {
	a.code[addr] = code
}

// GetOriginalStorage always reads through to the backing state: the
// shadow never tracks storage slots directly, only StateDiffTracer's
// own per-address key set does (C5).
func (a *Addresses) GetOriginalStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return a.backing.GetOriginalStorage(addr, key)
}
