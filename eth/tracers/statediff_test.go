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

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-lib/common"

	"github.com/otterscan-labs/retrace/core/state"
	"github.com/otterscan-labs/retrace/core/tracing"
	"github.com/otterscan-labs/retrace/core/vm"
)

type fakeIBS struct {
	current map[common.Address]map[[32]byte][32]byte
}

func newFakeIBS() *fakeIBS {
	return &fakeIBS{current: make(map[common.Address]map[[32]byte][32]byte)}
}

func (f *fakeIBS) set(addr common.Address, key, value [32]byte) {
	m, ok := f.current[addr]
	if !ok {
		m = make(map[[32]byte][32]byte)
		f.current[addr] = m
	}
	m[key] = value
}

func (f *fakeIBS) GetCurrentStorage(addr [20]byte, key [32]byte) [32]byte {
	return f.current[common.Address(addr)][key]
}

type fakeBackingReader struct {
	existing map[common.Address]bool
	balances map[common.Address]uint256.Int
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	original map[common.Address]map[common.Hash]common.Hash
	touched  map[common.Address]struct{}
}

func newFakeBackingReader() *fakeBackingReader {
	return &fakeBackingReader{
		existing: make(map[common.Address]bool),
		balances: make(map[common.Address]uint256.Int),
		nonces:   make(map[common.Address]uint64),
		code:     make(map[common.Address][]byte),
		original: make(map[common.Address]map[common.Hash]common.Hash),
		touched:  make(map[common.Address]struct{}),
	}
}

func (f *fakeBackingReader) Exists(addr common.Address) (bool, error) { return f.existing[addr], nil }
func (f *fakeBackingReader) GetBalance(addr common.Address) (uint256.Int, error) {
	return f.balances[addr], nil
}
func (f *fakeBackingReader) GetNonce(addr common.Address) (uint64, error) { return f.nonces[addr], nil }
func (f *fakeBackingReader) GetCode(addr common.Address) ([]byte, error)  { return f.code[addr], nil }
func (f *fakeBackingReader) GetOriginalStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return f.original[addr][key], nil
}
func (f *fakeBackingReader) GetCurrentStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeBackingReader) Touched() map[common.Address]struct{} { return f.touched }

func TestStateDiffTracerTracksSSTOREAndSettlesOnReward(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xaa")
	key := common.HexToHash("0x01")

	backing := newFakeBackingReader()
	backing.existing[addr] = true
	backing.balances[addr] = *uint256.NewInt(100)
	backing.touched[addr] = struct{}{}
	backing.original[addr] = map[common.Hash]common.Hash{key: common.HexToHash("0x00")}

	shadow := state.NewAddresses(backing)
	live := &fakeLiveState{
		exists:   map[common.Address]bool{addr: true},
		balances: map[common.Address]uint256.Int{addr: *uint256.NewInt(55)},
	}

	sdt := NewStateDiffTracer(backing, shadow, live)
	hooks := sdt.Hooks()

	msg := &vm.Message{Kind: vm.CallKindCall, Depth: 0, Recipient: addr, CodeAddress: addr, Gas: 100000}
	hooks.OnExecutionStart(0, msg, nil)

	st := tracing.ExecutionState{OpCode: vm.SSTORE, Stack: vm.NewStack([32]byte(common.HexToHash("0x09")), [32]byte(key))}
	hooks.OnInstructionStart(0, st, nil)
	hooks.OnExecutionEnd(vm.ExecutionResult{StatusCode: vm.StatusSuccess}, nil)

	ibs := newFakeIBS()
	ibs.set(addr, [32]byte(key), [32]byte(common.HexToHash("0x09")))
	hooks.OnRewardGranted(vm.CallResult{StatusCode: vm.StatusSuccess}, ibs)

	diff := sdt.Result()
	entry, ok := diff[addr]
	require.True(t, ok)
	require.False(t, entry.Balance.IsSame())
	storageDiff, ok := entry.Storage[hexPaddedWord(key)]
	require.True(t, ok)
	require.False(t, storageDiff.IsSame())
}

func TestStateDiffTracerElidesUnchangedAccounts(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xbb")
	backing := newFakeBackingReader()
	backing.existing[addr] = true
	backing.balances[addr] = *uint256.NewInt(7)
	backing.touched[addr] = struct{}{}

	shadow := state.NewAddresses(backing)
	sdt := NewStateDiffTracer(backing, shadow, nil)
	hooks := sdt.Hooks()
	hooks.OnRewardGranted(vm.CallResult{StatusCode: vm.StatusSuccess}, nil)

	require.Empty(t, sdt.Result())
}

func TestStateDiffTracerElidesDustAccount(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xcc")
	backing := newFakeBackingReader()
	backing.touched[addr] = struct{}{}

	shadow := state.NewAddresses(backing)
	live := &fakeLiveState{exists: map[common.Address]bool{addr: true}}

	sdt := NewStateDiffTracer(backing, shadow, live)
	hooks := sdt.Hooks()
	hooks.OnRewardGranted(vm.CallResult{StatusCode: vm.StatusSuccess}, nil)

	_, ok := sdt.Result()[addr]
	require.False(t, ok, "a newly observed account with zero balance, empty code, zero nonce and no storage write must be elided")
}

func TestStateDiffTracerOnlyReportsChangedStorageSlots(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xdd")
	unchangedKey := common.HexToHash("0x01")
	changedKey := common.HexToHash("0x02")

	backing := newFakeBackingReader()
	backing.existing[addr] = true
	backing.touched[addr] = struct{}{}
	backing.original[addr] = map[common.Hash]common.Hash{
		unchangedKey: common.HexToHash("0x07"),
		changedKey:   common.HexToHash("0x07"),
	}

	shadow := state.NewAddresses(backing)
	live := &fakeLiveState{exists: map[common.Address]bool{addr: true}}

	sdt := NewStateDiffTracer(backing, shadow, live)
	hooks := sdt.Hooks()

	msg := &vm.Message{Kind: vm.CallKindCall, Depth: 0, Recipient: addr, CodeAddress: addr, Gas: 100000}
	hooks.OnExecutionStart(0, msg, nil)

	hooks.OnInstructionStart(0, tracing.ExecutionState{OpCode: vm.SSTORE, Stack: vm.NewStack([32]byte(unchangedKey))}, nil)
	hooks.OnInstructionStart(0, tracing.ExecutionState{OpCode: vm.SSTORE, Stack: vm.NewStack([32]byte(changedKey))}, nil)
	hooks.OnExecutionEnd(vm.ExecutionResult{StatusCode: vm.StatusSuccess}, nil)

	ibs := newFakeIBS()
	ibs.set(addr, [32]byte(unchangedKey), [32]byte(common.HexToHash("0x07")))
	ibs.set(addr, [32]byte(changedKey), [32]byte(common.HexToHash("0x09")))
	hooks.OnRewardGranted(vm.CallResult{StatusCode: vm.StatusSuccess}, ibs)

	entry, ok := sdt.Result()[addr]
	require.True(t, ok)
	_, hasUnchanged := entry.Storage[hexPaddedWord(unchangedKey)]
	require.False(t, hasUnchanged, "an unchanged touched slot must not appear in the diff")
	changedDiff, hasChanged := entry.Storage[hexPaddedWord(changedKey)]
	require.True(t, hasChanged)
	require.False(t, changedDiff.IsSame())
}
