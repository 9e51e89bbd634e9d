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

// Package tracers builds the three co-produced traces (§3): vmTrace,
// the call/create frame tree, and the state diff. Each tracer lives in
// its own file, mirroring eth/tracers/logger/logger.go's one struct,
// one Hooks() method layout.
package tracers

import (
	"encoding/hex"
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
	"github.com/erigontech/erigon-lib/common/hexutil"
)

// bigFromU256 renders a 256-bit word as the *hexutil.Big the wire
// format expects for "value" fields (§3).
func bigFromU256(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(uint256.NewInt(0).ToBig())
	}
	return (*hexutil.Big)(v.ToBig())
}

// TraceConfig is the three independent flags a trace request selects
// tracers with (§3).
type TraceConfig struct {
	VmTrace   bool
	Trace     bool
	StateDiff bool
}

// ParseTraceConfig parses the JSON-array-of-strings wire form (§6.4).
func ParseTraceConfig(types []string) TraceConfig {
	var cfg TraceConfig
	for _, t := range types {
		switch t {
		case "vmTrace":
			cfg.VmTrace = true
		case "trace":
			cfg.Trace = true
		case "stateDiff":
			cfg.StateDiff = true
		}
	}
	return cfg
}

// VmTrace is a hierarchical, per-opcode execution log (§3).
type VmTrace struct {
	Code hexutil.Bytes `json:"code"`
	Ops  []*TraceOp    `json:"ops"`
}

// TraceOp is a single instruction's entry in a VmTrace.
type TraceOp struct {
	Idx                string     `json:"idx"`
	Pc                 uint64     `json:"pc"`
	OpCode             byte       `json:"-"`
	OpName             string     `json:"op"`
	Depth              int        `json:"-"`
	GasCost            int64      `json:"cost"`
	Ex                 TraceEx    `json:"ex"`
	Sub                *VmTrace   `json:"sub"`
	PrecompiledCallGas *int64     `json:"-"`
	CallGasCap         *int64     `json:"-"`
	memOperand         *memOperand
}

type memOperand struct {
	offset uint64
	len    uint64
}

// TraceEx is the pre/post-state attached to one TraceOp.
type TraceEx struct {
	Used    int64         `json:"used"`
	Stack   []string      `json:"push"`
	Memory  *TraceMemory  `json:"mem"`
	Storage *TraceStorage `json:"store"`
}

// TraceMemory is the memory slice an op touched, populated
// post-execution.
type TraceMemory struct {
	Offset uint64 `json:"off"`
	Len    uint64 `json:"-"`
	Data   string `json:"data"`
}

// TraceStorage is the SSTORE key/value an op wrote, as hex-padded-words.
type TraceStorage struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// hexPaddedWord renders a 32-byte word as the 64-hex-char,
// zero-padded, 0x-prefixed form §3 calls "hex-padded-word".
func hexPaddedWord(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

// hexDump renders raw bytes as a 0x-prefixed hex string, used for
// TraceMemory.Data.
func hexDump(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// CallType is the §3 TraceAction.call_type enumeration.
type CallType string

const (
	CallTypeCall         CallType = "call"
	CallTypeCallCode     CallType = "callcode"
	CallTypeDelegateCall CallType = "delegatecall"
	CallTypeStaticCall   CallType = "staticcall"
)

// FrameType is the §3 Trace.type enumeration.
type FrameType string

const (
	FrameTypeCall   FrameType = "call"
	FrameTypeCreate FrameType = "create"
	FrameTypeReward FrameType = "reward"
)

// TraceAction is the §3 TraceAction sum type, covering both call and
// create frames; exactly one of {CallType, Init} is populated.
type TraceAction struct {
	CallType *CallType       `json:"callType,omitempty"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      hexutil.Uint64  `json:"gas"`
	Input    hexutil.Bytes   `json:"input,omitempty"`
	Init     hexutil.Bytes   `json:"init,omitempty"`
	Value    *hexutil.Big    `json:"value"`
}

// TraceResult is the §3 TraceResult: call output or create
// address/deployed code, plus gas used. Absent for failed frames.
type TraceResult struct {
	GasUsed hexutil.Uint64  `json:"gasUsed"`
	Address *common.Address `json:"address,omitempty"`
	Code    hexutil.Bytes   `json:"code,omitempty"`
	Output  hexutil.Bytes   `json:"output,omitempty"`
}

// RewardType is the §3 RewardAction.reward_type enumeration.
type RewardType string

const (
	RewardTypeBlock RewardType = "block"
	RewardTypeUncle RewardType = "uncle"
)

// RewardAction is the §3 synthetic reward-frame action.
type RewardAction struct {
	Author     common.Address `json:"author"`
	RewardType RewardType     `json:"rewardType"`
	Value      *hexutil.Big   `json:"value"`
}

// Trace is one call/create/reward frame (§3).
type Trace struct {
	Type        FrameType     `json:"type"`
	Action      TraceAction   `json:"action"`
	RewardValue *RewardAction `json:"-"`
	Result      *TraceResult  `json:"result,omitempty"`
	SubTraces   int           `json:"subtraces"`
	TraceAddr   []int         `json:"traceAddress"`
	Error       string        `json:"error,omitempty"`

	BlockHash           *common.Hash `json:"blockHash,omitempty"`
	BlockNumber         *uint64      `json:"blockNumber,omitempty"`
	TransactionHash     *common.Hash `json:"transactionHash,omitempty"`
	TransactionPosition *uint64      `json:"transactionPosition,omitempty"`
}

// traceAlias lets MarshalJSON reuse Trace's field tags for everything
// but Action, which a reward frame swaps out for RewardAction.
type traceAlias struct {
	Type        FrameType    `json:"type"`
	Action      interface{}  `json:"action"`
	Result      *TraceResult `json:"result,omitempty"`
	SubTraces   int          `json:"subtraces"`
	TraceAddr   []int        `json:"traceAddress"`
	Error       string       `json:"error,omitempty"`

	BlockHash           *common.Hash `json:"blockHash,omitempty"`
	BlockNumber         *uint64      `json:"blockNumber,omitempty"`
	TransactionHash     *common.Hash `json:"transactionHash,omitempty"`
	TransactionPosition *uint64      `json:"transactionPosition,omitempty"`
}

// MarshalJSON emits RewardAction as action for a reward frame (§3,
// §6.4) instead of the zero-valued TraceAction a reward frame never
// populates meaningfully.
func (t Trace) MarshalJSON() ([]byte, error) {
	alias := traceAlias{
		Type:                t.Type,
		Action:              t.Action,
		Result:              t.Result,
		SubTraces:           t.SubTraces,
		TraceAddr:           t.TraceAddr,
		Error:               t.Error,
		BlockHash:           t.BlockHash,
		BlockNumber:         t.BlockNumber,
		TransactionHash:     t.TransactionHash,
		TransactionPosition: t.TransactionPosition,
	}
	if t.Type == FrameTypeReward && t.RewardValue != nil {
		alias.Action = t.RewardValue
	}
	return json.Marshal(alias)
}

// DiffValue is the §3 four-way encoding of one account component's
// before/after change.
type DiffValue struct {
	kind     diffKind
	from, to common.Hash
}

type diffKind int

const (
	diffSame diffKind = iota
	diffAdded
	diffRemoved
	diffChanged
)

// Same is the "=" DiffValue: no change.
func Same() DiffValue { return DiffValue{kind: diffSame} }

// Added is the {"+": to} DiffValue.
func Added(to common.Hash) DiffValue { return DiffValue{kind: diffAdded, to: to} }

// Removed is the {"-": from} DiffValue.
func Removed(from common.Hash) DiffValue { return DiffValue{kind: diffRemoved, from: from} }

// Changed is the {"*": {from, to}} DiffValue.
func Changed(from, to common.Hash) DiffValue {
	return DiffValue{kind: diffChanged, from: from, to: to}
}

// IsSame reports whether this component did not change.
func (d DiffValue) IsSame() bool { return d.kind == diffSame }

// MarshalJSON implements the §6.4 sum-type wire encoding.
func (d DiffValue) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case diffSame:
		return []byte(`"="`), nil
	case diffAdded:
		return []byte(`{"+":"` + hexPaddedWord(d.to) + `"}`), nil
	case diffRemoved:
		return []byte(`{"-":"` + hexPaddedWord(d.from) + `"}`), nil
	case diffChanged:
		return []byte(`{"*":{"from":"` + hexPaddedWord(d.from) + `","to":"` + hexPaddedWord(d.to) + `"}}`), nil
	}
	return []byte(`"="`), nil
}

// CodeDiffValue is the same §3 four-way encoding as DiffValue, but for
// the code component, which carries a full byte string rather than a
// fixed 32-byte word: unlike balance/nonce/storage, contract bytecode
// routinely exceeds 32 bytes and must not be truncated to the last
// word when rendered.
type CodeDiffValue struct {
	kind     diffKind
	from, to []byte
}

// CodeSame is the "=" CodeDiffValue: no change.
func CodeSame() CodeDiffValue { return CodeDiffValue{kind: diffSame} }

// CodeAdded is the {"+": to} CodeDiffValue.
func CodeAdded(to []byte) CodeDiffValue { return CodeDiffValue{kind: diffAdded, to: to} }

// CodeRemoved is the {"-": from} CodeDiffValue.
func CodeRemoved(from []byte) CodeDiffValue { return CodeDiffValue{kind: diffRemoved, from: from} }

// CodeChanged is the {"*": {from, to}} CodeDiffValue.
func CodeChanged(from, to []byte) CodeDiffValue {
	return CodeDiffValue{kind: diffChanged, from: from, to: to}
}

// IsSame reports whether this component did not change.
func (d CodeDiffValue) IsSame() bool { return d.kind == diffSame }

// MarshalJSON implements the §6.4 sum-type wire encoding, rendering
// the full byte string rather than a hex-padded-word.
func (d CodeDiffValue) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case diffSame:
		return []byte(`"="`), nil
	case diffAdded:
		return []byte(`{"+":"` + hexDump(d.to) + `"}`), nil
	case diffRemoved:
		return []byte(`{"-":"` + hexDump(d.from) + `"}`), nil
	case diffChanged:
		return []byte(`{"*":{"from":"` + hexDump(d.from) + `","to":"` + hexDump(d.to) + `"}}`), nil
	}
	return []byte(`"="`), nil
}

// StateDiffEntry is the §3 per-account diff: balance/nonce/storage are
// DiffValues, code is a CodeDiffValue to avoid truncating bytecode to
// a 32-byte word, storage keyed by hex-padded-word.
type StateDiffEntry struct {
	Balance DiffValue            `json:"balance"`
	Code    CodeDiffValue        `json:"code"`
	Nonce   DiffValue            `json:"nonce"`
	Storage map[string]DiffValue `json:"storage"`
}

// IsEmpty reports whether every component of the entry is Same, in
// which case §3's invariant says the entry must be elided entirely.
func (e StateDiffEntry) IsEmpty() bool {
	if !e.Balance.IsSame() || !e.Code.IsSame() || !e.Nonce.IsSame() {
		return false
	}
	for _, v := range e.Storage {
		if !v.IsSame() {
			return false
		}
	}
	return true
}

// StateDiff is the §3 mapping from address to StateDiffEntry. An
// absent key means the account is unchanged.
type StateDiff map[common.Address]*StateDiffEntry
