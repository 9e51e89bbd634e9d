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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-lib/common"
)

func TestDiffValueMarshalsFourWays(t *testing.T) {
	t.Parallel()

	from := common.HexToHash("0x01")
	to := common.HexToHash("0x02")

	cases := []struct {
		name string
		v    DiffValue
		want string
	}{
		{"same", Same(), `"="`},
		{"added", Added(to), `{"+":"` + hexPaddedWord(to) + `"}`},
		{"removed", Removed(from), `{"-":"` + hexPaddedWord(from) + `"}`},
		{"changed", Changed(from, to), `{"*":{"from":"` + hexPaddedWord(from) + `","to":"` + hexPaddedWord(to) + `"}}`},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			b, err := json.Marshal(c.v)
			require.NoError(t, err)
			require.JSONEq(t, c.want, string(b))
		})
	}
}

func TestCodeDiffValueMarshalsFullByteStringNotAWord(t *testing.T) {
	t.Parallel()

	code := make([]byte, 64)
	for i := range code {
		code[i] = byte(i)
	}

	b, err := json.Marshal(CodeAdded(code))
	require.NoError(t, err)
	require.JSONEq(t, `{"+":"`+hexDump(code)+`"}`, string(b))

	var decoded struct {
		Plus string `json:"+"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Plus, 2+2*len(code),
		"a code diff longer than 32 bytes must carry the full byte string, not a 32-byte word")
}

func TestStateDiffEntryIsEmptyOnlyWhenEverythingIsSame(t *testing.T) {
	t.Parallel()

	allSame := StateDiffEntry{Balance: Same(), Code: CodeSame(), Nonce: Same(), Storage: map[string]DiffValue{
		"slot": Same(),
	}}
	require.True(t, allSame.IsEmpty())

	oneChanged := allSame
	oneChanged.Storage = map[string]DiffValue{"slot": Changed(common.Hash{}, common.HexToHash("0x01"))}
	require.False(t, oneChanged.IsEmpty())
}

func TestParseTraceConfigSelectsRequestedTraces(t *testing.T) {
	t.Parallel()

	cfg := ParseTraceConfig([]string{"trace", "stateDiff"})
	require.False(t, cfg.VmTrace)
	require.True(t, cfg.Trace)
	require.True(t, cfg.StateDiff)
}
