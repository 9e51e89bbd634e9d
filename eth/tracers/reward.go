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
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
)

// UncleInfo is the minimal uncle-block data the reward calculation
// needs: its number (to compute the distance-based reward fraction)
// and the address credited.
type UncleInfo struct {
	Number   uint64
	Coinbase common.Address
}

// uncleReward is the ethash uncle reward: baseReward scaled by
// (uncleNumber + 8 - blockNumber) / 8, mirroring
// consensus/ethash.AccumulateRewards.
func uncleReward(base *uint256.Int, blockNumber, uncleNumber uint64) *uint256.Int {
	r := uint256.NewInt(uncleNumber + 8)
	r.Sub(r, uint256.NewInt(blockNumber))
	r.Mul(r, base)
	return r.Div(r, uint256.NewInt(8))
}

// minerReward is the block proposer's own reward: baseReward plus
// 1/32 of baseReward for each uncle referenced.
func minerReward(base *uint256.Int, uncleCount int) *uint256.Int {
	total := new(uint256.Int).Set(base)
	if uncleCount == 0 {
		return total
	}
	inclusion := new(uint256.Int).Mul(base, uint256.NewInt(uint64(uncleCount)))
	inclusion.Div(inclusion, uint256.NewInt(32))
	return total.Add(total, inclusion)
}

// RewardFrames builds the synthetic reward frames (§3, §5) that close
// out a block-level replay: one block reward to coinbase, followed by
// one uncle reward per uncle, in that order. TraceAddr is empty for
// every reward frame; they are not nested under any call frame.
func RewardFrames(blockNumber uint64, coinbase common.Address, base *uint256.Int, uncles []UncleInfo) []*Trace {
	frames := make([]*Trace, 0, 1+len(uncles))

	blockRewardValue := minerReward(base, len(uncles))
	frames = append(frames, &Trace{
		Type: FrameTypeReward,
		RewardValue: &RewardAction{
			Author:     coinbase,
			RewardType: RewardTypeBlock,
			Value:      bigFromU256(blockRewardValue),
		},
		TraceAddr: []int{},
	})

	for _, u := range uncles {
		v := uncleReward(base, blockNumber, u.Number)
		frames = append(frames, &Trace{
			Type: FrameTypeReward,
			RewardValue: &RewardAction{
				Author:     u.Coinbase,
				RewardType: RewardTypeUncle,
				Value:      bigFromU256(v),
			},
			TraceAddr: []int{},
		})
	}

	return frames
}
