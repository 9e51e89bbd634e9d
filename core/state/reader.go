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

// Package state holds the world-state reader collaborator (§6.1) and
// the per-request shadow (C2) this module layers over it. It does not
// persist or mutate the backing state.
package state

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-lib/common"
)

// Reader is the world-state reader collaborator (§6.1). Implementations
// are expected to be remote/IO-bound; the executor is responsible for
// yielding at reads, never the tracers.
type Reader interface {
	Exists(addr common.Address) (bool, error)
	GetBalance(addr common.Address) (uint256.Int, error)
	GetNonce(addr common.Address) (uint64, error)
	GetCode(addr common.Address) ([]byte, error)
	GetOriginalStorage(addr common.Address, key common.Hash) (common.Hash, error)
	GetCurrentStorage(addr common.Address, key common.Hash) (common.Hash, error)
	Touched() map[common.Address]struct{}
}
