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

// Stack is a minimal "top at the end" EVM stack snapshot. It satisfies
// StackPeeker with the top-at-zero/deeper-at-negative convention §4.1
// and §4.9 describe; real interpreters may expose a pointer-based stack
// with the same addressing instead.
type Stack struct {
	data []uint256Word
}

// uint256Word avoids importing holiman/uint256 here just for storage;
// callers build a Stack from whatever word type the interpreter uses.
type uint256Word = [32]byte

// NewStack builds a Stack snapshot bottom-to-top from words.
func NewStack(words ...[32]byte) *Stack {
	return &Stack{data: words}
}

// Height is the number of words currently on the stack.
func (s *Stack) Height() int {
	return len(s.data)
}

// At implements StackPeeker: 0 is the top, -1 one below it, and so on.
func (s *Stack) At(offsetFromTop int) *[32]byte {
	idx := len(s.data) - 1 + offsetFromTop
	if idx < 0 || idx >= len(s.data) {
		var zero [32]byte
		return &zero
	}
	return &s.data[idx]
}

// Top returns the top n words, bottom-to-top, as TraceEx.Stack expects.
// It is used to populate trace_ex.stack with the words an op is about
// to push, read off the stack after the op has executed.
func (s *Stack) Top(n int) [][32]byte {
	if n <= 0 {
		return nil
	}
	if n > len(s.data) {
		n = len(s.data)
	}
	out := make([][32]byte, n)
	copy(out, s.data[len(s.data)-n:])
	return out
}
