// Copyright 2026 Kyle Braxton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferEviction(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 1; i <= 5; i++ {
		rb.Add(LogEntry{Message: fmt.Sprintf("line %d", i)})
	}

	require.Equal(t, 3, rb.Count())
	all := rb.GetAll()
	require.Equal(t, "line 3", all[0].Message)
	require.Equal(t, "line 5", all[2].Message)
}

func TestRingBufferGetLast(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 1; i <= 4; i++ {
		rb.Add(LogEntry{Message: fmt.Sprintf("line %d", i)})
	}

	last := rb.GetLast(2)
	require.Len(t, last, 2)
	require.Equal(t, "line 3", last[0].Message)
	require.Equal(t, "line 4", last[1].Message)

	// Asking for more than buffered returns everything.
	require.Len(t, rb.GetLast(100), 4)
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer(5)
	rb.Add(LogEntry{Message: "x"})
	rb.Clear()
	require.Zero(t, rb.Count())
	require.Empty(t, rb.GetAll())
}

func TestLogCapture(t *testing.T) {
	lc := NewLogCapture()
	lc.Add("alpha", "first")
	lc.Add("alpha", "second")
	lc.Add("beta", "other")

	entries := lc.Get("alpha", 0)
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].Message)
	require.Equal(t, "stderr", entries[0].Source)
	require.False(t, entries[0].Timestamp.IsZero())

	require.Len(t, lc.Get("alpha", 1), 1)
	require.Empty(t, lc.Get("unknown", 0))

	lc.Remove("alpha")
	require.Empty(t, lc.Get("alpha", 0))
	require.Len(t, lc.Get("beta", 0), 1)
}
