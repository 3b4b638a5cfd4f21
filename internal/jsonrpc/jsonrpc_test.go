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

package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequest_RoundTrip(t *testing.T) {
	req := NewRequest("tools/call", map[string]any{"name": "echo"}, 7)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, json.Unmarshal(data, &got))

	if got.JSONRPC != Version {
		t.Errorf("JSONRPC = %q, want %q", got.JSONRPC, Version)
	}
	if got.Method != "tools/call" {
		t.Errorf("Method = %q, want %q", got.Method, "tools/call")
	}
	require.NotNil(t, got.ID)
	if *got.ID != 7 {
		t.Errorf("ID = %d, want 7", *got.ID)
	}
}

func TestNotification_OmitsID(t *testing.T) {
	n := NewNotification("notifications/initialized", nil)
	require.True(t, n.IsNotification())

	data, err := json.Marshal(n)
	require.NoError(t, err)

	// The id key must be absent, not null.
	if strings.Contains(string(data), `"id"`) {
		t.Errorf("notification wire form contains an id key: %s", data)
	}

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	if _, ok := raw["id"]; ok {
		t.Error("parsed notification has an id field")
	}
}

func TestMessage_Classification(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		isResponse bool
	}{
		{
			name:       "result response",
			line:       `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`,
			isResponse: true,
		},
		{
			name:       "error response",
			line:       `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"method not found"}}`,
			isResponse: true,
		},
		{
			name:       "server notification",
			line:       `{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`,
			isResponse: false,
		},
		{
			name:       "server request",
			line:       `{"jsonrpc":"2.0","id":9,"method":"sampling/createMessage"}`,
			isResponse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Message
			require.NoError(t, json.Unmarshal([]byte(tt.line), &msg))
			if msg.IsResponse() != tt.isResponse {
				t.Errorf("IsResponse() = %v, want %v", msg.IsResponse(), tt.isResponse)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	e := &Error{Code: CodeMethodNotFound, Message: "method not found"}
	want := "jsonrpc error -32601: method not found"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
