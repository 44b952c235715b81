package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		code ErrorCode
		typ  string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, 0, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, 0, "notification"},
		{"response", `{"jsonrpc":"2.0","id":"a","result":{}}`, 0, "response"},
		{"syntax", `{"jsonrpc":`, ErrorCodeParseError, ""},
		{"version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrorCodeInvalidRequest, ""},
		{"empty", `{"jsonrpc":"2.0","id":1}`, ErrorCodeInvalidRequest, ""},
		{"bad id", `{"jsonrpc":"2.0","id":true,"method":"ping"}`, ErrorCodeInvalidRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, rpcErr := Decode([]byte(tc.in))
			if tc.code != 0 {
				if rpcErr == nil || rpcErr.Code != tc.code {
					t.Fatalf("want code %d, got %+v", tc.code, rpcErr)
				}
				return
			}
			if rpcErr != nil {
				t.Fatalf("unexpected error: %v", rpcErr)
			}
			if got := m.Type(); got != tc.typ {
				t.Fatalf("want type %q, got %q", tc.typ, got)
			}
		})
	}
}

func TestDecodeRecoversIDOnInvalidRequest(t *testing.T) {
	m, rpcErr := Decode([]byte(`{"jsonrpc":"1.0","id":"req-7","method":"ping"}`))
	if rpcErr == nil {
		t.Fatalf("expected error")
	}
	if m == nil || m.ID.String() != "req-7" {
		t.Fatalf("want id req-7, got %+v", m)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, in := range []string{`"123"`, `42`, `1.5`, `null`} {
		var id RequestID
		if err := json.Unmarshal([]byte(in), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal %s: %v", in, err)
		}
		if string(out) != in {
			t.Fatalf("want %s, got %s", in, out)
		}
	}
}

func TestErrorResponseShape(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeMethodNotFound, "method not found", nil)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"},"id":null}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}
