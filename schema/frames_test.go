package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRemoteFrameKinds(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		kind    RemoteKind
		output  string
		message string
	}{
		{"data", `{"terminal_id":"t1","data":"hello\r\n"}`, RemoteData, "hello\r\n", ""},
		{"exit", `{"terminal_id":"t1","type":"exit"}`, RemoteExit, "", ""},
		{"error-string", `{"terminal_id":"t1","action":"error","data":"boom"}`, RemoteError, "", "boom"},
		{"error-object", `{"terminal_id":"t1","action":"error","data":{"message":"no shell"}}`, RemoteError, "", "no shell"},
		{"error-without-data", `{"terminal_id":"t1","action":"error"}`, RemoteError, "", "unknown error"},
	}
	for _, tc := range cases {
		frame, err := ParseRemoteFrame([]byte(tc.raw))
		if err != nil {
			t.Fatalf("case %q: unexpected error: %v", tc.name, err)
		}
		if frame.TerminalID != "t1" || frame.Kind != tc.kind {
			t.Fatalf("case %q: unexpected frame %+v", tc.name, frame)
		}
		if string(frame.Output) != tc.output || frame.Message != tc.message {
			t.Fatalf("case %q: unexpected payload %+v", tc.name, frame)
		}
	}
}

func TestParseRemoteFrameErrors(t *testing.T) {
	if _, err := ParseRemoteFrame([]byte(`not json`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := ParseRemoteFrame([]byte(`{"data":"x"}`)); !errors.Is(err, ErrMissingTerminalID) {
		t.Fatalf("expected missing id, got %v", err)
	}
	frame, err := ParseRemoteFrame([]byte(`{"terminal_id":"t2","data":{"bytes":1}}`))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
	if frame.TerminalID != "t2" {
		t.Fatalf("expected terminal id kept for routing, got %q", frame.TerminalID)
	}
	if _, err := ParseRemoteFrame([]byte(`{"terminal_id":"t2"}`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed for empty frame, got %v", err)
	}
}

func TestEncodeRemoteFrameParses(t *testing.T) {
	for _, frame := range []RemoteFrame{
		{TerminalID: "t1", Kind: RemoteData, Output: []byte("\x1b[1mhi")},
		{TerminalID: "t1", Kind: RemoteExit},
		{TerminalID: "t1", Kind: RemoteError, Message: "spawn failed"},
	} {
		raw, err := EncodeRemoteFrame(frame)
		if err != nil {
			t.Fatalf("encode %s: %v", frame.Kind, err)
		}
		got, err := ParseRemoteFrame(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", frame.Kind, err)
		}
		if got.Kind != frame.Kind || string(got.Output) != string(frame.Output) || got.Message != frame.Message {
			t.Fatalf("expected %+v, got %+v", frame, got)
		}
	}
	if _, err := EncodeRemoteFrame(RemoteFrame{TerminalID: "t1"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestFrameWireShape(t *testing.T) {
	data, err := json.Marshal(ResizeFrame("t9", Geometry{Cols: 120, Rows: 40}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"action":"resize","data":{"terminalId":"t9","cols":120,"rows":40}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
	data, err = json.Marshal(InputFrame("t9", "ls\r"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"action":"input","data":{"value":"ls\r","terminalId":"t9"}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"action":"input","data":{"value":"x","terminalId":"t1"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if frame.Action != ActionInput || frame.Data.Value != "x" {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if _, err := ParseFrame([]byte(`{"action":"input","data":{}}`)); !errors.Is(err, ErrMissingTerminalID) {
		t.Fatalf("expected missing id, got %v", err)
	}
	if _, err := ParseFrame([]byte(`{"action":"spawn","data":{"terminalId":"t1"}}`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed action, got %v", err)
	}
}
