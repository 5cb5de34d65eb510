package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameAction names an outbound frame.
type FrameAction string

const (
	// ActionInput carries keystrokes for a terminal.
	ActionInput FrameAction = "input"
	// ActionResize carries the committed terminal geometry.
	ActionResize FrameAction = "resize"
)

// Frame is the outbound message sent over the shared transport.
type Frame struct {
	Action FrameAction `json:"action"`
	Data   FrameData   `json:"data"`
}

// FrameData is the payload of an outbound frame.
type FrameData struct {
	Value      string     `json:"value,omitempty"`
	TerminalID TerminalID `json:"terminalId"`
	Cols       int        `json:"cols,omitempty"`
	Rows       int        `json:"rows,omitempty"`
}

// InputFrame builds an input frame addressed to id.
func InputFrame(id TerminalID, value string) Frame {
	return Frame{Action: ActionInput, Data: FrameData{Value: value, TerminalID: id}}
}

// ResizeFrame builds a geometry frame addressed to id.
func ResizeFrame(id TerminalID, geometry Geometry) Frame {
	return Frame{Action: ActionResize, Data: FrameData{TerminalID: id, Cols: geometry.Cols, Rows: geometry.Rows}}
}

// ParseFrame decodes an outbound frame, as received by a process host.
func ParseFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Data.TerminalID == "" {
		return frame, ErrMissingTerminalID
	}
	switch frame.Action {
	case ActionInput, ActionResize:
	default:
		return frame, fmt.Errorf("%w: unknown action %q", ErrMalformedFrame, frame.Action)
	}
	return frame, nil
}

// RemoteKind classifies an inbound frame.
type RemoteKind int

const (
	// RemoteUnknown is a frame that could not be classified.
	RemoteUnknown RemoteKind = iota
	// RemoteData carries terminal output.
	RemoteData
	// RemoteExit signals the remote process ended.
	RemoteExit
	// RemoteError carries an error reported by the process host.
	RemoteError
)

func (k RemoteKind) String() string {
	switch k {
	case RemoteData:
		return "data"
	case RemoteExit:
		return "exit"
	case RemoteError:
		return "error"
	default:
		return "unknown"
	}
}

// RemoteFrame is a decoded inbound frame.
type RemoteFrame struct {
	TerminalID TerminalID
	Kind       RemoteKind
	Output     []byte
	Message    string
}

type wireRemoteFrame struct {
	TerminalID TerminalID      `json:"terminal_id"`
	Action     string          `json:"action,omitempty"`
	Type       string          `json:"type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ParseRemoteFrame decodes an inbound frame from the shared stream. When the
// envelope decodes but the payload does not conform, the returned frame still
// carries TerminalID so callers can route before reporting the error.
func ParseRemoteFrame(raw []byte) (RemoteFrame, error) {
	var wire wireRemoteFrame
	if err := json.Unmarshal(raw, &wire); err != nil {
		return RemoteFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	frame := RemoteFrame{TerminalID: wire.TerminalID}
	if wire.TerminalID == "" {
		return frame, ErrMissingTerminalID
	}
	switch {
	case wire.Action == "error":
		frame.Kind = RemoteError
		frame.Message = decodeErrorMessage(wire.Data)
		return frame, nil
	case wire.Type == "exit":
		frame.Kind = RemoteExit
		return frame, nil
	case len(wire.Data) > 0:
		var text string
		if err := json.Unmarshal(wire.Data, &text); err != nil {
			return frame, fmt.Errorf("%w: data is not a string", ErrMalformedFrame)
		}
		frame.Kind = RemoteData
		frame.Output = []byte(text)
		return frame, nil
	default:
		return frame, fmt.Errorf("%w: no data, exit or error payload", ErrMalformedFrame)
	}
}

func decodeErrorMessage(data json.RawMessage) string {
	if len(data) == 0 {
		return "unknown error"
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if strings.TrimSpace(obj.Message) != "" {
			return obj.Message
		}
		if strings.TrimSpace(obj.Error) != "" {
			return obj.Error
		}
	}
	return string(data)
}

// EncodeRemoteFrame encodes an inbound frame the way a process host emits it.
func EncodeRemoteFrame(frame RemoteFrame) ([]byte, error) {
	wire := wireRemoteFrame{TerminalID: frame.TerminalID}
	switch frame.Kind {
	case RemoteData:
		data, err := json.Marshal(string(frame.Output))
		if err != nil {
			return nil, err
		}
		wire.Data = data
	case RemoteExit:
		wire.Type = "exit"
	case RemoteError:
		data, err := json.Marshal(map[string]string{"message": frame.Message})
		if err != nil {
			return nil, err
		}
		wire.Action = "error"
		wire.Data = data
	default:
		return nil, fmt.Errorf("%w: cannot encode %s frame", ErrMalformedFrame, frame.Kind)
	}
	return json.Marshal(wire)
}
