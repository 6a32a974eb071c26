package collab

import (
	"encoding/json"
	"fmt"

	"PNotepad/tools/errs"
)

// client -> server
const (
	FrameJoin  = "join"
	FrameEdit  = "edit"
	FrameSave  = "save"
	FrameLeave = "leave"
	FramePing  = "ping"
)

// server -> client ("edit" is shared with the inbound type)
const (
	FrameState = "state"
	FrameSaved = "saved"
	FrameError = "error"
	FramePong  = "pong"
)

// Frame is any inbound client frame. Text is a pointer so an edit that
// clears the notepad ("") can be told apart from a missing field.
type Frame struct {
	Type        string  `json:"type"`
	WorkspaceID string  `json:"workspace_id,omitempty"`
	Token       string  `json:"token,omitempty"`
	Text        *string `json:"text,omitempty"`
}

type StateFrame struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Text        string `json:"text"`
	Sequence    uint64 `json:"sequence"`
	Live        bool   `json:"live"`
}

type EditFrame struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Text        string `json:"text"`
	Sequence    uint64 `json:"sequence"`
}

type SavedFrame struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Sequence    uint64 `json:"sequence"`
}

type ErrorFrame struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Retryable bool   `json:"retryable"`
}

type pongFrame struct {
	Type string `json:"type"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrBadRequest.WrapMsg(fmt.Sprintf("unmarshal frame failed: %v", err))
	}
	if f.Type == "" {
		return nil, errs.ErrBadRequest.WrapMsg("frame type missing")
	}
	return &f, nil
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// only plain structs of strings and numbers are encoded here
		panic(err)
	}
	return b
}

func BuildState(s Snapshot) []byte {
	return encode(StateFrame{
		Type:        FrameState,
		WorkspaceID: s.WorkspaceID,
		Text:        s.Text,
		Sequence:    s.Sequence,
		Live:        s.Live,
	})
}

func BuildEdit(ev EditEvent) []byte {
	return encode(EditFrame{
		Type:        FrameEdit,
		WorkspaceID: ev.WorkspaceID,
		Text:        ev.Text,
		Sequence:    ev.Sequence,
	})
}

func BuildSaved(workspaceID string, seq uint64) []byte {
	return encode(SavedFrame{Type: FrameSaved, WorkspaceID: workspaceID, Sequence: seq})
}

func BuildPong() []byte {
	return encode(pongFrame{Type: FramePong})
}

// BuildError renders err for the client. Detail stays server side.
func BuildError(err error) []byte {
	f := ErrorFrame{Type: FrameError, Code: errs.ServerInternalError, Msg: errs.ErrInternal.Msg}
	if ce, ok := errs.As(err); ok {
		f.Code, f.Msg, f.Retryable = ce.Code, ce.Msg, ce.Retryable
	}
	return encode(f)
}
