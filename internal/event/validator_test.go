package event

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeJoinRoom(t *testing.T) {
	d := NewDecoder()
	in, err := d.Decode([]byte(`{"type":"join-room","payload":{"projectId":"P1","userId":"u1","userName":"Ada","color":"#ff0000"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Type != JoinRoom || in.ProjectID != "P1" {
		t.Fatalf("Decode() = %+v", in)
	}
	if in.Join == nil || in.Join.UserID != "u1" || in.Join.UserName != "Ada" {
		t.Fatalf("join payload = %+v", in.Join)
	}
}

func TestDecodeKeepsExtraFields(t *testing.T) {
	d := NewDecoder()
	in, err := d.Decode([]byte(`{"type":"cursor-move","payload":{"projectId":"P1","x":12.5,"y":3,"userName":"Ada"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Data["x"] != 12.5 || in.Data["userName"] != "Ada" {
		t.Fatalf("extra fields lost: %v", in.Data)
	}
}

func TestDecodeSanitizesFreeText(t *testing.T) {
	d := NewDecoder()
	in, err := d.Decode([]byte(`{"type":"chat-message","payload":{"projectId":"P1","userName":"Ada","message":"<script>alert(1)</script>hello","meta":{"tags":["<b>x</b>"]}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := in.Data["message"]; got != "hello" {
		t.Errorf("message = %q, want hello", got)
	}
	tags := in.Data["meta"].(map[string]any)["tags"].([]any)
	if tags[0] != "x" {
		t.Errorf("nested tag = %q, want x", tags[0])
	}
}

func TestDecodeKeepsPlainTextCharacters(t *testing.T) {
	d := NewDecoder()
	tests := []struct {
		in   string
		want string
	}{
		{`O'Brien & Co`, `O'Brien & Co`},
		{`say "hi" <b>now</b>`, `say "hi" now`},
		{`1 < 2 > 0`, `1 < 2 > 0`},
	}
	for _, tt := range tests {
		msg, err := Encode(ChatMessage, map[string]any{"projectId": "P1", "userName": "Ada", "message": tt.in})
		if err != nil {
			t.Fatal(err)
		}
		in, err := d.Decode(msg)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", tt.in, err)
		}
		if got := in.Data["message"]; got != tt.want {
			t.Errorf("message %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeDoesNotSanitizeCanvasData(t *testing.T) {
	d := NewDecoder()
	in, err := d.Decode([]byte(`{"type":"canvas-update","payload":{"projectId":"P1","updateType":"add","data":{"id":"t1","text":"<b>bold</b>"}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := in.Update.Data["text"]; got != "<b>bold</b>" {
		t.Errorf("canvas text = %q, should be relayed untouched", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"not json", `{`, ErrInvalidPayload},
		{"missing type", `{"payload":{"projectId":"P1"}}`, ErrInvalidPayload},
		{"unknown type", `{"type":"project:explode","payload":{"projectId":"P1"}}`, ErrUnknownEvent},
		{"missing payload", `{"type":"cursor-hide"}`, ErrInvalidPayload},
		{"null payload", `{"type":"cursor-hide","payload":null}`, ErrInvalidPayload},
		{"array payload", `{"type":"cursor-hide","payload":[1,2]}`, ErrInvalidPayload},
		{"missing project", `{"type":"comment-add","payload":{"comment":{}}}`, ErrInvalidPayload},
		{"join without user", `{"type":"join-room","payload":{"projectId":"P1"}}`, ErrInvalidPayload},
		{"update without object id", `{"type":"canvas-update","payload":{"projectId":"P1","updateType":"update","data":{}}}`, ErrInvalidPayload},
		{"delete without object id", `{"type":"canvas-update","payload":{"projectId":"P1","updateType":"delete"}}`, ErrInvalidPayload},
		{"add without data", `{"type":"canvas-update","payload":{"projectId":"P1","updateType":"add"}}`, ErrInvalidPayload},
		{"add with scalar data", `{"type":"canvas-update","payload":{"projectId":"P1","updateType":"add","data":"rect"}}`, ErrInvalidPayload},
		{"missing update type", `{"type":"canvas-update","payload":{"projectId":"P1","data":{}}}`, ErrInvalidPayload},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode([]byte(tt.msg))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeAcceptsUnknownUpdateType(t *testing.T) {
	d := NewDecoder()
	in, err := d.Decode([]byte(`{"type":"canvas-update","payload":{"projectId":"P1","updateType":"reorder","objectId":"o1"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Update.UpdateType != "reorder" {
		t.Fatalf("UpdateType = %q", in.Update.UpdateType)
	}
}

func TestEncode(t *testing.T) {
	msg, err := Encode(CanvasSync, map[string]any{"objects": []any{}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != CanvasSync || string(env.Payload) != `{"objects":[]}` {
		t.Fatalf("Encode() = %s", msg)
	}
}

func TestKnown(t *testing.T) {
	if !Known(CanvasSyncRequest) {
		t.Error("canvas-sync-request should be known")
	}
	if Known(UserList) {
		t.Error("user-list is outbound only")
	}
}
