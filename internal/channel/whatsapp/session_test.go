package whatsapp

import (
	"log/slog"
	"strings"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/parleybot/parley/internal/channel/manager"
)

func newTestSession() *session {
	return &session{
		channelID: "ch-1",
		events:    make(chan manager.Event, 8),
		logger:    slog.New(slog.DiscardHandler),
	}
}

func inbound(t *testing.T, s *session) manager.MessageEvent {
	t.Helper()
	select {
	case ev := <-s.events:
		msg, ok := ev.(manager.MessageEvent)
		if !ok {
			t.Fatalf("unexpected event %T", ev)
		}
		return msg
	default:
		t.Fatal("no message event emitted")
	}
	return manager.MessageEvent{}
}

func TestHandleMessagePlainText(t *testing.T) {
	s := newTestSession()
	chat := types.NewJID("15550123", types.DefaultUserServer)

	s.handleMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat},
			PushName:      "Sam",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	msg := inbound(t, s)
	if msg.Text != "hello" {
		t.Fatalf("text = %q, want %q", msg.Text, "hello")
	}
	if msg.RemoteID != "15550123@s.whatsapp.net" {
		t.Fatalf("remote id = %q", msg.RemoteID)
	}
	if msg.RemoteName != "Sam" {
		t.Fatalf("remote name = %q", msg.RemoteName)
	}
	if msg.RemotePhone != "15550123" {
		t.Fatalf("remote phone = %q, want %q", msg.RemotePhone, "15550123")
	}
}

func TestHandleMessageNonTextFallsBackToJSON(t *testing.T) {
	s := newTestSession()
	chat := types.NewJID("15550123", types.DefaultUserServer)

	s.handleMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat},
		},
		Message: &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("sunset")},
		},
	})

	msg := inbound(t, s)
	if !strings.Contains(msg.Text, "sunset") {
		t.Fatalf("JSON fallback lost the payload: %q", msg.Text)
	}
	if msg.RemoteName != "" {
		t.Fatalf("remote name = %q, want empty", msg.RemoteName)
	}
	if msg.RemotePhone != "15550123" {
		t.Fatalf("remote phone = %q, want %q", msg.RemotePhone, "15550123")
	}
}

func TestHandleMessageNilPayloadDropped(t *testing.T) {
	s := newTestSession()

	s.handleMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat: types.NewJID("15550123", types.DefaultUserServer),
			},
		},
	})

	select {
	case ev := <-s.events:
		t.Fatalf("unexpected event %T", ev)
	default:
	}
}

func TestHandleMessageBroadcastFlag(t *testing.T) {
	s := newTestSession()
	chat := types.NewJID("status", types.BroadcastServer)

	s.handleMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat},
		},
		Message: &waE2E.Message{Conversation: proto.String("story")},
	})

	if msg := inbound(t, s); !msg.Broadcast {
		t.Fatal("broadcast message not flagged")
	}
}
