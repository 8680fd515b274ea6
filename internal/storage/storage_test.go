package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parleybot/parley/pkg/models"
)

func storeSets(t *testing.T) map[string]StoreSet {
	t.Helper()

	sqlite, err := NewSQLiteStores(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStores() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]StoreSet{
		"memory": NewMemoryStores().StoreSet(),
		"sqlite": sqlite,
	}
}

func TestChannelStoreRoundTrip(t *testing.T) {
	for name, stores := range storeSets(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ch := models.NewChannel("Main", "+15550100", "whatsapp", "user-1", "bot-1")

			if err := stores.Channels.Create(ctx, ch); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			got, err := stores.Channels.Get(ctx, ch.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Name != "Main" || got.Status != models.StatusDisconnected {
				t.Fatalf("got %+v", got)
			}
			if got.SessionID != nil {
				t.Fatal("fresh channel must have nil session id")
			}

			sid := ch.ID + "|device-1"
			got.SessionID = &sid
			got.Status = models.StatusOpen
			if err := stores.Channels.Update(ctx, got); err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			bySession, err := stores.Channels.GetBySessionID(ctx, sid)
			if err != nil {
				t.Fatalf("GetBySessionID() error = %v", err)
			}
			if bySession.ID != ch.ID || bySession.Status != models.StatusOpen {
				t.Fatalf("got %+v", bySession)
			}
		})
	}
}

func TestChannelStoreNotFound(t *testing.T) {
	for name, stores := range storeSets(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := stores.Channels.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() error = %v, want ErrNotFound", err)
			}
			if _, err := stores.Channels.GetBySessionID(ctx, "no-session"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetBySessionID() error = %v, want ErrNotFound", err)
			}
			if err := stores.Channels.Update(ctx, models.NewChannel("x", "c", "whatsapp", "u", "b")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update() error = %v, want ErrNotFound", err)
			}
			if err := stores.Channels.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Delete() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestChannelStoreListByType(t *testing.T) {
	for name, stores := range storeSets(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, chType := range []string{"whatsapp", "whatsapp", "other"} {
				if err := stores.Channels.Create(ctx, models.NewChannel("n", "c", chType, "u", "b")); err != nil {
					t.Fatalf("Create() error = %v", err)
				}
			}

			wa, err := stores.Channels.ListByType(ctx, "whatsapp")
			if err != nil {
				t.Fatalf("ListByType() error = %v", err)
			}
			if len(wa) != 2 {
				t.Fatalf("got %d whatsapp channels, want 2", len(wa))
			}

			all, err := stores.Channels.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("got %d channels, want all 3 regardless of type", len(all))
			}
		})
	}
}

func TestChatStoreUniqueInternalIdentifier(t *testing.T) {
	for name, stores := range storeSets(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := models.ChatInternalIdentifier("ch-1", "555@s.whatsapp.net")

			if err := stores.Chats.Create(ctx, models.NewChat("ch-1", ident, "Alice", "555")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := stores.Chats.Create(ctx, models.NewChat("ch-1", ident, "Alice", "555")); err == nil {
				t.Fatal("expected duplicate internal identifier to fail")
			}

			chat, err := stores.Chats.GetByInternalIdentifier(ctx, ident)
			if err != nil {
				t.Fatalf("GetByInternalIdentifier() error = %v", err)
			}
			if chat.Name != "Alice" {
				t.Fatalf("got %+v", chat)
			}
		})
	}
}

func TestMessageStoreOrdersByCreation(t *testing.T) {
	for name, stores := range storeSets(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := models.NewChatMessage("chat-1", models.SenderRecipient, "hi")
			second := models.NewChatMessage("chat-1", models.SenderBot, "hello!")
			second.CreatedAt = first.CreatedAt.Add(1)

			if err := stores.Messages.Create(ctx, first); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := stores.Messages.Create(ctx, second); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			msgs, err := stores.Messages.ListByChat(ctx, "chat-1")
			if err != nil {
				t.Fatalf("ListByChat() error = %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("got %d messages, want 2", len(msgs))
			}
			if msgs[0].Content != "hi" || msgs[1].Content != "hello!" {
				t.Fatalf("wrong order: %q then %q", msgs[0].Content, msgs[1].Content)
			}
		})
	}
}
