package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/storage"
	"github.com/parleybot/parley/pkg/models"
)

func newTestService(t *testing.T) (*Service, bus.Bus, storage.StoreSet, *models.User, *models.Bot) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	b := bus.NewMemoryBus(logger)
	t.Cleanup(func() { b.Close() })

	stores := storage.NewMemoryStores().StoreSet()
	user := models.NewUser("Ada", "ada@example.com")
	bot := models.NewBot("Concierge", user.ID)
	ctx := context.Background()
	if err := stores.Users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := stores.Bots.Create(ctx, bot); err != nil {
		t.Fatalf("create bot: %v", err)
	}

	svc := NewService(b, stores, logger)
	svc.RegisterChannelType("whatsapp", "WhatsApp")
	return svc, b, stores, user, bot
}

func TestCreatePublishesCreatedEvent(t *testing.T) {
	svc, b, _, user, bot := newTestService(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	_, err := b.Subscribe(ctx, TopicCreated("whatsapp"), ChannelSchema, func(ctx context.Context, env bus.Envelope) error {
		var ch models.Channel
		if err := env.Decode(&ch); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, ch.ID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ch, err := svc.Create(ctx, CreateChannelInput{
		Name:    "Main",
		Contact: "+15550100",
		Type:    "whatsapp",
		UserID:  user.ID,
		BotID:   bot.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.Status != models.StatusDisconnected {
		t.Fatalf("initial status = %q, want %q", ch.Status, models.StatusDisconnected)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("created event not delivered, saw %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen[0] != ch.ID {
		t.Fatalf("created event for %q, want %q", seen[0], ch.ID)
	}
}

func TestCreateValidatesBindings(t *testing.T) {
	svc, _, _, user, bot := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateChannelInput
		want error
	}{
		{
			name: "unregistered type",
			in:   CreateChannelInput{Name: "x", Type: "telegram", UserID: user.ID, BotID: bot.ID},
			want: ErrChannelTypeNotAvailable,
		},
		{
			name: "missing bot",
			in:   CreateChannelInput{Name: "x", Type: "whatsapp", UserID: user.ID, BotID: "nope"},
			want: ErrBotNotFound,
		},
		{
			name: "missing user",
			in:   CreateChannelInput{Name: "x", Type: "whatsapp", UserID: "nope", BotID: bot.ID},
			want: ErrUserNotFound,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, c.in); !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestFindByIDNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	if _, err := svc.FindByID(context.Background(), "missing"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrChannelNotFound)
	}
}

func TestDeleteRemovesAndAnnounces(t *testing.T) {
	svc, b, stores, user, bot := newTestService(t)
	ctx := context.Background()

	ch, err := svc.Create(ctx, CreateChannelInput{
		Name: "Main", Type: "whatsapp", UserID: user.ID, BotID: bot.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed := make(chan string, 1)
	if _, err := b.Subscribe(ctx, TopicRemoved("whatsapp"), ChannelSchema, func(ctx context.Context, env bus.Envelope) error {
		var got models.Channel
		if err := env.Decode(&got); err != nil {
			return err
		}
		select {
		case removed <- got.ID:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := svc.Delete(ctx, ch.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := stores.Channels.Get(ctx, ch.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("channel still present after delete: %v", err)
	}
	select {
	case id := <-removed:
		if id != ch.ID {
			t.Fatalf("removed event for %q, want %q", id, ch.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("removed event not delivered")
	}

	if err := svc.Delete(ctx, ch.ID); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("second delete err = %v, want %v", err, ErrChannelNotFound)
	}
}

func TestRegisterChannelTypeIdempotent(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	svc.RegisterChannelType("whatsapp", "WhatsApp")
	if got := len(svc.AvailableTypes()); got != 1 {
		t.Fatalf("available types = %d, want 1", got)
	}
}
