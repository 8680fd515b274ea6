// Package whatsapp implements the WhatsApp transport on top of whatsmeow.
// Each channel gets its own credential store on disk, so one process can
// run any number of WhatsApp channels side by side.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for whatsmeow
	"github.com/parleybot/parley/internal/channel/manager"
	"github.com/parleybot/parley/pkg/models"
)

// ChannelType is the type identifier WhatsApp channels are created with.
const ChannelType = "whatsapp"

// Transport opens WhatsApp sessions.
type Transport struct {
	dataDir string
	logger  *slog.Logger
}

// NewTransport creates the WhatsApp transport. Credential stores live
// under dataDir, one SQLite database per channel.
func NewTransport(dataDir string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{dataDir: dataDir, logger: logger.With("channel_type", ChannelType)}
}

func (t *Transport) Type() string        { return ChannelType }
func (t *Transport) DisplayName() string { return "WhatsApp" }

func (t *Transport) storePath(channelID string) string {
	return filepath.Join(t.dataDir, channelID+".db")
}

// Open connects a channel to WhatsApp. A channel with stored credentials
// resumes its session; a fresh channel starts the QR pairing flow and
// reports each code through the event stream.
func (t *Transport) Open(ctx context.Context, ch *models.Channel) (manager.Session, error) {
	if err := os.MkdirAll(t.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := t.storePath(ch.ID)
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	sess := &session{
		channelID: ch.ID,
		client:    client,
		store:     container,
		events:    make(chan manager.Event, 64),
		logger:    t.logger.With("channel_id", ch.ID),
	}
	client.AddEventHandler(sess.handleEvent)

	if client.Store.ID == nil {
		// No credentials yet: the QR channel must be requested before
		// connecting.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("request QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			container.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
		go sess.relayQR(qrChan)
	} else {
		if err := client.Connect(); err != nil {
			container.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
	}
	return sess, nil
}

// RemoveLocalState deletes the channel's credential store, including the
// SQLite sidecar files.
func (t *Transport) RemoveLocalState(channelID string) error {
	path := t.storePath(channelID)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove credential store: %w", err)
		}
	}
	return nil
}
