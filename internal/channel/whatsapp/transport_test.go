package whatsapp

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveLocalState(t *testing.T) {
	dir := t.TempDir()
	tr := NewTransport(dir, slog.New(slog.DiscardHandler))

	base := filepath.Join(dir, "ch-1.db")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.WriteFile(base+suffix, []byte("x"), 0o600); err != nil {
			t.Fatalf("seed %s: %v", base+suffix, err)
		}
	}

	if err := tr.RemoveLocalState("ch-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if _, err := os.Stat(base + suffix); !os.IsNotExist(err) {
			t.Fatalf("%s still present", base+suffix)
		}
	}

	// Removing state that never existed is fine.
	if err := tr.RemoveLocalState("ch-2"); err != nil {
		t.Fatalf("remove missing state: %v", err)
	}
}

func TestStorePathPerChannel(t *testing.T) {
	tr := NewTransport("/data/whatsapp", slog.New(slog.DiscardHandler))
	a := tr.storePath("ch-a")
	b := tr.storePath("ch-b")
	if a == b {
		t.Fatal("channels must not share a credential store")
	}
	if filepath.Dir(a) != "/data/whatsapp" {
		t.Fatalf("store outside data dir: %s", a)
	}
}
