package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	root := buildRootCmd()
	want := map[string]bool{
		"serve":   false,
		"channel": false,
		"user":    false,
		"bot":     false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestChannelCmdHasLifecycleCommands(t *testing.T) {
	root := buildRootCmd()
	var channelCmd = root
	for _, cmd := range root.Commands() {
		if cmd.Name() == "channel" {
			channelCmd = cmd
		}
	}
	if channelCmd == root {
		t.Fatal("channel command missing")
	}

	want := map[string]bool{
		"list": false, "create": false, "remove": false, "pair": false, "unpair": false,
	}
	for _, cmd := range channelCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing channel subcommand %q", name)
		}
	}
}

// pair and unpair are cross-process commands: they publish to the serve
// process over the bus, which the in-memory driver can never reach.
func TestPairCommandsRejectMemoryBus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	cfg := "bus:\n  driver: memory\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := runChannelPair(context.Background(), path, "ch-1")
	if err == nil || !strings.Contains(err.Error(), "amqp") {
		t.Fatalf("pair error = %v, want amqp driver requirement", err)
	}

	err = runChannelUnpair(context.Background(), path, "ch-1")
	if err == nil || !strings.Contains(err.Error(), "amqp") {
		t.Fatalf("unpair error = %v, want amqp driver requirement", err)
	}
}
