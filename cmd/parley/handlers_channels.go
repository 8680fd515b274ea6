// handlers_channels.go implements the channel, user and bot commands.
package main

import (
	"context"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/channel/pairing"
	"github.com/parleybot/parley/internal/channel/whatsapp"
	"github.com/parleybot/parley/pkg/models"
)

// newChannelService builds the channel service with the compiled-in
// transports registered, so channel creation validates against the same
// set of types the serve process runs.
func newChannelService(rt *runtime) *channel.Service {
	svc := channel.NewService(rt.bus, rt.stores, rt.logger)
	if rt.cfg.WhatsApp.Enabled {
		svc.RegisterChannelType(whatsapp.ChannelType, "WhatsApp")
	}
	return svc
}

func runChannelList(ctx context.Context, configPath, channelType string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	var chans []*models.Channel
	if channelType != "" {
		chans, err = rt.stores.Channels.ListByType(ctx, channelType)
	} else {
		chans, err = rt.stores.Channels.List(ctx)
	}
	if err != nil {
		return err
	}

	if len(chans) == 0 {
		fmt.Println("no channels")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-10s  %-12s  %s\n", "ID", "NAME", "TYPE", "STATUS", "PAIRED")
	for _, ch := range chans {
		fmt.Printf("%-36s  %-20s  %-10s  %-12s  %t\n", ch.ID, ch.Name, ch.Type, ch.Status, ch.Paired())
	}
	return nil
}

func runChannelCreate(ctx context.Context, configPath, name, contact, channelType, userID, botID string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := newChannelService(rt)
	ch, err := svc.Create(ctx, channel.CreateChannelInput{
		Name:    name,
		Contact: contact,
		Type:    channelType,
		UserID:  userID,
		BotID:   botID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created channel %s (%s)\n", ch.ID, ch.Type)
	return nil
}

func runChannelRemove(ctx context.Context, configPath, channelID string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := newChannelService(rt)
	if err := svc.Delete(ctx, channelID); err != nil {
		return err
	}
	fmt.Printf("removed channel %s\n", channelID)
	return nil
}

func runChannelPair(ctx context.Context, configPath, channelID string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := requireSharedBus(rt, "pair"); err != nil {
		return err
	}

	svc := newChannelService(rt)
	ch, err := svc.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Paired() {
		fmt.Printf("channel %s is already paired\n", channelID)
		return nil
	}

	coord := pairing.NewCoordinator(rt.bus, rt.stores.Channels, rt.logger,
		pairing.WithTimeout(rt.cfg.Pairing.Timeout))

	fmt.Printf("requesting pairing for channel %s...\n", channelID)
	data, err := coord.RequestPairing(ctx, channelID)
	if err != nil {
		return err
	}

	switch data.Kind {
	case models.PairingVisualCode:
		qr, err := qrcode.New(data.Payload, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("render pairing code: %w", err)
		}
		fmt.Println(qr.ToSmallString(false))
		fmt.Println("scan the code with the messaging app to finish pairing")
	default:
		fmt.Printf("enter this code in the messaging app: %s\n", data.Payload)
	}
	return nil
}

func runChannelUnpair(ctx context.Context, configPath, channelID string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := requireSharedBus(rt, "unpair"); err != nil {
		return err
	}

	svc := newChannelService(rt)
	ch, err := svc.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.Paired() {
		fmt.Printf("channel %s is not paired\n", channelID)
		return nil
	}

	coord := pairing.NewCoordinator(rt.bus, rt.stores.Channels, rt.logger)
	if err := coord.Unpair(ctx, channelID); err != nil {
		return err
	}
	fmt.Printf("unpaired channel %s\n", channelID)
	return nil
}

// requireSharedBus rejects pair and unpair under the in-memory bus: those
// commands talk to the connection manager inside a running serve process,
// which an in-process bus can never reach.
func requireSharedBus(rt *runtime, command string) error {
	if rt.cfg.Bus.Driver == "amqp" {
		return nil
	}
	return fmt.Errorf("channel %s needs bus.driver \"amqp\": the %q bus is in-process and cannot reach a running serve process", command, rt.cfg.Bus.Driver)
}

func runUserCreate(ctx context.Context, configPath, name, email string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	user := models.NewUser(name, email)
	if err := rt.stores.Users.Create(ctx, user); err != nil {
		return err
	}
	fmt.Printf("created user %s\n", user.ID)
	return nil
}

func runBotCreate(ctx context.Context, configPath, name, userID string) error {
	rt, err := openRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.stores.Users.Get(ctx, userID); err != nil {
		return fmt.Errorf("look up user %s: %w", userID, err)
	}
	bot := models.NewBot(name, userID)
	if err := rt.stores.Bots.Create(ctx, bot); err != nil {
		return err
	}
	fmt.Printf("created bot %s\n", bot.ID)
	return nil
}
