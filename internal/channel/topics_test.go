package channel

import (
	"testing"

	"github.com/parleybot/parley/pkg/models"
)

func TestTopicNames(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{TopicRequestPairing("whatsapp"), "message-channel.whatsapp.request-pairing"},
		{TopicPairingData("whatsapp", "ch-1"), "message-channel.whatsapp.pairing-data.ch-1"},
		{TopicUnpair("whatsapp"), "message-channel.whatsapp.unpair"},
		{TopicStatusUpdate("whatsapp", "ch-1"), "message-channel.whatsapp.status-update.ch-1"},
		{TopicOutputEvent("whatsapp"), "message-channel.whatsapp.output-event"},
		{TopicInputEvent("whatsapp"), "message-channel.whatsapp.input-event"},
		{TopicCreated("whatsapp"), "message-channel.whatsapp.created"},
		{TopicRemoved("whatsapp"), "message-channel.whatsapp.removed"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("topic %q, want %q", c.got, c.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		state ConnectionState
		want  models.ChannelStatus
	}{
		{StateConnecting, models.StatusConnecting},
		{StateOpen, models.StatusOpen},
		{StateClose, models.StatusClose},
		{ConnectionState("bogus"), models.StatusDisconnected},
	}
	for _, c := range cases {
		if got := StatusFor(c.state); got != c.want {
			t.Errorf("StatusFor(%q) = %q, want %q", c.state, got, c.want)
		}
	}
}
