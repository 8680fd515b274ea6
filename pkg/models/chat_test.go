package models

import "testing"

func TestChatInternalIdentifierRoundTrip(t *testing.T) {
	id := ChatInternalIdentifier("ch-1", "5511999999999@s.whatsapp.net")

	channelID, remoteID, err := ParseChatInternalIdentifier(id)
	if err != nil {
		t.Fatalf("ParseChatInternalIdentifier() error = %v", err)
	}
	if channelID != "ch-1" {
		t.Fatalf("channelID = %q", channelID)
	}
	if remoteID != "5511999999999@s.whatsapp.net" {
		t.Fatalf("remoteID = %q", remoteID)
	}
}

func TestParseChatInternalIdentifierRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "no-separator", "|remote", "channel|"} {
		if _, _, err := ParseChatInternalIdentifier(id); err == nil {
			t.Errorf("expected error for %q", id)
		}
	}
}

func TestChatSenderValid(t *testing.T) {
	if !SenderRecipient.Valid() || !SenderBot.Valid() || !SenderUser.Valid() {
		t.Fatal("known senders must be valid")
	}
	if ChatSender("recipient").Valid() {
		t.Fatal("sender values are case sensitive")
	}
}
