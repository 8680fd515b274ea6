package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSealProducesEnvelope(t *testing.T) {
	body, err := seal("greetings", greetingSchema, greeting{Name: "x"})
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Topic != "greetings" {
		t.Fatalf("topic = %q", env.Topic)
	}
	if env.SentAt.IsZero() || env.SentAt.After(time.Now().Add(time.Second)) {
		t.Fatalf("sentAt = %v", env.SentAt)
	}
	if string(env.Data) != `{"name":"x"}` {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestEnvelopeDecodeMalformedIsValidationError(t *testing.T) {
	env := Envelope{Data: json.RawMessage(`{"name":`), Topic: "greetings"}

	var g greeting
	err := env.Decode(&g)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsValidationError(err) {
		t.Fatalf("expected validation classification, got %v", err)
	}
}

func TestIsValidationErrorSeesWrappedErrors(t *testing.T) {
	inner := &ValidationError{Topic: "t", Err: errors.New("bad shape")}
	wrapped := fmt.Errorf("processing: %w", inner)

	if !IsValidationError(wrapped) {
		t.Fatal("wrapped validation error not recognized")
	}
	if IsValidationError(errors.New("downstream unavailable")) {
		t.Fatal("ordinary error misclassified as validation")
	}
}

func TestValidateAcceptsNilSchema(t *testing.T) {
	if err := validate("t", nil, json.RawMessage(`{"anything":1}`)); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
}
