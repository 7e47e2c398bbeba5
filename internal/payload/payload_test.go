package payload

import (
	"context"
	"testing"
	"time"

	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/storage"

	"errors"
)

type fakeSigner struct {
	id, version string
	algo        keystore.Algorithm
	kp          *keystore.KeyPair
}

func newFakeSigner(t *testing.T, algo keystore.Algorithm) *fakeSigner {
	t.Helper()
	kp, err := keystore.Generate(algo)
	if err != nil {
		t.Fatalf("keystore.Generate: %v", err)
	}
	return &fakeSigner{id: "agent-a", version: "agent-a-v1", algo: algo, kp: kp}
}

func (f *fakeSigner) AgentID() string                { return f.id }
func (f *fakeSigner) AgentVersion() string            { return f.version }
func (f *fakeSigner) Algorithm() keystore.Algorithm   { return f.algo }
func (f *fakeSigner) PrivateKey() *keystore.SecretKey { return f.kp.Private }
func (f *fakeSigner) PublicKey() []byte               { return f.kp.Public }

func TestSendVerifyRoundTrip(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	s := newFakeSigner(t, keystore.RingEd25519)

	doc, err := Send(context.Background(), engine, s, map[string]interface{}{"action": "ping"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	out, err := Verify(doc, s.PublicKey(), s.Algorithm(), "", time.Now(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	m, ok := out.(map[string]interface{})
	if !ok || m["action"] != "ping" {
		t.Fatalf("payload content = %v, want action=ping", out)
	}
}

func TestVerifyWithinReplayWindow(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	s := newFakeSigner(t, keystore.RingEd25519)

	doc, err := Send(context.Background(), engine, s, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	sigMap := doc.Value[docengine.FieldSignature].(map[string]interface{})
	signedAt, err := time.Parse(time.RFC3339, sigMap["date"].(string))
	if err != nil {
		t.Fatalf("parse signature date: %v", err)
	}

	if _, err := Verify(doc, s.PublicKey(), s.Algorithm(), "", signedAt.Add(30*time.Second), 60*time.Second); err != nil {
		t.Fatalf("Verify within window: %v", err)
	}

	_, err = Verify(doc, s.PublicKey(), s.Algorithm(), "", signedAt.Add(120*time.Second), 60*time.Second)
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.ReplayWindowExceeded {
		t.Fatalf("expected ReplayWindowExceeded, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	s := newFakeSigner(t, keystore.RingEd25519)

	doc, err := Send(context.Background(), engine, s, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	doc.Value[Field] = "tampered"

	_, err = Verify(doc, s.PublicKey(), s.Algorithm(), "", time.Now(), time.Hour)
	if err == nil {
		t.Fatal("expected tampering to be detected")
	}
}

func TestVerifyWithoutPublicKeyIsUnverified(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	s := newFakeSigner(t, keystore.RingEd25519)

	doc, err := Send(context.Background(), engine, s, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err = Verify(doc, nil, s.Algorithm(), "", time.Now(), time.Hour)
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.Unverified {
		t.Fatalf("expected Unverified, got %v", err)
	}
}
