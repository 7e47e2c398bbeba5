package agreement

import (
	"context"
	"errors"
	"testing"

	"github.com/jacs-project/jacs-go/internal/cryptutil"
	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/storage"
)

type fakeSigner struct {
	id, version string
	algo        keystore.Algorithm
	kp          *keystore.KeyPair
}

func newFakeSigner(t *testing.T, id string, algo keystore.Algorithm) *fakeSigner {
	t.Helper()
	kp, err := keystore.Generate(algo)
	if err != nil {
		t.Fatalf("keystore.Generate(%s): %v", algo, err)
	}
	return &fakeSigner{id: id, version: id + "-v1", algo: algo, kp: kp}
}

func (f *fakeSigner) AgentID() string                { return f.id }
func (f *fakeSigner) AgentVersion() string            { return f.version }
func (f *fakeSigner) Algorithm() keystore.Algorithm   { return f.algo }
func (f *fakeSigner) PrivateKey() *keystore.SecretKey { return f.kp.Private }
func (f *fakeSigner) PublicKey() []byte               { return f.kp.Public }

type fakeResolver struct {
	byHash map[string]struct {
		key  []byte
		algo keystore.Algorithm
	}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{byHash: map[string]struct {
		key  []byte
		algo keystore.Algorithm
	}{}}
}

func (r *fakeResolver) add(s *fakeSigner) {
	hash := cryptutil.Sha256Hex(s.PublicKey())
	r.byHash[hash] = struct {
		key  []byte
		algo keystore.Algorithm
	}{s.PublicKey(), s.Algorithm()}
}

func (r *fakeResolver) ResolvePublicKey(hash string) ([]byte, keystore.Algorithm, bool) {
	v, ok := r.byHash[hash]
	return v.key, v.algo, ok
}

func TestTwoPartyAgreementLifecycle(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	a := newFakeSigner(t, "agent-a", keystore.PqDilithium)
	b := newFakeSigner(t, "agent-b", keystore.RsaPss)

	resolver := newFakeResolver()
	resolver.add(a)
	resolver.add(b)

	doc, err := engine.Create(context.Background(), a, []byte(`{"title":"t","jacsLevel":"config"}`), "task")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc, err = Create(engine, a, doc.Key(), []string{a.AgentID(), b.AgentID()}, "ship it?", "release review", "")
	if err != nil {
		t.Fatalf("Create agreement: %v", err)
	}

	err = Check(doc, "", resolver)
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.AgreementUnsigned {
		t.Fatalf("expected AgreementUnsigned, got %v", err)
	}
	if len(jerr.BlockedAgentIDs) != 1 || jerr.BlockedAgentIDs[0] != "agent-b" {
		t.Fatalf("blocked agents = %v, want [agent-b]", jerr.BlockedAgentIDs)
	}

	doc, err = Sign(engine, a, doc.Key(), "")
	if err != nil {
		t.Fatalf("A sign: %v", err)
	}
	err = Check(doc, "", resolver)
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.AgreementUnsigned {
		t.Fatalf("expected still AgreementUnsigned after A signs, got %v", err)
	}

	doc, err = Sign(engine, b, doc.Key(), "")
	if err != nil {
		t.Fatalf("B sign: %v", err)
	}
	if err := Check(doc, "", resolver); err != nil {
		t.Fatalf("expected agreement to check out, got %v", err)
	}

	// S4: routine update after agreement preserves the agreement hash.
	next := make(map[string]interface{}, len(doc.Value))
	for k, v := range doc.Value {
		next[k] = v
	}
	next["extra"] = "field"
	updated, err := engine.Update(a, doc.Key(), next)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := Check(updated, "", resolver); err != nil {
		t.Fatalf("Check after routine update: %v", err)
	}
}

func TestAgentIDNormalizationIdempotence(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	a := newFakeSigner(t, "agent-a", keystore.RingEd25519)

	doc, err := engine.Create(context.Background(), a, []byte(`{"title":"t","jacsLevel":"config"}`), "task")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc, err = Create(engine, a, doc.Key(), nil, "", "", "")
	if err != nil {
		t.Fatalf("Create agreement: %v", err)
	}

	doc, err = AddAgents(engine, a, doc.Key(), []string{"agent-x"}, "")
	if err != nil {
		t.Fatalf("AddAgents: %v", err)
	}
	doc, err = AddAgents(engine, a, doc.Key(), []string{"agent-x:v2"}, "")
	if err != nil {
		t.Fatalf("AddAgents: %v", err)
	}

	block, _ := agreementBlock(doc, DefaultField)
	ids := stringSlice(block["agentIDs"])
	count := 0
	for _, id := range ids {
		if normalizeID(id) == "agent-x" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one normalized agent-x entry, got %d in %v", count, ids)
	}
}

func TestCreateAgreementAlreadyPresentFails(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	a := newFakeSigner(t, "agent-a", keystore.RingEd25519)
	doc, err := engine.Create(context.Background(), a, []byte(`{"title":"t","jacsLevel":"config"}`), "task")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc, err = Create(engine, a, doc.Key(), []string{"agent-a"}, "", "", "")
	if err != nil {
		t.Fatalf("Create agreement: %v", err)
	}
	_, err = Create(engine, a, doc.Key(), []string{"agent-a"}, "", "", "")
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.AgreementAlreadyPresent {
		t.Fatalf("expected AgreementAlreadyPresent, got %v", err)
	}
}

func TestSignAgreementWithoutCreateFails(t *testing.T) {
	engine := docengine.New(storage.NewMemory(), nil)
	a := newFakeSigner(t, "agent-a", keystore.RingEd25519)
	doc, err := engine.Create(context.Background(), a, []byte(`{"title":"t","jacsLevel":"config"}`), "task")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = Sign(engine, a, doc.Key(), "")
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.AgreementNotFound {
		t.Fatalf("expected AgreementNotFound, got %v", err)
	}
}
