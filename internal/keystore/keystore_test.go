package keystore

import "testing"

func TestGenerateSignVerifyRoundTrip(t *testing.T) {
	for _, algo := range []Algorithm{RsaPss, RingEd25519, PqDilithium} {
		algo := algo
		t.Run(string(algo), func(t *testing.T) {
			kp, err := Generate(algo)
			if err != nil {
				t.Fatalf("Generate(%s): %v", algo, err)
			}
			data := []byte("sign me please")
			sig, err := SignString(algo, kp.Private, data)
			if err != nil {
				t.Fatalf("SignString: %v", err)
			}
			if err := VerifyString(algo, kp.Public, data, sig); err != nil {
				t.Fatalf("VerifyString: %v", err)
			}
		})
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	kp, err := Generate(RingEd25519)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sig, err := SignString(RingEd25519, kp.Private, []byte("original"))
	if err != nil {
		t.Fatalf("SignString: %v", err)
	}
	if err := VerifyString(RingEd25519, kp.Public, []byte("tampered"), sig); err == nil {
		t.Fatal("expected verification failure on tampered data")
	}
}

func TestDetectFromPublicKeyEd25519(t *testing.T) {
	kp, err := Generate(RingEd25519)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := DetectFromPublicKey(kp.Public)
	if err != nil {
		t.Fatalf("DetectFromPublicKey: %v", err)
	}
	if got != RingEd25519 {
		t.Errorf("got %s, want %s", got, RingEd25519)
	}
}

func TestDetectFromPublicKeyRSA(t *testing.T) {
	kp, err := Generate(RsaPss)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := DetectFromPublicKey(kp.Public)
	if err != nil {
		t.Fatalf("DetectFromPublicKey: %v", err)
	}
	if got != RsaPss {
		t.Errorf("got %s, want %s", got, RsaPss)
	}
}

func TestRefineFromSignatureDilithiumAltWindow(t *testing.T) {
	if got := RefineFromSignature(PqDilithium, 4645); got != PqDilithiumAlt {
		t.Errorf("got %s, want %s", got, PqDilithiumAlt)
	}
	if got := RefineFromSignature(PqDilithium, 4627); got != PqDilithium {
		t.Errorf("got %s, want %s", got, PqDilithium)
	}
	if got := RefineFromSignature(RingEd25519, 4645); got != RingEd25519 {
		t.Errorf("non-Dilithium algorithm should pass through unchanged, got %s", got)
	}
}

func TestSecretKeyRedactsString(t *testing.T) {
	sk := NewSecretKey([]byte("top-secret"))
	if s := sk.String(); s == "top-secret" {
		t.Fatal("SecretKey.String() leaked key material")
	}
	sk.Zero()
	for _, b := range sk.Bytes() {
		if b != 0 {
			t.Fatal("Zero() left non-zero bytes")
		}
	}
}

func TestParseAlgorithmRejectsUnknown(t *testing.T) {
	if _, err := ParseAlgorithm("not-a-real-algorithm"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
