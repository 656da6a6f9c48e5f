package ring

import (
	"errors"
	"testing"
)

func buildRing(t *testing.T, n int) (keys [][]byte, secrets [][]byte) {
	t.Helper()
	for i := 0; i < n; i++ {
		sk, pk, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		secrets = append(secrets, sk)
		keys = append(keys, pk)
	}
	return keys, secrets
}

func TestSignVerify(t *testing.T) {
	keys, secrets := buildRing(t, 4)
	msg := []byte("withdrawal digest")
	for idx := 0; idx < len(keys); idx++ {
		sig, err := Sign(msg, keys, idx, secrets[idx])
		if err != nil {
			t.Fatalf("Sign failed for member %d: %v", idx, err)
		}
		if err := Verify(msg, sig, keys); err != nil {
			t.Fatalf("Verify failed for member %d: %v", idx, err)
		}
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	keys, secrets := buildRing(t, 3)
	sig, err := Sign([]byte("original"), keys, 1, secrets[1])
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := Verify([]byte("tampered"), sig, keys); !errors.Is(err, ErrVerifyFailed) {
		t.Errorf("Expected ErrVerifyFailed, got %v", err)
	}
}

func TestVerifyRejectsWrongRing(t *testing.T) {
	keys, secrets := buildRing(t, 3)
	otherKeys, _ := buildRing(t, 3)
	msg := []byte("msg")
	sig, err := Sign(msg, keys, 0, secrets[0])
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := Verify(msg, sig, otherKeys); !errors.Is(err, ErrVerifyFailed) {
		t.Errorf("Expected ErrVerifyFailed, got %v", err)
	}
}

func TestSignRejectsBadInputs(t *testing.T) {
	keys, secrets := buildRing(t, 2)
	msg := []byte("msg")
	if _, err := Sign(msg, keys[:1], 0, secrets[0]); !errors.Is(err, ErrRingTooSmall) {
		t.Errorf("Expected ErrRingTooSmall, got %v", err)
	}
	if _, err := Sign(msg, keys, 5, secrets[0]); !errors.Is(err, ErrSignerNotInRing) {
		t.Errorf("Expected ErrSignerNotInRing, got %v", err)
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	keys, _ := buildRing(t, 2)
	if err := Verify([]byte("msg"), []byte{1, 2, 3}, keys); !errors.Is(err, ErrBadSignature) {
		t.Errorf("Expected ErrBadSignature, got %v", err)
	}
}

func TestPublicKeyDerivation(t *testing.T) {
	sk, pk, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	derived := PublicKeyFor(sk)
	if string(derived) != string(pk) {
		t.Errorf("PublicKeyFor should match GenerateKey output")
	}
}
