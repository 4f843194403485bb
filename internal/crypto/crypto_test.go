package crypto

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var fixedSalt = []byte("0123456789abcdef")

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	if len(salt) != SaltSize {
		t.Errorf("expected %d bytes, got %d", SaltSize, len(salt))
	}
	salt2, _ := GenerateSalt()
	if bytes.Equal(salt, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1, err := DeriveKey("correct-horse-battery", fixedSalt, DefaultIterations)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if len(k1) != KeySize {
		t.Errorf("expected %d bytes, got %d", KeySize, len(k1))
	}
	k2, _ := DeriveKey("correct-horse-battery", fixedSalt, DefaultIterations)
	if !bytes.Equal(k1, k2) {
		t.Error("derivation should be deterministic")
	}
	k3, _ := DeriveKey("wrong-password", fixedSalt, DefaultIterations)
	if bytes.Equal(k1, k3) {
		t.Error("different passwords should yield different keys")
	}
	k4, _ := DeriveKey("correct-horse-battery", []byte("fedcba9876543210"), DefaultIterations)
	if bytes.Equal(k1, k4) {
		t.Error("different salts should yield different keys")
	}
}

func TestDeriveKeyRejectsBadParams(t *testing.T) {
	if _, err := DeriveKey("pw", nil, DefaultIterations); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto for empty salt, got %v", err)
	}
	if _, err := DeriveKey("pw", fixedSalt, 0); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto for zero iterations, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, _ := DeriveKey("pw", fixedSalt, 1000)
	values := []any{
		map[string]any{"service": "Example", "password": "hunter2"},
		[]any{"a", float64(1), true, nil},
		"plain string",
		float64(42),
		map[string]any{"notes": "line one\nline two", "nested": map[string]any{"k": "v"}},
	}
	for _, v := range values {
		ct, nonce, err := Encrypt(key, v)
		if err != nil {
			t.Fatalf("Encrypt(%v) failed: %v", v, err)
		}
		got, err := DecryptValue(key, ct, nonce)
		if err != nil {
			t.Fatalf("DecryptValue failed: %v", err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Errorf("round trip mismatch: got %#v want %#v", got, v)
		}
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	key, _ := DeriveKey("pw", fixedSalt, 1000)
	v := map[string]string{"a": "b"}
	ct1, n1, _ := Encrypt(key, v)
	ct2, n2, _ := Encrypt(key, v)
	if len(n1) != NonceSize {
		t.Errorf("expected %d-byte nonce, got %d", NonceSize, len(n1))
	}
	if bytes.Equal(n1, n2) {
		t.Error("nonces must differ between encryptions")
	}
	if bytes.Equal(ct1, ct2) {
		t.Error("ciphertexts must differ between encryptions")
	}
}

func TestEncryptInvalidKey(t *testing.T) {
	if _, _, err := Encrypt([]byte("short"), "x"); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
	key, _ := DeriveKey("pw", fixedSalt, 1000)
	if _, _, err := Encrypt(key, make(chan int)); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto for unencodable value, got %v", err)
	}
}

func TestDecryptTamperDetection(t *testing.T) {
	key, _ := DeriveKey("pw", fixedSalt, 1000)
	ct, nonce, err := Encrypt(key, map[string]string{"service": "Example"})
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	for i := range ct {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), ct...)
			tampered[i] ^= 1 << bit
			var out any
			if err := Decrypt(key, tampered, nonce, &out); !errors.Is(err, ErrAuthentication) {
				t.Fatalf("ciphertext byte %d bit %d: expected ErrAuthentication, got %v", i, bit, err)
			}
		}
	}
	for i := range nonce {
		tampered := append([]byte(nil), nonce...)
		tampered[i] ^= 0x01
		var out any
		if err := Decrypt(key, ct, tampered, &out); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("nonce byte %d: expected ErrAuthentication, got %v", i, err)
		}
	}
	var out any
	if err := Decrypt(key, ct, nonce[:8], &out); !errors.Is(err, ErrAuthentication) {
		t.Errorf("truncated nonce: expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptMalformedPayload(t *testing.T) {
	key, _ := DeriveKey("pw", fixedSalt, 1000)
	ct, nonce, err := EncryptAESGCM([]byte("{not json"), key)
	if err != nil {
		t.Fatalf("EncryptAESGCM failed: %v", err)
	}
	var out any
	if err := Decrypt(key, ct, nonce, &out); !errors.Is(err, ErrDecoding) {
		t.Errorf("expected ErrDecoding, got %v", err)
	}
}

func TestPasswordScenario(t *testing.T) {
	key, err := DeriveKey("correct-horse-battery", fixedSalt, 100000)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	record := map[string]any{"service": "Example", "password": "hunter2"}
	ct, nonce, err := Encrypt(key, record)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	again, _ := DeriveKey("correct-horse-battery", fixedSalt, 100000)
	var got map[string]any
	if err := Decrypt(again, ct, nonce, &got); err != nil {
		t.Fatalf("Decrypt with re-derived key failed: %v", err)
	}
	if !reflect.DeepEqual(got, record) {
		t.Errorf("got %v, want %v", got, record)
	}

	wrong, _ := DeriveKey("wrong-password", fixedSalt, 100000)
	if err := Decrypt(wrong, ct, nonce, &got); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for wrong password, got %v", err)
	}
}

func TestAESGCMWrongKey(t *testing.T) {
	key, _ := DeriveKey("a", fixedSalt, 1000)
	wrongKey, _ := DeriveKey("b", fixedSalt, 1000)
	ciphertext, nonce, _ := EncryptAESGCM([]byte("secret data"), key)
	if _, err := DecryptAESGCM(ciphertext, nonce, wrongKey); err == nil {
		t.Error("expected error decrypting with wrong key")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("expected zeroed slice, got %v", b)
	}
}
