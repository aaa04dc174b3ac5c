package crypto

import (
	"testing"
	"time"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	if kp.Kid == "" {
		t.Error("Key should have a kid")
	}
	if kp.Alg != "RS256" {
		t.Errorf("Expected RS256, got %s", kp.Alg)
	}
	if kp.PrivateKey == nil || kp.PublicKey == nil {
		t.Error("Key pair should have both keys")
	}
	if !kp.Active {
		t.Error("Generated key should be active")
	}
	if kp.IsExpired() {
		t.Error("Key with zero ExpiresAt should never expire")
	}
}

func TestGenerateKeyPairUniqueKids(t *testing.T) {
	kp1, _ := GenerateKeyPair(2048)
	kp2, _ := GenerateKeyPair(2048)

	if kp1.Kid == kp2.Kid {
		t.Error("Generated keys should have unique kids")
	}
}

func TestKeyPairRecordRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	kp.ExpiresAt = time.Now().Add(time.Hour).Truncate(time.Second)

	rec, err := kp.ToRecord()
	if err != nil {
		t.Fatalf("ToRecord failed: %v", err)
	}

	if rec.ID != kp.Kid {
		t.Errorf("Record ID mismatch: %s != %s", rec.ID, kp.Kid)
	}
	if len(rec.PrivateKey) == 0 || len(rec.PublicKey) == 0 {
		t.Error("Record should carry PEM-encoded keys")
	}

	restored, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}

	if restored.Kid != kp.Kid {
		t.Errorf("Restored kid mismatch: %s != %s", restored.Kid, kp.Kid)
	}
	if restored.PrivateKey.N.Cmp(kp.PrivateKey.N) != 0 {
		t.Error("Restored private key does not match original")
	}
	if !restored.ExpiresAt.Equal(kp.ExpiresAt) {
		t.Errorf("Restored ExpiresAt mismatch: %v != %v", restored.ExpiresAt, kp.ExpiresAt)
	}
}

func TestFromRecordInvalidPEM(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	rec, _ := kp.ToRecord()

	rec.PrivateKey = []byte("not a pem block")
	if _, err := FromRecord(rec); err == nil {
		t.Error("Expected error for invalid private key PEM")
	}
}

func TestKeyPairExpiry(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)

	kp.ExpiresAt = time.Now().Add(-time.Minute)
	if !kp.IsExpired() {
		t.Error("Key past its ExpiresAt should be expired")
	}

	kp.ExpiresAt = time.Now().Add(time.Minute)
	if kp.IsExpired() {
		t.Error("Key before its ExpiresAt should not be expired")
	}
}

func TestToJWK(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	jwk := kp.ToJWK()

	if jwk.Kid != kp.Kid {
		t.Errorf("JWK kid mismatch: %s != %s", jwk.Kid, kp.Kid)
	}
	if jwk.Kty != "RSA" {
		t.Errorf("Expected kty RSA, got %s", jwk.Kty)
	}
	if jwk.Use != "sig" {
		t.Errorf("Expected use sig, got %s", jwk.Use)
	}
	if jwk.N == "" || jwk.E == "" {
		t.Error("JWK should carry modulus and exponent")
	}
}
