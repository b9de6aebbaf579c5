package encryption_test

import (
	"bytes"
	"testing"

	"github.com/qobil7681/atuin-history-tool/internal/encryption"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	enc := encryption.NewTestEncryptor()

	plaintext := []byte("echo hello")
	var ciphertext bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(ciphertext.Bytes(), plaintext) {
		t.Error("Encrypt() output equals plaintext")
	}

	dc, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var decrypted bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestTestDecryptionContext_RejectsUnmarkedData(t *testing.T) {
	dc := &encryption.TestDecryptionContext{}

	var out bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader([]byte("plain data, no header")), &out); err == nil {
		t.Error("Decrypt() expected error for data without header")
	}
}
