package encryption_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/encryption"
)

func newAgeEncryptor(t *testing.T) *encryption.AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return encryption.NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "record.pub"),
		PrivateKeyPath: filepath.Join(dir, "record.key"),
	})
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	enc := newAgeEncryptor(t)

	if enc.IsConfigured() {
		t.Error("IsConfigured() = true before setup")
	}
	if err := enc.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !enc.IsConfigured() {
		t.Error("IsConfigured() = false after setup")
	}

	plaintext := []byte("git push origin main")
	var ciphertext bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	dc, err := enc.Unlock("correct horse")
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

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	enc := newAgeEncryptor(t)
	if err := enc.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := enc.Unlock("battery staple"); err == nil {
		t.Error("Unlock() with wrong passphrase expected error")
	}
}

func TestAgeEncryptor_EncryptRequiresSetup(t *testing.T) {
	enc := newAgeEncryptor(t)

	var out bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader([]byte("data")), &out); err == nil {
		t.Error("Encrypt() without keys expected error")
	}
}
