package record_test

import (
	"context"
	"testing"

	"github.com/qobil7681/atuin-history-tool/internal/encryption"
	"github.com/qobil7681/atuin-history-tool/internal/record"
	"github.com/qobil7681/atuin-history-tool/internal/testutil"
)

func kvDecryptionContext(t *testing.T) record.DecryptionContext {
	t.Helper()
	dc, err := encryption.NewTestEncryptor().Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	return dc
}

func TestService_KV(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	svc := testutil.NewTestService(t, store)
	dc := kvDecryptionContext(t)

	t.Run("unset key returns nil", func(t *testing.T) {
		pair, err := svc.GetKV(ctx, dc, "editor")
		if err != nil {
			t.Fatalf("GetKV() error = %v", err)
		}
		if pair != nil {
			t.Errorf("GetKV() = %+v, want nil for unset key", pair)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		if _, err := svc.SetKV(ctx, "editor", "vim"); err != nil {
			t.Fatalf("SetKV() error = %v", err)
		}

		pair, err := svc.GetKV(ctx, dc, "editor")
		if err != nil {
			t.Fatalf("GetKV() error = %v", err)
		}
		if pair == nil || pair.Value != "vim" {
			t.Errorf("GetKV() = %+v, want value vim", pair)
		}
	})

	t.Run("latest write wins", func(t *testing.T) {
		if _, err := svc.SetKV(ctx, "editor", "emacs"); err != nil {
			t.Fatalf("SetKV() error = %v", err)
		}

		pair, err := svc.GetKV(ctx, dc, "editor")
		if err != nil {
			t.Fatalf("GetKV() error = %v", err)
		}
		if pair == nil || pair.Value != "emacs" {
			t.Errorf("GetKV() = %+v, want value emacs", pair)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		if _, err := svc.SetKV(ctx, "shell", "zsh"); err != nil {
			t.Fatalf("SetKV() error = %v", err)
		}

		editor, err := svc.GetKV(ctx, dc, "editor")
		if err != nil {
			t.Fatalf("GetKV(editor) error = %v", err)
		}
		if editor == nil || editor.Value != "emacs" {
			t.Errorf("GetKV(editor) = %+v, want value emacs", editor)
		}

		shell, err := svc.GetKV(ctx, dc, "shell")
		if err != nil {
			t.Fatalf("GetKV(shell) error = %v", err)
		}
		if shell == nil || shell.Value != "zsh" {
			t.Errorf("GetKV(shell) = %+v, want value zsh", shell)
		}
	})

	t.Run("kv entries form a single chain", func(t *testing.T) {
		chains, err := svc.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		for _, c := range chains {
			if c.Tag == "kv" {
				if c.Length != 3 {
					t.Errorf("kv chain length = %d, want 3", c.Length)
				}
				return
			}
		}
		t.Error("no kv chain in status")
	})
}
