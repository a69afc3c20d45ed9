package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("super-secret-api-key")
	sealed, err := Seal("correct-horse", plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	opened, err := Open("correct-horse", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	sealed, err := Seal("correct-horse", []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open("wrong-horse", sealed); err == nil {
		t.Fatal("expected error opening with wrong passphrase")
	}
}

func TestOpenDetectsBitFlipTampering(t *testing.T) {
	sealed, err := Seal("correct-horse", []byte("secret-value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	// Flip a bit inside the JSON ciphertext field's base64 body, not the
	// surrounding structure, so the tamper is plausible.
	for i := len(tampered) - 10; i < len(tampered)-5; i++ {
		if tampered[i] >= 'a' && tampered[i] <= 'z' {
			tampered[i] ^= 0x01
			break
		}
	}

	if _, err := Open("correct-horse", tampered); err == nil {
		t.Fatal("expected tamper detection to fail authentication")
	}
}

func TestSealProducesUniqueNonces(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sealed, err := Seal("pw", []byte("same plaintext every time"))
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if seen[string(sealed)] {
			t.Fatalf("duplicate ciphertext envelope observed at iteration %d", i)
		}
		seen[string(sealed)] = true
	}
}

func TestVaultPutGetSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.enc")

	v, err := Load(path, "pw123")
	if err != nil {
		t.Fatalf("load (fresh): %v", err)
	}
	v.Put("anthropic_api_key", "sk-ant-testvalue")
	if err := v.Save("pw123"); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(path, "pw123")
	if err != nil {
		t.Fatalf("load (reloaded): %v", err)
	}
	got, ok := reloaded.Get("anthropic_api_key")
	if !ok || got != "sk-ant-testvalue" {
		t.Fatalf("expected stored secret to round-trip, got %q ok=%v", got, ok)
	}
}

func TestVaultRotateRewrapsMasterKeyOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.enc")

	v, err := Load(path, "old-pw")
	if err != nil {
		t.Fatalf("load (fresh): %v", err)
	}
	v.Put("anthropic_api_key", "sk-ant-testvalue")
	if err := v.Save("old-pw"); err != nil {
		t.Fatalf("save: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}
	var beforeFile vaultFile
	if err := json.Unmarshal(before, &beforeFile); err != nil {
		t.Fatalf("parse vault file: %v", err)
	}

	reloaded, err := Load(path, "old-pw")
	if err != nil {
		t.Fatalf("reload before rotate: %v", err)
	}
	if err := reloaded.Rotate("new-pw"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read vault file after rotate: %v", err)
	}
	var afterFile vaultFile
	if err := json.Unmarshal(after, &afterFile); err != nil {
		t.Fatalf("parse rotated vault file: %v", err)
	}

	entryName := "anthropic_api_key"
	if string(beforeFile.Entries[entryName].Nonce) != string(afterFile.Entries[entryName].Nonce) ||
		string(beforeFile.Entries[entryName].Ciphertext) != string(afterFile.Entries[entryName].Ciphertext) {
		t.Fatal("expected the sealed entry to be byte-for-byte unchanged across a passphrase rotation")
	}
	if string(beforeFile.WrappedMasterKey.Ciphertext) == string(afterFile.WrappedMasterKey.Ciphertext) {
		t.Fatal("expected the wrapped master key to change across rotation")
	}

	if _, err := Load(path, "old-pw"); err == nil {
		t.Fatal("expected the old passphrase to no longer open the vault after rotation")
	}

	final, err := Load(path, "new-pw")
	if err != nil {
		t.Fatalf("load with new passphrase: %v", err)
	}
	got, ok := final.Get(entryName)
	if !ok || got != "sk-ant-testvalue" {
		t.Fatalf("expected secret to survive rotation, got %q ok=%v", got, ok)
	}
}

func TestVaultRemoveAndList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.enc")
	v, err := Load(path, "pw")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v.Put("a", "1")
	v.Put("b", "2")
	v.Remove("a")

	names := v.List()
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected only %q to remain, got %v", "b", names)
	}
}
