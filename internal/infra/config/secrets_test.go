package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roundtable/internal/domain"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "passphrase")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if strings.Contains(enc, "sk-secret") {
		t.Fatal("ciphertext contains plaintext")
	}
	got, err := DecryptValue(enc, "passphrase")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if got != "sk-secret" {
		t.Errorf("got %q, want sk-secret", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "right")
	if err != nil {
		t.Fatal(err)
	}
	_, err = DecryptValue(enc, "wrong")
	if !errors.Is(err, domain.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptValueMalformed(t *testing.T) {
	tests := map[string]string{
		"no separator":         "abcdef",
		"bad salt":             "zz:00",
		"bad ciphertext":       "00:zz",
		"ciphertext too short": "00112233445566778899aabbccddeeff:00",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecryptValue(in, "p"); !errors.Is(err, domain.ErrDecryption) {
				t.Errorf("DecryptValue(%q) = %v, want ErrDecryption", in, err)
			}
		})
	}
}

func TestDecryptSecrets(t *testing.T) {
	enc, err := EncryptValue("sk-ant", "pw")
	if err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	cfg.Participants[0].APIKey = encPrefix + enc
	cfg.Participants[1].APIKey = "plain"

	if err := decryptSecrets(cfg, "pw"); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.Participants[0].APIKey != "sk-ant" {
		t.Errorf("decrypted = %q", cfg.Participants[0].APIKey)
	}
	if cfg.Participants[1].APIKey != "plain" {
		t.Errorf("plain key changed to %q", cfg.Participants[1].APIKey)
	}
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.Participants[0].APIKey = "enc:not-valid"
	err := decryptSecrets(cfg, "pw")
	if err == nil || !strings.Contains(err.Error(), "participant claude") {
		t.Fatalf("expected participant error, got %v", err)
	}
	if domain.ErrorCodeOf(err) != domain.CodeDecryption {
		t.Errorf("code = %s, want %s", domain.ErrorCodeOf(err), domain.CodeDecryption)
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	isolateEnv(t)
	enc, err := EncryptValue("sk-from-file", "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "participants:\n  - id: claude\n    name: Claude\n    model: claude-sonnet-4-5\n    provider: anthropic\n    api_key: \"enc:" + enc + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROUNDTABLE_CONFIG_KEY", "pw")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Participants[0].APIKey != "sk-from-file" {
		t.Errorf("APIKey = %q", cfg.Participants[0].APIKey)
	}
}
