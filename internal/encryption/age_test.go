package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"provenance-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "prov.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "prov.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup, want false")
	}
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}

	info, err := os.Stat(e.identityPath)
	if err != nil {
		t.Fatalf("stat private key: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("private key mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestAgeEncryptor_SetupEmptyPassphrase(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if err := e.Setup(""); err == nil {
		t.Error("Setup(\"\") error = nil, want error")
	}
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "pack json", input: []byte(`{"project_id":1,"snapshots":[]}`)},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte(`{"a":1},`), 20000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestAgeEncryptor(t)
			if err := e.Setup("pass"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(sealed.Bytes(), tt.input) {
				t.Error("ciphertext contains the plaintext")
			}

			dec, err := e.Unlock("pass")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dec.Decrypt(&sealed, &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round trip returned %d bytes, want %d", plain.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Setup("right"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() with wrong passphrase error = nil, want error")
		}
	})

	t.Run("encrypt before setup", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Encrypt(bytes.NewReader([]byte("x")), &bytes.Buffer{}); err == nil {
			t.Error("Encrypt() before Setup error = nil, want error")
		}
	})

	t.Run("unlock before setup", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if _, err := e.Unlock("pass"); err == nil {
			t.Error("Unlock() before Setup error = nil, want error")
		}
	})

	t.Run("decrypt garbage", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Setup("pass"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		dec, err := e.Unlock("pass")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		if err := dec.Decrypt(bytes.NewReader([]byte("not an age file")), &bytes.Buffer{}); err == nil {
			t.Error("Decrypt() of garbage error = nil, want error")
		}
	})
}
