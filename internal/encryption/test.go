package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"provenance-go/internal/research"
)

// testMagic marks output of TestEncryptor.
var testMagic = []byte("PROVPK\x00\x01")

// TestEncryptor frames data with a fixed marker instead of encrypting it.
// Unlock accepts only the passphrase given to Setup, when Setup was called.
type TestEncryptor struct {
	passphrase *string
}

var _ research.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = &passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying pack: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (research.DecryptionContext, error) {
	if e.passphrase != nil && *e.passphrase != passphrase {
		return nil, errors.New("incorrect passphrase")
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext removes the TestEncryptor marker.
type TestDecryptionContext struct{}

var _ research.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	head := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, head); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(head, testMagic) {
		return errors.New("not a test-encrypted pack")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying pack: %w", err)
	}
	return nil
}
