package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"provenance-go/internal/config"
	"provenance-go/internal/research"
)

// AgeEncryptor seals reproducibility packs with an X25519 recipient.
// The recipient file is plain text; the identity file is itself an age file
// encrypted to the researcher's passphrase (scrypt).
type AgeEncryptor struct {
	recipientPath string
	identityPath  string
}

var _ research.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates an AgeEncryptor using the key paths in cfg.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}
}

// Setup creates a fresh key pair. An existing key pair is overwritten.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{e.recipientPath, e.identityPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(e.recipientPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	var sealed bytes.Buffer
	if err := sealIdentity(&sealed, identity, passphrase); err != nil {
		return err
	}
	if err := os.WriteFile(e.identityPath, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// Encrypt writes r to w encrypted to the stored recipient.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.recipient()
	if err != nil {
		return err
	}

	aw, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(aw, r); err != nil {
		return fmt.Errorf("encrypting pack: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Unlock opens the identity file with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (research.DecryptionContext, error) {
	sealed, err := os.ReadFile(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	identity, err := openIdentity(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	return &AgeDecryptionContext{identity: identity}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	return fileExists(e.recipientPath) && fileExists(e.identityPath)
}

func (e *AgeEncryptor) recipient() (age.Recipient, error) {
	data, err := os.ReadFile(e.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, errors.New("public key file holds no recipient")
	}
	return recipients[0], nil
}

func sealIdentity(w io.Writer, identity *age.X25519Identity, passphrase string) error {
	scrypt, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	aw, err := age.Encrypt(w, scrypt)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(aw, identity.String()+"\n"); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	return nil
}

func openIdentity(sealed []byte, passphrase string) (age.Identity, error) {
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("private key file holds no identity")
	}
	return identities[0], nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AgeDecryptionContext decrypts packs with an unlocked identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ research.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt writes the plaintext of the age file read from r to w.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	ar, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening encrypted pack: %w", err)
	}
	if _, err := io.Copy(w, ar); err != nil {
		return fmt.Errorf("decrypting pack: %w", err)
	}
	return nil
}
