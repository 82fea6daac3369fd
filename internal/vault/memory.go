package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"provenance-go/internal/research"
)

// MemoryVault keeps packs in a map. It is safe for concurrent use.
type MemoryVault struct {
	mu    sync.RWMutex
	packs map[string][]byte
}

var _ research.PackVault = (*MemoryVault)(nil)

// NewMemoryVault creates an empty MemoryVault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{packs: make(map[string][]byte)}
}

func (m *MemoryVault) PutPack(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading pack: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.packs[key] = data
	return nil
}

func (m *MemoryVault) GetPack(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.packs[key]
	m.mu.RUnlock()
	if !ok {
		return packNotFound(key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing pack: %w", err)
	}
	return nil
}

func (m *MemoryVault) ListPacks(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := []string{}
	for k := range m.packs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ValidateSetup always succeeds.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}
