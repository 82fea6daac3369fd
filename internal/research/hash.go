package research

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// snapshotHashKey keys the snapshot content hash. Existing hashes were
// produced with this exact key.
const snapshotHashKey = "research_snapshot"

// ComputeHash returns the content hash of a snapshot's contextual state and
// items. Items are ordered by (object id, object type) first, so insertion
// order never affects the digest.
func ComputeHash(snap *Snapshot, items []*SnapshotItem) string {
	sorted := make([]*SnapshotItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ObjectID != sorted[j].ObjectID {
			return sorted[i].ObjectID < sorted[j].ObjectID
		}
		return sorted[i].ObjectType < sorted[j].ObjectType
	})

	parts := make([]string, 0, len(sorted)+3)
	parts = append(parts,
		"qs:"+derefString(snap.QueryState),
		"rs:"+derefString(snap.RightsState),
		"md:"+derefString(snap.Metadata),
	)
	for _, it := range sorted {
		parts = append(parts, strings.Join([]string{
			strconv.FormatInt(it.ObjectID, 10),
			it.ObjectType,
			derefString(it.MetadataVersion),
			derefString(it.RightsSnapshot),
		}, ":"))
	}

	mac := hmac.New(sha256.New, []byte(snapshotHashKey))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// CitationFor derives the citation identifier of a snapshot from its hash.
func CitationFor(projectID, snapshotID int64, hash string) string {
	prefix := hash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("SNAP-%d-%d-%s", projectID, snapshotID, prefix)
}

// hashesEqual compares two hex digests in constant time.
func hashesEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// canonicalJSON encodes v without HTML escaping and without a trailing newline.
func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// compactJSON normalises a caller-supplied JSON document, or returns nil for none.
func compactJSON(raw json.RawMessage) (*string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	s := buf.String()
	if s == "null" {
		return nil, nil
	}
	return &s, nil
}
