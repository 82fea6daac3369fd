package research

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	packSuffix          = ".json"
	encryptedPackSuffix = ".json.age"
)

// Pack is a reproducibility pack: everything needed to re-check the findings
// of one project.
type Pack struct {
	ProjectID   int64            `json:"project_id"`
	Snapshots   []PackSnapshot   `json:"snapshots"`
	Assertions  []PackAssertion  `json:"assertions"`
	Extractions []PackExtraction `json:"extractions"`
	GeneratedAt time.Time        `json:"generated_at"`
	PackHash    string           `json:"pack_hash,omitempty"`
}

// PackSnapshot is a snapshot with the result of re-verifying its hash.
// HashValid is nil for snapshots that were never sealed.
type PackSnapshot struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Hash        *string         `json:"hash_sha256"`
	HashValid   *bool           `json:"hash_valid"`
	CitationID  *string         `json:"citation_id"`
	ItemCount   int             `json:"item_count"`
	Status      SnapshotStatus  `json:"status"`
	QueryState  json.RawMessage `json:"query_state"`
	RightsState json.RawMessage `json:"rights_state"`
	Metadata    json.RawMessage `json:"metadata"`
	FrozenAt    *time.Time      `json:"frozen_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PackAssertion is an assertion with its evidence chain.
type PackAssertion struct {
	*Assertion
	EvidenceChain []*Evidence `json:"evidence_chain"`
}

// PackExtraction is an extraction job with the provenance of its results.
type PackExtraction struct {
	*ExtractionJob
	Results []PackResult `json:"results"`
}

// PackResult is the provenance summary of one extraction result.
type PackResult struct {
	ID           int64     `json:"id"`
	ObjectID     int64     `json:"object_id"`
	ResultType   string    `json:"result_type"`
	Confidence   *float64  `json:"confidence"`
	ModelVersion *string   `json:"model_version"`
	InputHash    *string   `json:"input_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// PackBuilder assembles reproducibility packs and keeps them in a vault.
type PackBuilder struct {
	db         Database
	extraction ExtractionSource
	vault      PackVault
	encryptor  Encryptor
	ids        IDGenerator
	activity   activityRecorder
	logger     Logger
	clock      Clock
}

// NewPackBuilder creates a PackBuilder. A nil encryptor stores packs in plaintext.
func NewPackBuilder(db Database, extraction ExtractionSource, vault PackVault, encryptor Encryptor, ids IDGenerator, activity ActivityLog, logger Logger, clock Clock) *PackBuilder {
	return &PackBuilder{
		db:         db,
		extraction: extraction,
		vault:      vault,
		encryptor:  encryptor,
		ids:        ids,
		activity:   activityRecorder{sink: activity, logger: logger, clock: clock},
		logger:     logger,
		clock:      clock,
	}
}

// Build assembles the pack for a project and stamps its hash.
func (b *PackBuilder) Build(ctx context.Context, projectID int64) (*Pack, error) {
	p := &Pack{
		ProjectID:   projectID,
		Snapshots:   []PackSnapshot{},
		Assertions:  []PackAssertion{},
		Extractions: []PackExtraction{},
		GeneratedAt: b.clock.Now(),
	}

	snaps, err := b.db.ListProjectSnapshots(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	slices.SortFunc(snaps, func(x, y *Snapshot) int { return cmp.Compare(x.ID, y.ID) })
	for _, s := range snaps {
		ps, err := b.packSnapshot(ctx, s)
		if err != nil {
			return nil, err
		}
		p.Snapshots = append(p.Snapshots, ps)
	}

	assertions, err := b.db.ListAssertions(ctx, AssertionFilter{ProjectID: &projectID, Chronological: true})
	if err != nil {
		return nil, fmt.Errorf("listing assertions: %w", err)
	}
	for _, a := range assertions {
		evidence, err := b.db.ListEvidence(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("listing evidence for assertion %d: %w", a.ID, err)
		}
		if evidence == nil {
			evidence = []*Evidence{}
		}
		p.Assertions = append(p.Assertions, PackAssertion{Assertion: a, EvidenceChain: evidence})
	}

	jobs, err := b.extraction.ListExtractionJobs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing extraction jobs: %w", err)
	}
	for _, job := range jobs {
		results, err := b.extraction.ListExtractionResults(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("listing results for job %d: %w", job.ID, err)
		}
		pe := PackExtraction{ExtractionJob: job, Results: []PackResult{}}
		for _, r := range results {
			pe.Results = append(pe.Results, PackResult{
				ID:           r.ID,
				ObjectID:     r.ObjectID,
				ResultType:   r.ResultType,
				Confidence:   r.Confidence,
				ModelVersion: r.ModelVersion,
				InputHash:    r.InputHash,
				CreatedAt:    r.CreatedAt,
			})
		}
		p.Extractions = append(p.Extractions, pe)
	}

	hash, err := PackHash(p)
	if err != nil {
		return nil, err
	}
	p.PackHash = hash
	return p, nil
}

func (b *PackBuilder) packSnapshot(ctx context.Context, s *Snapshot) (PackSnapshot, error) {
	ps := PackSnapshot{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Hash:        s.Hash,
		CitationID:  s.CitationID,
		ItemCount:   s.ItemCount,
		Status:      s.Status,
		QueryState:  rawJSON(s.QueryState),
		RightsState: rawJSON(s.RightsState),
		Metadata:    rawJSON(s.Metadata),
		FrozenAt:    s.FrozenAt,
		CreatedAt:   s.CreatedAt,
	}
	if s.Hash == nil || *s.Hash == "" {
		return ps, nil
	}
	items, err := b.db.ListSnapshotItems(ctx, s.ID)
	if err != nil {
		return ps, fmt.Errorf("listing items of snapshot %d: %w", s.ID, err)
	}
	valid := hashesEqual(*s.Hash, ComputeHash(s, items))
	ps.HashValid = &valid
	return ps, nil
}

func rawJSON(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	return json.RawMessage(*s)
}

// PackHash is the hex SHA-256 of the pack's JSON encoding without its hash.
func PackHash(p *Pack) (string, error) {
	unsealed := *p
	unsealed.PackHash = ""
	payload, err := canonicalJSON(unsealed)
	if err != nil {
		return "", fmt.Errorf("encoding pack: %w", err)
	}
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), nil
}

// VerifyPack reports whether the stored pack hash matches its content.
func VerifyPack(p *Pack) (bool, error) {
	hash, err := PackHash(p)
	if err != nil {
		return false, err
	}
	return p.PackHash != "" && hashesEqual(p.PackHash, hash), nil
}

// Store writes the pack to the vault, encrypted when an encryptor is set,
// and returns its key.
func (b *PackBuilder) Store(ctx context.Context, researcherID int64, p *Pack) (string, error) {
	payload, err := canonicalJSON(p)
	if err != nil {
		return "", fmt.Errorf("encoding pack: %w", err)
	}

	key := fmt.Sprintf("project-%d/%s", p.ProjectID, b.ids.New())
	data := []byte(payload)
	if b.encryptor != nil {
		var enc bytes.Buffer
		if err := b.encryptor.Encrypt(bytes.NewReader(data), &enc); err != nil {
			return "", fmt.Errorf("encrypting pack: %w", err)
		}
		data = enc.Bytes()
		key += encryptedPackSuffix
	} else {
		key += packSuffix
	}

	if err := b.vault.PutPack(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("storing pack: %w", err)
	}
	b.logger.Info("pack stored", "project", p.ProjectID, "key", key, "bytes", len(data))

	b.activity.record(ctx, Activity{
		ResearcherID: researcherID,
		ProjectID:    &p.ProjectID,
		ActivityType: "pack_generated",
		EntityType:   "project",
		EntityID:     p.ProjectID,
		Title:        strPtr(fmt.Sprintf("Reproducibility pack %s", p.PackHash)),
	})
	return key, nil
}

// Open reads a stored pack. Encrypted packs need dec.
func (b *PackBuilder) Open(ctx context.Context, key string, dec DecryptionContext) (*Pack, error) {
	var raw bytes.Buffer
	if err := b.vault.GetPack(ctx, key, &raw); err != nil {
		return nil, fmt.Errorf("reading pack %s: %w", key, err)
	}

	data := raw.Bytes()
	if strings.HasSuffix(key, encryptedPackSuffix) {
		if dec == nil {
			return nil, validationError(nil, "pack %s is encrypted", key)
		}
		var plain bytes.Buffer
		if err := dec.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return nil, fmt.Errorf("decrypting pack: %w", err)
		}
		data = plain.Bytes()
	}

	var p Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding pack: %w", err)
	}
	return &p, nil
}

// List returns the keys of the stored packs of a project.
func (b *PackBuilder) List(ctx context.Context, projectID int64) ([]string, error) {
	keys, err := b.vault.ListPacks(ctx, fmt.Sprintf("project-%d/", projectID))
	if err != nil {
		return nil, fmt.Errorf("listing packs: %w", err)
	}
	return keys, nil
}
