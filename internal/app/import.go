package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"provenance-go/internal/research"
)

// ExtractionBatch is the file format accepted by `prov queue import`: one
// job of the external extraction pipeline and its results.
type ExtractionBatch struct {
	ProjectID      *int64            `json:"project_id" validate:"omitempty,gt=0"`
	ExtractionType string            `json:"extraction_type" validate:"required"`
	Results        []ExtractedResult `json:"results" validate:"required,min=1,dive"`
}

// ExtractedResult is one candidate fact in an ExtractionBatch.
type ExtractedResult struct {
	ObjectID     int64           `json:"object_id" validate:"gt=0"`
	ResultType   string          `json:"result_type" validate:"required"`
	Data         json.RawMessage `json:"data"`
	Confidence   *float64        `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	ModelVersion *string         `json:"model_version"`
	InputHash    *string         `json:"input_hash"`
}

// ImportSummary reports what an import created.
type ImportSummary struct {
	JobID    int64 `json:"job_id"`
	Results  int   `json:"results"`
	Enqueued int   `json:"enqueued"`
}

var batchValidator = validator.New()

// ImportExtraction records a batch from the extraction pipeline and queues
// every result for review by the session's researcher. The batch is written
// in one transaction.
func (a *ResearchApp) ImportExtraction(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	var batch ExtractionBatch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decoding extraction batch: %w", err)
	}
	if err := batchValidator.Struct(&batch); err != nil {
		return nil, fmt.Errorf("invalid extraction batch: %w", err)
	}
	for i, res := range batch.Results {
		if len(res.Data) > 0 && !json.Valid(res.Data) {
			return nil, fmt.Errorf("result %d: data is not valid JSON", i)
		}
	}

	now := a.op.StartedAt
	results := make([]*research.ExtractionResult, len(batch.Results))
	for i, res := range batch.Results {
		results[i] = &research.ExtractionResult{
			ObjectID:     res.ObjectID,
			ResultType:   res.ResultType,
			Data:         res.Data,
			Confidence:   res.Confidence,
			ModelVersion: res.ModelVersion,
			InputHash:    res.InputHash,
			CreatedAt:    now,
		}
	}
	job, err := a.db.ImportExtractionBatch(ctx, &research.ExtractionJob{
		ProjectID:      batch.ProjectID,
		ResearcherID:   a.op.ActorID,
		ExtractionType: batch.ExtractionType,
		CreatedAt:      now,
	}, results, a.op.ActorID)
	if err != nil {
		return nil, fmt.Errorf("importing extraction batch: %w", err)
	}

	summary := &ImportSummary{JobID: job.ID, Results: len(results), Enqueued: len(results)}
	a.logger.Info("extraction batch imported", "job", job.ID, "results", summary.Results)
	return summary, nil
}
