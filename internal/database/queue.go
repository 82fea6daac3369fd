package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"provenance-go/internal/research"
)

const queueEntryColumns = `vq.id, vq.result_id, vq.researcher_id, vq.status, vq.reviewer_id, vq.reviewed_at, vq.notes,
	vq.modified_data_json, vq.created_at`

func scanQueueEntry(r rowScanner) (*research.QueueEntry, error) {
	var e research.QueueEntry
	var modified *string
	if err := r.Scan(&e.ID, &e.ResultID, &e.ResearcherID, &e.Status, &e.ReviewerID, &e.ReviewedAt, &e.Notes,
		&modified, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ModifiedData = jsonOf(modified)
	return &e, nil
}

func scanQueueItem(r rowScanner) (*research.QueueItem, error) {
	var it research.QueueItem
	var modified, data *string
	if err := r.Scan(&it.ID, &it.ResultID, &it.ResearcherID, &it.Status, &it.ReviewerID, &it.ReviewedAt, &it.Notes,
		&modified, &it.CreatedAt,
		&it.ObjectID, &it.ObjectTitle, &it.ResultType, &data, &it.Confidence, &it.ModelVersion,
		&it.JobID, &it.ExtractionType, &it.ProjectID); err != nil {
		return nil, err
	}
	it.ModifiedData = jsonOf(modified)
	it.Data = jsonOf(data)
	return &it, nil
}

func (s *SQLiteDatabase) EnqueueResult(ctx context.Context, e *research.QueueEntry) (*research.QueueEntry, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_queue (result_id, researcher_id, status, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ResultID, e.ResearcherID, e.Status, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueueing result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading queue entry id: %w", err)
	}
	entry, err := scanQueueEntry(s.db.QueryRowContext(ctx, "SELECT "+queueEntryColumns+" FROM validation_queue vq WHERE vq.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reloading queue entry: %w", err)
	}
	return entry, nil
}

// ListQueue returns one page of queue items, newest first, and the number of
// items matching q across all pages.
func (s *SQLiteDatabase) ListQueue(ctx context.Context, q research.QueueQuery) ([]*research.QueueItem, int, error) {
	from := `FROM validation_queue vq
		JOIN extraction_results er ON er.id = vq.result_id
		JOIN extraction_jobs ej ON ej.id = er.job_id
		LEFT JOIN object_metadata om ON om.object_id = er.object_id AND om.culture = ?`
	args := []any{s.culture}

	var where []string
	if q.ResearcherID != nil {
		where = append(where, "vq.researcher_id = ?")
		args = append(args, *q.ResearcherID)
	}
	if q.Status != "" {
		where = append(where, "vq.status = ?")
		args = append(args, q.Status)
	}
	if q.ResultType != "" {
		where = append(where, "er.result_type = ?")
		args = append(args, q.ResultType)
	}
	if q.ExtractionType != "" {
		where = append(where, "ej.extraction_type = ?")
		args = append(args, q.ExtractionType)
	}
	if q.MinConfidence != nil {
		where = append(where, "er.confidence >= ?")
		args = append(args, *q.MinConfidence)
	}
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting queue: %w", err)
	}

	query := "SELECT " + queueEntryColumns + `,
		er.object_id, om.title, er.result_type, er.data_json, er.confidence, er.model_version,
		er.job_id, ej.extraction_type, ej.project_id ` + from +
		" ORDER BY vq.created_at DESC, vq.id DESC LIMIT ? OFFSET ?"
	pageArgs := append(append([]any{}, args...), q.Limit, (q.Page-1)*q.Limit)

	items, err := queryList(ctx, s.db, scanQueueItem, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing queue: %w", err)
	}
	return items, total, nil
}

func (s *SQLiteDatabase) QueueStats(ctx context.Context, researcherID *int64) (*research.QueueStats, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN vq.status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN vq.status = 'accepted' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN vq.status = 'rejected' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN vq.status = 'modified' THEN 1 ELSE 0 END), 0),
		AVG(CASE WHEN vq.status = 'pending' THEN er.confidence END)
		FROM validation_queue vq
		JOIN extraction_results er ON er.id = vq.result_id`
	var args []any
	if researcherID != nil {
		query += " WHERE vq.researcher_id = ?"
		args = append(args, *researcherID)
	}

	var st research.QueueStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&st.Pending, &st.Accepted, &st.Rejected, &st.Modified, &st.AvgPendingConfidence); err != nil {
		return nil, fmt.Errorf("computing queue stats: %w", err)
	}
	st.Total = st.Pending + st.Accepted + st.Rejected + st.Modified
	return &st, nil
}

func (s *SQLiteDatabase) ListQueueEntries(ctx context.Context, resultID int64) ([]*research.QueueEntry, error) {
	list, err := queryList(ctx, s.db, scanQueueEntry,
		"SELECT "+queueEntryColumns+" FROM validation_queue vq WHERE vq.result_id = ? ORDER BY vq.id", resultID)
	if err != nil {
		return nil, fmt.Errorf("listing queue entries: %w", err)
	}
	return list, nil
}

// ApplyReview moves every pending entry of the result to rv.To and inserts
// the promoted assertion, if any, in the same transaction.
func (s *SQLiteDatabase) ApplyReview(ctx context.Context, rv research.Review, promoted *research.Assertion) (bool, *research.Assertion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE validation_queue
		SET status = ?, reviewer_id = ?, reviewed_at = ?, notes = ?, modified_data_json = ?
		WHERE result_id = ? AND status = 'pending'`,
		rv.To, rv.ReviewerID, rv.ReviewedAt, rv.Notes, textOf(rv.ModifiedData), rv.ResultID)
	if err != nil {
		return false, nil, fmt.Errorf("updating queue entries: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, nil, err
	}

	var created *research.Assertion
	if promoted != nil {
		id, err := insertAssertion(ctx, tx, promoted)
		if err != nil {
			return false, nil, fmt.Errorf("inserting promoted assertion: %w", err)
		}
		if created, err = findAssertion(ctx, tx, id); err != nil {
			return false, nil, fmt.Errorf("reloading promoted assertion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("committing transaction: %w", err)
	}
	return true, created, nil
}

// ListJobReviews returns the decided entries of a job's results, grouped by
// result in result id order.
func (s *SQLiteDatabase) ListJobReviews(ctx context.Context, jobID int64) ([]*research.ReviewRow, error) {
	scan := func(r rowScanner) (*research.ReviewRow, error) {
		var row research.ReviewRow
		var modified, data *string
		if err := r.Scan(&row.ValidationID, &row.Status, &row.ReviewerID, &row.ReviewedAt, &row.Notes, &modified,
			&row.ResultID, &row.ObjectID, &row.ResultType, &data, &row.Confidence); err != nil {
			return nil, err
		}
		row.ModifiedData = jsonOf(modified)
		row.Data = jsonOf(data)
		return &row, nil
	}
	list, err := queryList(ctx, s.db, scan, `
		SELECT vq.id, vq.status, vq.reviewer_id, vq.reviewed_at, vq.notes, vq.modified_data_json,
			er.id, er.object_id, er.result_type, er.data_json, er.confidence
		FROM validation_queue vq
		JOIN extraction_results er ON er.id = vq.result_id
		WHERE er.job_id = ? AND vq.status <> 'pending'
		ORDER BY er.id, vq.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing job reviews: %w", err)
	}
	return list, nil
}

// Extraction results

const extractionResultColumns = `id, job_id, object_id, result_type, data_json, confidence, model_version, input_hash, created_at`

func scanExtractionResult(r rowScanner) (*research.ExtractionResult, error) {
	var res research.ExtractionResult
	var data string
	if err := r.Scan(&res.ID, &res.JobID, &res.ObjectID, &res.ResultType, &data, &res.Confidence,
		&res.ModelVersion, &res.InputHash, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.Data = jsonOf(&data)
	return &res, nil
}

const extractionJobColumns = `id, project_id, researcher_id, extraction_type, status, created_at`

func scanExtractionJob(r rowScanner) (*research.ExtractionJob, error) {
	var j research.ExtractionJob
	if err := r.Scan(&j.ID, &j.ProjectID, &j.ResearcherID, &j.ExtractionType, &j.Status, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *SQLiteDatabase) FindExtractionResult(ctx context.Context, id int64) (*research.ExtractionResult, error) {
	res, err := scanExtractionResult(s.db.QueryRowContext(ctx,
		"SELECT "+extractionResultColumns+" FROM extraction_results WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding extraction result: %w", err)
	}
	return res, nil
}

func (s *SQLiteDatabase) FindExtractionJob(ctx context.Context, id int64) (*research.ExtractionJob, error) {
	j, err := scanExtractionJob(s.db.QueryRowContext(ctx,
		"SELECT "+extractionJobColumns+" FROM extraction_jobs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding extraction job: %w", err)
	}
	return j, nil
}

func (s *SQLiteDatabase) ListExtractionJobs(ctx context.Context, projectID int64) ([]*research.ExtractionJob, error) {
	list, err := queryList(ctx, s.db, scanExtractionJob,
		"SELECT "+extractionJobColumns+" FROM extraction_jobs WHERE project_id = ? ORDER BY created_at, id", projectID)
	if err != nil {
		return nil, fmt.Errorf("listing extraction jobs: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) ListExtractionResults(ctx context.Context, jobID int64) ([]*research.ExtractionResult, error) {
	list, err := queryList(ctx, s.db, scanExtractionResult,
		"SELECT "+extractionResultColumns+" FROM extraction_results WHERE job_id = ? ORDER BY id", jobID)
	if err != nil {
		return nil, fmt.Errorf("listing extraction results: %w", err)
	}
	return list, nil
}

func insertExtractionJob(ctx context.Context, q querier, j *research.ExtractionJob) (int64, error) {
	status := j.Status
	if status == "" {
		status = "completed"
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO extraction_jobs (project_id, researcher_id, extraction_type, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.ProjectID, j.ResearcherID, j.ExtractionType, status, j.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("creating extraction job: %w", err)
	}
	return res.LastInsertId()
}

func insertExtractionResult(ctx context.Context, q querier, r *research.ExtractionResult) (int64, error) {
	data := "{}"
	if len(r.Data) > 0 {
		data = string(r.Data)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO extraction_results (job_id, object_id, result_type, data_json, confidence, model_version, input_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.ObjectID, r.ResultType, data, r.Confidence, r.ModelVersion, r.InputHash, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("creating extraction result: %w", err)
	}
	return res.LastInsertId()
}

// CreateExtractionJob records a job of the extraction pipeline.
func (s *SQLiteDatabase) CreateExtractionJob(ctx context.Context, j *research.ExtractionJob) (*research.ExtractionJob, error) {
	id, err := insertExtractionJob(ctx, s.db, j)
	if err != nil {
		return nil, err
	}
	return s.FindExtractionJob(ctx, id)
}

// CreateExtractionResult records one output of an extraction job.
func (s *SQLiteDatabase) CreateExtractionResult(ctx context.Context, r *research.ExtractionResult) (*research.ExtractionResult, error) {
	id, err := insertExtractionResult(ctx, s.db, r)
	if err != nil {
		return nil, err
	}
	return s.FindExtractionResult(ctx, id)
}

// ImportExtractionBatch records a job with its results and opens a pending
// review of each result for researcherID. Nothing is written unless every
// row is.
func (s *SQLiteDatabase) ImportExtractionBatch(ctx context.Context, j *research.ExtractionJob, results []*research.ExtractionResult, researcherID int64) (*research.ExtractionJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	jobID, err := insertExtractionJob(ctx, tx, j)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.JobID = jobID
		id, err := insertExtractionResult(ctx, tx, r)
		if err != nil {
			return nil, err
		}
		r.ID = id
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO validation_queue (result_id, researcher_id, status, created_at)
			VALUES (?, ?, ?, ?)`,
			id, researcherID, research.ValidationPending, j.CreatedAt); err != nil {
			return nil, fmt.Errorf("enqueueing result %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return s.FindExtractionJob(ctx, jobID)
}
