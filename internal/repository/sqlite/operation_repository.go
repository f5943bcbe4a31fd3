package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"aerotool/internal/model"
	"aerotool/internal/repository"
)

// OperationRepository implements repository.OperationRepository for SQLite.
type OperationRepository struct {
	db *DB
}

// NewOperationRepository creates a new SQLite operation repository.
func NewOperationRepository(db *DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// SaveOperation stores the operation, its images and their detections in a
// single transaction, parents first. Nothing is written unless every row
// was inserted.
func (r *OperationRepository) SaveOperation(ctx context.Context, op *model.RecognitionOperation) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO operations (uid, timestamp, images_count, overall_match, kit_name, recognition_threshold)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.ID, op.Timestamp, op.Summary.TotalImages, op.Summary.AverageMatch, op.Toolset, op.Recognition)
	if err != nil {
		return 0, fmt.Errorf("failed to insert operation: %w", err)
	}
	opID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get operation id: %w", err)
	}

	imgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO images (operation_id, url, file_name, detection_time_ms, image_confidence, raw_results_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer imgStmt.Close()

	detStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (image_id, name, confidence, color)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer detStmt.Close()

	for _, img := range op.Images {
		raw, err := json.Marshal(rawResults(img.Results))
		if err != nil {
			return 0, fmt.Errorf("failed to encode results: %w", err)
		}

		res, err := imgStmt.ExecContext(ctx, opID, img.ImageURL, img.FileName, img.DetectionTime, img.ImageConfidence, string(raw))
		if err != nil {
			return 0, fmt.Errorf("failed to insert image: %w", err)
		}
		imageID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get image id: %w", err)
		}

		for _, det := range img.Results {
			if _, err := detStmt.ExecContext(ctx, imageID, det.Name, det.Confidence, det.Color); err != nil {
				return 0, fmt.Errorf("failed to insert detection: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit operation: %w", err)
	}
	return opID, nil
}

// GetOperation reconstructs a stored operation. The summary is recomputed
// from the image rows.
func (r *OperationRepository) GetOperation(id int64) (*model.RecognitionOperation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	op := &model.RecognitionOperation{ID: strconv.FormatInt(id, 10)}
	err := r.db.Conn().QueryRow(`
		SELECT timestamp, kit_name, recognition_threshold
		FROM operations WHERE id = ?
	`, id).Scan(&op.Timestamp, &op.Toolset, &op.Recognition)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	images, err := imagesForOperation(r.db.Conn(), id)
	if err != nil {
		return nil, err
	}
	op.Images = images
	op.Summary = model.Summarize(images)
	return op, nil
}

// ListOperations returns one page of operations, newest first. Pages start
// at 1.
func (r *OperationRepository) ListOperations(page, limit int) ([]model.OperationSummary, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT o.id, o.timestamp, o.images_count, o.overall_match, o.recognition_threshold, o.kit_name,
			COALESCE((SELECT SUM(i.detection_time_ms) FROM images i WHERE i.operation_id = o.id), 0)
		FROM operations o
		ORDER BY o.timestamp DESC, o.id DESC
		LIMIT ? OFFSET ?
	`, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	operations := []model.OperationSummary{}
	for rows.Next() {
		var s model.OperationSummary
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.ImageCount, &s.OverallMatch, &s.Recognition, &s.Toolset, &s.DetectionTime); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		operations = append(operations, s)
	}
	return operations, rows.Err()
}

// Statistics returns store-wide aggregates.
func (r *OperationRepository) Statistics() (*model.HistoryStatistics, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		stats   model.HistoryStatistics
		avgTime float64
	)
	err := r.db.Conn().QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM operations),
			(SELECT COUNT(*) FROM images),
			(SELECT COALESCE(AVG(detection_time_ms), 0) FROM images),
			(SELECT COALESCE(AVG(confidence), 0) FROM detections)
	`).Scan(&stats.TotalOperations, &stats.TotalImages, &avgTime, &stats.AverageAccuracy)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	stats.AverageProcessingTime = int64(avgTime)
	return &stats, nil
}

// rawResults drops row ids so the archived JSON matches the payload.
func rawResults(results []model.RecognitionResult) []model.RecognitionResult {
	out := make([]model.RecognitionResult, len(results))
	for i, res := range results {
		res.ID = 0
		out[i] = res
	}
	return out
}
