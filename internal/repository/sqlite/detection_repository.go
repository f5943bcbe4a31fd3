package sqlite

import (
	"database/sql"
	"fmt"

	"aerotool/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// GetByImageID retrieves all detections for an image in insertion order.
func (r *DetectionRepository) GetByImageID(imageID int64) ([]model.RecognitionResult, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return detectionsForImage(r.db.Conn(), imageID)
}

// GetAllNames returns a list of all unique detected class names.
func (r *DetectionRepository) GetAllNames() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT name FROM detections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan detection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func detectionsForImage(conn *sql.DB, imageID int64) ([]model.RecognitionResult, error) {
	rows, err := conn.Query(`
		SELECT id, name, confidence, color
		FROM detections WHERE image_id = ? ORDER BY id
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	results := []model.RecognitionResult{}
	for rows.Next() {
		var res model.RecognitionResult
		if err := rows.Scan(&res.ID, &res.Name, &res.Confidence, &res.Color); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
