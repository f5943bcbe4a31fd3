package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"

	"aerotool/internal/model"
	"aerotool/internal/repository"
)

// ImageRepository implements repository.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// GetImageURL returns the stored location of the annotated image.
func (r *ImageRepository) GetImageURL(id int64) (string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var url string
	err := r.db.Conn().QueryRow(`SELECT url FROM images WHERE id = ?`, id).Scan(&url)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get image: %w", err)
	}
	return url, nil
}

// GetByOperationID retrieves the images of an operation together with
// their detections.
func (r *ImageRepository) GetByOperationID(operationID int64) ([]model.ImageResult, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return imagesForOperation(r.db.Conn(), operationID)
}

func imagesForOperation(conn *sql.DB, operationID int64) ([]model.ImageResult, error) {
	rows, err := conn.Query(`
		SELECT id, url, file_name, detection_time_ms, image_confidence
		FROM images WHERE operation_id = ? ORDER BY id
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}

	type row struct {
		id  int64
		img model.ImageResult
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.img.ImageURL, &r.img.FileName, &r.img.DetectionTime, &r.img.ImageConfidence); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		r.img.ImageID = strconv.FormatInt(r.id, 10)
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read images: %w", err)
	}
	// single connection pool: the cursor must be released before the
	// per-image detection queries
	rows.Close()

	images := make([]model.ImageResult, 0, len(found))
	for _, r := range found {
		results, err := detectionsForImage(conn, r.id)
		if err != nil {
			return nil, err
		}
		r.img.Results = results
		images = append(images, r.img)
	}
	return images, nil
}
