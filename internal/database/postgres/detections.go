package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Detection is one row of detection_events.
type Detection struct {
	ID           int64
	SourceID     string
	Label        string
	DetectedAt   time.Time
	EvidencePath string
	Distance     float64
	Embedding    []float32 // nil when the detection had no face embedding
	CreatedAt    time.Time
}

// DetectionRepository reads and appends detection events.
// Rows are never updated or deleted.
type DetectionRepository struct {
	pool *Pool
}

// NewDetectionRepository creates a repository over pool.
func NewDetectionRepository(pool *Pool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

// InsertDetection appends a detection and returns its ID.
func (r *DetectionRepository) InsertDetection(ctx context.Context, d Detection) (int64, error) {
	var vec any
	if len(d.Embedding) > 0 {
		vec = pgvector.NewVector(d.Embedding)
	}

	var id int64
	err := r.pool.db.QueryRowContext(ctx, `
		INSERT INTO detection_events (source_id, label, detected_at, evidence_path, distance, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, d.SourceID, d.Label, d.DetectedAt, d.EvidencePath, d.Distance, vec).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert detection: %w", err)
	}
	return id, nil
}

// ListDetections returns the most recent detections first.
func (r *DetectionRepository) ListDetections(ctx context.Context, limit int) ([]Detection, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, source_id, label, detected_at, evidence_path, distance, embedding, created_at
		FROM detection_events
		ORDER BY detected_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	detections, _, err := scanDetections(rows, false)
	return detections, err
}

// FindSimilar returns detections whose stored embedding lies within
// maxDistance (Euclidean) of query, nearest first.
func (r *DetectionRepository) FindSimilar(ctx context.Context, query []float32, maxDistance float64, limit int) ([]Detection, []float64, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, source_id, label, detected_at, evidence_path, distance, embedding, created_at,
		       embedding <-> $1::vector AS query_distance
		FROM detection_events
		WHERE embedding IS NOT NULL
		  AND vector_dims(embedding) = vector_dims($1::vector)
		  AND embedding <-> $1::vector < $2
		ORDER BY query_distance
		LIMIT $3
	`, pgvector.NewVector(query), maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows, true)
}

// CountDetections returns the number of stored detections.
func (r *DetectionRepository) CountDetections(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detection_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}

func scanDetections(rows *sql.Rows, withDistance bool) ([]Detection, []float64, error) {
	var detections []Detection
	var distances []float64

	for rows.Next() {
		var d Detection
		var vec pgvector.Vector
		var queryDist float64
		dest := []any{&d.ID, &d.SourceID, &d.Label, &d.DetectedAt, &d.EvidencePath, &d.Distance, &vec, &d.CreatedAt}
		if withDistance {
			dest = append(dest, &queryDist)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan detection: %w", err)
		}
		if s := vec.Slice(); len(s) > 0 {
			d.Embedding = s
		}
		detections = append(detections, d)
		if withDistance {
			distances = append(distances, queryDist)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate detections: %w", err)
	}
	return detections, distances, nil
}
