package repository

import (
	"context"
	"fmt"

	"github.com/haoyan/vms808/internal/models"
)

// ClipRecord 证据片段记录
type ClipRecord struct {
	ID         int64   `json:"id"`
	AlertID    string  `json:"alert_id"`
	Kind       string  `json:"kind"` // pre / post / camera_pre / camera_post
	Path       string  `json:"path"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"`
	StorageURL string  `json:"storage_url,omitempty"`
}

// ClipRepository 证据片段仓库
type ClipRepository struct {
	db *DB
}

// NewClipRepository 创建片段仓库
func NewClipRepository(db *DB) *ClipRepository {
	return &ClipRepository{db: db}
}

// SaveClip 登记一个证据片段
func (r *ClipRepository) SaveClip(ctx context.Context, alertID, kind string, clip *models.ClipRef) error {
	query := `
		INSERT INTO evidence_clips (alert_id, kind, path, frame_count, duration, storage_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query, alertID, kind, clip.Path, clip.FrameCount, clip.Duration, clip.StorageURL)
	if err != nil {
		return fmt.Errorf("insert evidence clip: %w", err)
	}
	return nil
}

// ListByAlert 查询报警关联的全部片段
func (r *ClipRepository) ListByAlert(ctx context.Context, alertID string) ([]*ClipRecord, error) {
	query := `
		SELECT id, alert_id, kind, path, frame_count, duration, COALESCE(storage_url, '')
		FROM evidence_clips WHERE alert_id = $1 ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("list evidence clips: %w", err)
	}
	defer rows.Close()

	var clips []*ClipRecord
	for rows.Next() {
		c := &ClipRecord{}
		if err := rows.Scan(&c.ID, &c.AlertID, &c.Kind, &c.Path, &c.FrameCount, &c.Duration, &c.StorageURL); err != nil {
			return nil, fmt.Errorf("scan evidence clip: %w", err)
		}
		clips = append(clips, c)
	}
	return clips, nil
}
