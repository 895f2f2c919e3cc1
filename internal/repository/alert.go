package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haoyan/vms808/internal/models"
)

// AlertRepository 报警事件仓库
type AlertRepository struct {
	db *DB
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// SaveAlert 写入报警事件
func (r *AlertRepository) SaveAlert(ctx context.Context, a *models.AlertEvent) error {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	query := `
		INSERT INTO alerts (id, vehicle_id, channel, priority, primary_type, signal_codes, event_time, latitude, longitude, speed, status, escalation_level, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		a.ID,
		a.VehicleID,
		a.Channel,
		string(a.Priority),
		a.PrimaryType,
		a.SignalCodes,
		a.Time,
		a.Latitude,
		a.Longitude,
		a.Speed,
		string(a.Status),
		a.EscalationLevel,
		evidence,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// UpdateAlert 更新报警状态与证据
func (r *AlertRepository) UpdateAlert(ctx context.Context, a *models.AlertEvent) error {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	query := `
		UPDATE alerts SET status = $1, escalation_level = $2, evidence = $3, acknowledged_at = $4, resolved_at = $5
		WHERE id = $6
	`
	_, err = r.db.Pool.Exec(ctx, query,
		string(a.Status),
		a.EscalationLevel,
		evidence,
		a.AcknowledgedAt,
		a.ResolvedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return nil
}

const alertColumns = `id, vehicle_id, channel, priority, primary_type, signal_codes, event_time, latitude, longitude, speed, status, escalation_level, evidence, created_at, acknowledged_at, resolved_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*models.AlertEvent, error) {
	a := &models.AlertEvent{}
	var priority, status string
	var evidence []byte

	err := row.Scan(
		&a.ID,
		&a.VehicleID,
		&a.Channel,
		&priority,
		&a.PrimaryType,
		&a.SignalCodes,
		&a.Time,
		&a.Latitude,
		&a.Longitude,
		&a.Speed,
		&status,
		&a.EscalationLevel,
		&evidence,
		&a.CreatedAt,
		&a.AcknowledgedAt,
		&a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Priority = models.Priority(priority)
	a.Status = models.AlertStatus(status)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return a, nil
}

// GetByID 查询单条报警
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// ListFilter 报警查询条件
type ListFilter struct {
	VehicleID string
	Status    string
	Priority  string
	Limit     int
	Offset    int
}

// List 按条件查询报警列表，按事件时间倒序
func (r *AlertRepository) List(ctx context.Context, f ListFilter) ([]*models.AlertEvent, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	args := []interface{}{}

	if f.VehicleID != "" {
		args = append(args, f.VehicleID)
		query += fmt.Sprintf(" AND vehicle_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	query += " ORDER BY event_time DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AlertEvent
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// AlertStats 报警统计
type AlertStats struct {
	Total      int64            `json:"total"`
	ByPriority map[string]int64 `json:"by_priority"`
	ByStatus   map[string]int64 `json:"by_status"`
}

// Stats 统计报警数量
func (r *AlertRepository) Stats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{
		ByPriority: make(map[string]int64),
		ByStatus:   make(map[string]int64),
	}

	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT priority, COUNT(*) FROM alerts GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("count by priority: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int64
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("scan priority count: %w", err)
		}
		stats.ByPriority[p] = n
	}

	statusRows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var s string
		var n int64
		if err := statusRows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[s] = n
	}

	return stats, nil
}
