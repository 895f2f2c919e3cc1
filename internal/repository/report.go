package repository

import (
	"context"
	"fmt"

	"github.com/haoyan/vms808/internal/models"
)

// ReportRepository 位置汇报历史仓库
type ReportRepository struct {
	db *DB
}

// NewReportRepository 创建位置汇报仓库
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save 写入一条位置汇报
func (r *ReportRepository) Save(ctx context.Context, report *models.AlarmReport) error {
	query := `
		INSERT INTO alarm_reports (vehicle_id, event_time, latitude, longitude, altitude, speed, heading, alarm_flag, status_flag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		report.VehicleID,
		report.Time,
		report.Latitude,
		report.Longitude,
		report.Altitude,
		report.Speed,
		report.Heading,
		int64(report.AlarmFlag),
		int64(report.StatusFlag),
	)
	if err != nil {
		return fmt.Errorf("insert alarm report: %w", err)
	}
	return nil
}

// ListByVehicle 查询车辆最近的位置汇报
func (r *ReportRepository) ListByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.AlarmReport, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT vehicle_id, event_time, latitude, longitude, altitude, speed, heading, alarm_flag, status_flag
		FROM alarm_reports WHERE vehicle_id = $1 ORDER BY event_time DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alarm reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.AlarmReport
	for rows.Next() {
		rep := &models.AlarmReport{}
		var alarmFlag, statusFlag int64
		if err := rows.Scan(&rep.VehicleID, &rep.Time, &rep.Latitude, &rep.Longitude, &rep.Altitude, &rep.Speed, &rep.Heading, &alarmFlag, &statusFlag); err != nil {
			return nil, fmt.Errorf("scan alarm report: %w", err)
		}
		rep.AlarmFlag = uint32(alarmFlag)
		rep.StatusFlag = uint32(statusFlag)
		reports = append(reports, rep)
	}
	return reports, nil
}
