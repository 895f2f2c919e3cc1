package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateAlerts,
		migrationCreateEvidenceClips,
		migrationCreateAlarmReports,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id VARCHAR(36) PRIMARY KEY,
    vehicle_id VARCHAR(20) NOT NULL,
    channel INT NOT NULL DEFAULT 0,
    priority VARCHAR(10) NOT NULL,
    primary_type VARCHAR(50) NOT NULL,
    signal_codes TEXT[] NOT NULL DEFAULT '{}',
    event_time TIMESTAMP WITH TIME ZONE NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    speed DOUBLE PRECISION,
    status VARCHAR(20) NOT NULL DEFAULT 'new',
    escalation_level INT NOT NULL DEFAULT 0,
    evidence JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    acknowledged_at TIMESTAMP WITH TIME ZONE,
    resolved_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_id ON alerts(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_priority ON alerts(priority);
CREATE INDEX IF NOT EXISTS idx_alerts_event_time ON alerts(event_time);
`

const migrationCreateEvidenceClips = `
CREATE TABLE IF NOT EXISTS evidence_clips (
    id BIGSERIAL PRIMARY KEY,
    alert_id VARCHAR(36) NOT NULL REFERENCES alerts(id),
    kind VARCHAR(15) NOT NULL,
    path TEXT NOT NULL,
    frame_count INT NOT NULL DEFAULT 0,
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    storage_url TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_evidence_clips_alert_id ON evidence_clips(alert_id);
`

const migrationCreateAlarmReports = `
CREATE TABLE IF NOT EXISTS alarm_reports (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id VARCHAR(20) NOT NULL,
    event_time TIMESTAMP WITH TIME ZONE NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    altitude INT,
    speed DOUBLE PRECISION,
    heading INT,
    alarm_flag BIGINT NOT NULL DEFAULT 0,
    status_flag BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alarm_reports_vehicle_id ON alarm_reports(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_alarm_reports_event_time ON alarm_reports(event_time);
`
