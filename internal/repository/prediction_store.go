package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/domain/repository"
	pkgch "RegimeCast/pkg/clickhouse"
	applogger "RegimeCast/pkg/logger"
)

const predictionsTable = "regimecast.predictions"

// PredictionSchema holds the idempotent DDL for the prediction table. The
// ReplacingMergeTree keyed by (node, step) makes Store an upsert: writing a
// resolved copy of a record replaces the unresolved one.
var PredictionSchema = []string{
	"CREATE DATABASE IF NOT EXISTS regimecast",
	`CREATE TABLE IF NOT EXISTS regimecast.predictions (
        ts DateTime64(3),
        symbol String,
        node String,
        step Int64,
        horizon Int32,
        label String,
        confidence Float64,
        metric String,
        labels Array(String),
        probs Array(Float64),
        actual String,
        resolved UInt8,
        correct UInt8,
        version UInt8
    ) ENGINE = ReplacingMergeTree(version) ORDER BY (node, step)`,
}

// ClickHousePredictions implements PredictionStore backed by ClickHouse.
type ClickHousePredictions struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewClickHousePredictions(ch *pkgch.Client) repository.PredictionStore {
	return &ClickHousePredictions{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *ClickHousePredictions) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHousePredictions) Init(ctx context.Context) error {
	for _, stmt := range PredictionSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init predictions schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHousePredictions) Store(ctx context.Context, p *models.PredictionRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s
        (ts, symbol, node, step, horizon, label, confidence, metric, labels, probs, actual, resolved, correct, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, predictionsTable)

	resolved, correct := uint8(0), uint8(0)
	version := uint8(0)
	if p.Resolved() {
		resolved = 1
		version = 1
		if *p.Correct {
			correct = 1
		}
	}
	_, err := s.db.ExecContext(ctx, q,
		p.Timestamp,
		p.Symbol,
		p.Node,
		p.Step,
		int32(p.Horizon),
		p.Label,
		p.Confidence,
		p.Metric,
		p.Labels,
		p.Probabilities,
		p.Actual,
		resolved,
		correct,
		version,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store prediction error",
				applogger.String("node", p.Node),
				applogger.Int64("step", p.Step),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store prediction: %w", err)
	}
	return nil
}

func (s *ClickHousePredictions) Recent(ctx context.Context, node string, limit int) ([]*models.PredictionRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT ts, symbol, node, step, horizon, label, confidence, metric, labels, probs, actual, resolved, correct
        FROM %s FINAL
        WHERE node = ?
        ORDER BY step DESC
        LIMIT ?`, predictionsTable)

	rows, err := s.db.QueryContext(ctx, q, node, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse recent predictions query error",
				applogger.String("node", node),
				applogger.Int("limit", limit),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("recent predictions: %w", err)
	}
	defer rows.Close()

	tmp := make([]*models.PredictionRecord, 0, limit)
	for rows.Next() {
		var (
			p        models.PredictionRecord
			horizon  int32
			resolved uint8
			correct  uint8
		)
		if err := rows.Scan(&p.Timestamp, &p.Symbol, &p.Node, &p.Step, &horizon, &p.Label,
			&p.Confidence, &p.Metric, &p.Labels, &p.Probabilities, &p.Actual, &resolved, &correct); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Horizon = int(horizon)
		if resolved == 1 {
			c := correct == 1
			p.Correct = &c
		}
		tmp = append(tmp, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse recent predictions ok",
			applogger.String("node", node),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *ClickHousePredictions) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHousePredictions) Close() error {
	return nil // Managed by pkg
}
