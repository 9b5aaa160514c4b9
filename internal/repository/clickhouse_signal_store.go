package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	pkgch "CryptoScanner/pkg/clickhouse"
	applogger "CryptoScanner/pkg/logger"
)

// CHSignalStore persists per-run signals in ClickHouse. Runs are
// append-only; readers pick the newest run.
type CHSignalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client) *CHSignalStore {
	return &CHSignalStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

var signalSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
        run_id          String,
        run_at          DateTime,
        symbol          String,
        expected_return Float64,
        bull_return     Float64,
        bear_return     Float64,
        class           String,
        strength        String,
        capped          UInt8,
        avg_confidence  Float64,
        events          String
    ) ENGINE = MergeTree()
    ORDER BY (run_at, symbol)
    TTL run_at + INTERVAL 30 DAY`,
}

func (s *CHSignalStore) Init(ctx context.Context) error {
	for _, stmt := range signalSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init signal schema: %w", err)
		}
	}
	return nil
}

func (s *CHSignalStore) SaveSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	start := time.Now()
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*11)
	for i := range signals {
		sig := &signals[i]
		events, err := json.Marshal(sig.Events)
		if err != nil {
			return fmt.Errorf("marshal signal events: %w", err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			sig.RunID, sig.RunAt, sig.Symbol,
			sig.ExpectedReturn, sig.BullReturn, sig.BearReturn,
			string(sig.Class), string(sig.Strength), boolToUint8(sig.Capped),
			sig.AvgConfidence, string(events),
		)
	}
	q := `INSERT INTO signals
        (run_id, run_at, symbol, expected_return, bull_return, bear_return, class, strength, capped, avg_confidence, events)
        VALUES ` + strings.Join(values, ",")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_signals error", applogger.Error(err))
		}
		return fmt.Errorf("save signals: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse save_signals ok",
			applogger.Int("rows", len(signals)),
			applogger.Duration("duration", time.Since(start)))
	}
	return nil
}

const signalCols = `run_id, run_at, symbol, expected_return, bull_return, bear_return, class, strength, capped, avg_confidence, events`

func scanSignals(rows *sql.Rows) ([]models.Signal, error) {
	var out []models.Signal
	for rows.Next() {
		var sig models.Signal
		var class, strength, events string
		var capped uint8
		if err := rows.Scan(&sig.RunID, &sig.RunAt, &sig.Symbol,
			&sig.ExpectedReturn, &sig.BullReturn, &sig.BearReturn,
			&class, &strength, &capped, &sig.AvgConfidence, &events); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Class = models.SignalClass(class)
		sig.Strength = models.SignalStrength(strength)
		sig.Capped = capped != 0
		if events != "" {
			if err := json.Unmarshal([]byte(events), &sig.Events); err != nil {
				return nil, fmt.Errorf("unmarshal signal events: %w", err)
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// LatestSignals returns the newest run's signals ordered by absolute
// expected return.
func (s *CHSignalStore) LatestSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	q := fmt.Sprintf(`SELECT %s FROM signals
        WHERE run_id = (SELECT run_id FROM signals ORDER BY run_at DESC LIMIT 1)
        ORDER BY abs(expected_return) DESC
        LIMIT ?`, signalCols)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("latest signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (s *CHSignalStore) SignalForSymbol(ctx context.Context, symbol string) (*models.Signal, error) {
	q := fmt.Sprintf(`SELECT %s FROM signals WHERE symbol = ? ORDER BY run_at DESC LIMIT 1`, signalCols)
	rows, err := s.db.QueryContext(ctx, q, symbol)
	if err != nil {
		return nil, fmt.Errorf("signal for symbol: %w", err)
	}
	defer rows.Close()
	signals, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, nil
	}
	return &signals[0], nil
}

var _ domrepo.SignalStore = (*CHSignalStore)(nil)
