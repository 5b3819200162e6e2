package core

// store.go — the durable persistence layer (spec.md §6 logical schema):
// three tables (bots, vaults, logs), a Postgres implementation via
// jmoiron/sqlx over lib/pq.
//
// Grounded on peterzen-dcrdex's go.mod (lib/pq as the sole SQL driver
// dependency in the pack with a genuine Postgres-backed DEX domain) and
// r3e-network-service_layer's use of jmoiron/sqlx for struct-scanned query
// results (other_examples/manifests); neither teacher lineage file exercises
// a relational store, so this component is grounded entirely on the rest of
// the pack per the "enrich from the rest of the pack" instruction.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// logRetentionPerMint is the maximum number of BotLog rows kept per
// token-mint (spec.md §3).
const logRetentionPerMint = 1000

// PostgresStore is the production Store (spec.md §6).
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgresStore connects to dsn and pings it; the tables themselves are
// not checked.
// Schema migration is out of scope for this engine (spec.md §1 non-goals);
// the three tables are expected to already exist.
func OpenPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres store: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

type botRow struct {
	Mint           string         `db:"mint"`
	Vault          string         `db:"vault"`
	Owner          string         `db:"owner"`
	Strategy       string         `db:"strategy"`
	ConfigJSON     sql.NullString `db:"config_json"`
	TotalTrades    uint64         `db:"total_trades"`
	TotalVolumeSOL float64        `db:"total_volume_sol"`
	LastTrade      sql.NullTime   `db:"last_trade"`
	Status         string         `db:"status"`
}

func (r botRow) toRecord() (BotRecord, error) {
	mint, err := ParseAddress(r.Mint)
	if err != nil {
		return BotRecord{}, fmt.Errorf("bot row mint: %w", err)
	}
	vault, err := ParseAddress(r.Vault)
	if err != nil {
		return BotRecord{}, fmt.Errorf("bot row vault: %w", err)
	}
	owner, err := ParseAddress(r.Owner)
	if err != nil {
		return BotRecord{}, fmt.Errorf("bot row owner: %w", err)
	}
	rec := BotRecord{
		TokenMint:      mint,
		VaultStateAddr: vault,
		OwnerKey:       owner,
		StrategyName:   r.Strategy,
		TotalTrades:    r.TotalTrades,
		TotalVolumeSOL: r.TotalVolumeSOL,
		Status:         BotStatus(r.Status),
	}
	if r.ConfigJSON.Valid {
		rec.StrategyConfig = []byte(r.ConfigJSON.String)
	}
	if r.LastTrade.Valid {
		t := r.LastTrade.Time
		rec.LastTradeTime = &t
	}
	return rec, nil
}

// UpsertBot inserts or updates a bot record by its primary key (mint).
func (s *PostgresStore) UpsertBot(ctx context.Context, b BotRecord) error {
	const q = `
INSERT INTO bots (mint, vault, owner, strategy, config_json, total_trades, total_volume_sol, last_trade, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (mint) DO UPDATE SET
  vault = EXCLUDED.vault,
  owner = EXCLUDED.owner,
  strategy = EXCLUDED.strategy,
  config_json = EXCLUDED.config_json,
  total_trades = EXCLUDED.total_trades,
  total_volume_sol = EXCLUDED.total_volume_sol,
  last_trade = EXCLUDED.last_trade,
  status = EXCLUDED.status`

	var lastTrade *time.Time
	if b.LastTradeTime != nil {
		lastTrade = b.LastTradeTime
	}
	var cfg any
	if len(b.StrategyConfig) > 0 {
		cfg = string(b.StrategyConfig)
	}
	_, err := s.db.ExecContext(ctx, q, b.TokenMint.String(), b.VaultStateAddr.String(), b.OwnerKey.String(), b.StrategyName, cfg, b.TotalTrades, b.TotalVolumeSOL, lastTrade, string(b.Status))
	if err != nil {
		return fmt.Errorf("upsert bot %s: %w", b.TokenMint.Short(), err)
	}
	return nil
}

// GetBot fetches one bot record by mint.
func (s *PostgresStore) GetBot(ctx context.Context, mint Address) (BotRecord, bool, error) {
	const q = `SELECT mint, vault, owner, strategy, config_json, total_trades, total_volume_sol, last_trade, status FROM bots WHERE mint = $1`
	var row botRow
	if err := s.db.GetContext(ctx, &row, q, mint.String()); err != nil {
		if err == sql.ErrNoRows {
			return BotRecord{}, false, nil
		}
		return BotRecord{}, false, fmt.Errorf("get bot %s: %w", mint.Short(), err)
	}
	rec, err := row.toRecord()
	return rec, true, err
}

// ListRunningBots returns every bot record with status = running, the set
// the manager resumes at boot (spec.md §4.5).
func (s *PostgresStore) ListRunningBots(ctx context.Context) ([]BotRecord, error) {
	const q = `SELECT mint, vault, owner, strategy, config_json, total_trades, total_volume_sol, last_trade, status FROM bots WHERE status = 'running'`
	var rows []botRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list running bots: %w", err)
	}
	out := make([]BotRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetBotInactive flips a bot record's status to stopped (spec.md §4.4
// permanent-halt path).
func (s *PostgresStore) SetBotInactive(ctx context.Context, mint Address) error {
	const q = `UPDATE bots SET status = 'stopped' WHERE mint = $1`
	if _, err := s.db.ExecContext(ctx, q, mint.String()); err != nil {
		return fmt.Errorf("set bot inactive %s: %w", mint.Short(), err)
	}
	return nil
}

type vaultRow struct {
	VaultStateAddr string         `db:"vault_state_address"`
	Owner          string         `db:"owner"`
	Nonce          int            `db:"nonce"`
	LockUntil      int64          `db:"lock_until"`
	StrategyID     int            `db:"strategy_id"`
	TokenMint      sql.NullString `db:"token_mint"`
	IsCreator      bool           `db:"is_creator"`
}

func (r vaultRow) toRecord() (VaultRecord, error) {
	vault, err := ParseAddress(r.VaultStateAddr)
	if err != nil {
		return VaultRecord{}, fmt.Errorf("vault row address: %w", err)
	}
	owner, err := ParseAddress(r.Owner)
	if err != nil {
		return VaultRecord{}, fmt.Errorf("vault row owner: %w", err)
	}
	rec := VaultRecord{
		VaultStateAddr: vault,
		OwnerKey:       owner,
		Nonce:          uint8(r.Nonce),
		LockUntil:      r.LockUntil,
		StrategyID:     uint8(r.StrategyID),
		IsCreator:      r.IsCreator,
	}
	if r.TokenMint.Valid {
		mint, err := ParseAddress(r.TokenMint.String)
		if err != nil {
			return VaultRecord{}, fmt.Errorf("vault row mint: %w", err)
		}
		rec.TokenMint = &mint
	}
	return rec, nil
}

// ListVaultsNeedingWorker implements the backfill scan (spec.md §4.5):
// vault records with a non-null token-mint for which no bot record exists
// yet (known holds every mint the manager has already spawned a worker
// for, so the query result excludes duplicates even across a restart).
func (s *PostgresStore) ListVaultsNeedingWorker(ctx context.Context, known map[Address]struct{}) ([]VaultRecord, error) {
	const q = `
SELECT v.vault_state_address, v.owner, v.nonce, v.lock_until, v.strategy_id, v.token_mint, v.is_creator
FROM vaults v
LEFT JOIN bots b ON b.mint = v.token_mint
WHERE v.token_mint IS NOT NULL AND b.mint IS NULL`
	var rows []vaultRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list vaults needing worker: %w", err)
	}
	out := make([]VaultRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		if rec.TokenMint != nil {
			if _, ok := known[*rec.TokenMint]; ok {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendLog inserts one log row and trims the owning mint's history down to
// logRetentionPerMint, per spec.md §3.
func (s *PostgresStore) AppendLog(ctx context.Context, l BotLog) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin log tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO logs (id, bot_id, mint, message, level, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, insert, id, l.BotID, l.TokenMint.String(), l.Message, string(l.Level), l.Timestamp); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}

	const trim = `
DELETE FROM logs WHERE mint = $1 AND id NOT IN (
  SELECT id FROM logs WHERE mint = $1 ORDER BY timestamp DESC LIMIT $2
)`
	if _, err := tx.ExecContext(ctx, trim, l.TokenMint.String(), logRetentionPerMint); err != nil {
		return fmt.Errorf("trim logs for %s: %w", l.TokenMint.Short(), err)
	}

	return tx.Commit()
}

// marshalStrategyConfig is a small package-internal helper, used by
// Manager.UpdateStrategy, that encodes user-supplied strategy parameters
// for a BotRecord.
func marshalStrategyConfig(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal strategy config: %w", err)
	}
	return b, nil
}
