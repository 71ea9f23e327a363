package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresStore wraps PostgreSQL persistence with Redis caching.
type PostgresStore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewPostgres creates a new PostgreSQL store with connection pooling and a
// Redis cache for hot reads.
func NewPostgres() (*PostgresStore, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "copyengine")
	password := getEnv("POSTGRES_PASSWORD", "copyengine")
	dbname := getEnv("POSTGRES_DB", "copyengine")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=50&pool_min_conns=10",
		user, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	config.MaxConns = 50
	config.MinConns = 10
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	// Cap slow queries so a stuck scan never wedges the pool.
	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "10000"
	config.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "60000"

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password:     redisPassword,
		DB:           0,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &PostgresStore{pool: pool, redis: rdb}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Redis returns the shared Redis client for callers that need their own keys.
func (s *PostgresStore) Redis() *redis.Client {
	return s.redis
}

// Close releases database connections.
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// InitSchema creates tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT,
			is_trader BOOLEAN DEFAULT FALSE,
			copy_features_enabled BOOLEAN DEFAULT TRUE,
			last_active TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			available_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			portfolio_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS copy_subscriptions (
			id TEXT PRIMARY KEY,
			copier_id TEXT NOT NULL,
			trader_id TEXT NOT NULL,
			copy_mode TEXT NOT NULL,
			fixed_amount DOUBLE PRECISION DEFAULT 0,
			portfolio_percentage DOUBLE PRECISION DEFAULT 0,
			copy_ratio DOUBLE PRECISION DEFAULT 0,
			max_position_size DOUBLE PRECISION DEFAULT 0,
			min_position_size DOUBLE PRECISION DEFAULT 0,
			max_daily_loss DOUBLE PRECISION DEFAULT 0,
			max_total_exposure DOUBLE PRECISION DEFAULT 0,
			excluded_symbols TEXT[] DEFAULT '{}',
			exclude_market_types TEXT[] DEFAULT '{}',
			copy_fee_rate DOUBLE PRECISION DEFAULT 0,
			copy_delay_seconds INT DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			total_copied DOUBLE PRECISION DEFAULT 0,
			trades_copied INT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_trader ON copy_subscriptions(trader_id, status)`,
		`CREATE TABLE IF NOT EXISTS copy_trade_records (
			id TEXT PRIMARY KEY,
			subscription_id TEXT,
			copier_id TEXT NOT NULL,
			trader_id TEXT NOT NULL,
			original_order_id TEXT NOT NULL,
			symbol TEXT,
			side TEXT,
			original_quantity DOUBLE PRECISION,
			copied_quantity DOUBLE PRECISION,
			original_price DOUBLE PRECISION,
			copied_price DOUBLE PRECISION,
			status TEXT NOT NULL,
			skip_reason TEXT,
			failure_reason TEXT,
			copy_fee DOUBLE PRECISION DEFAULT 0,
			platform_fee DOUBLE PRECISION DEFAULT 0,
			order_id TEXT,
			created_at TIMESTAMPTZ DEFAULT now(),
			executed_at TIMESTAMPTZ,
			UNIQUE(original_order_id, copier_id)
		)`,
		`CREATE TABLE IF NOT EXISTS fraud_detections (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			evidence JSONB,
			detected_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fraud_user ON fraud_detections(user_id, detected_at DESC)`,
		`CREATE TABLE IF NOT EXISTS follows (
			follower_id TEXT NOT NULL,
			followee_id TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY(follower_id, followee_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS social_activities (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			type TEXT NOT NULL,
			visibility TEXT NOT NULL,
			related_user_ids TEXT[] DEFAULT '{}',
			payload JSONB,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS feed_items (
			user_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			feed TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY(user_id, activity_id, feed)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_trades (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			counterparty_id TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE PRECISION,
			price DOUBLE PRECISION,
			pnl DOUBLE PRECISION DEFAULT 0,
			executed_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user_time ON ledger_trades(user_id, executed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS trader_stats (
			user_id TEXT NOT NULL,
			period TEXT NOT NULL,
			total_return DOUBLE PRECISION DEFAULT 0,
			return_30d DOUBLE PRECISION DEFAULT 0,
			return_7d DOUBLE PRECISION DEFAULT 0,
			return_24h DOUBLE PRECISION DEFAULT 0,
			sharpe_ratio DOUBLE PRECISION DEFAULT 0,
			sortino_ratio DOUBLE PRECISION DEFAULT 0,
			max_drawdown DOUBLE PRECISION DEFAULT 0,
			current_drawdown DOUBLE PRECISION DEFAULT 0,
			win_rate DOUBLE PRECISION DEFAULT 0,
			avg_win DOUBLE PRECISION DEFAULT 0,
			avg_loss DOUBLE PRECISION DEFAULT 0,
			total_trades INT DEFAULT 0,
			profitable_trades INT DEFAULT 0,
			avg_holding_period DOUBLE PRECISION DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY(user_id, period)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id TEXT PRIMARY KEY,
			rank INT NOT NULL,
			previous_rank INT DEFAULT 0,
			score DOUBLE PRECISION DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			run_id TEXT NOT NULL,
			step_key TEXT NOT NULL,
			result JSONB,
			completed_at TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY(run_id, step_key)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

// GetUser loads one account by ID. Returns nil when the user does not exist.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var lastActive *time.Time
	err := s.pool.QueryRow(ctx, `SELECT id, COALESCE(username, ''), is_trader, copy_features_enabled, last_active, created_at
		FROM users WHERE id = $1`, id).Scan(
		&u.ID, &u.Username, &u.IsTrader, &u.CopyFeaturesEnabled, &lastActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if lastActive != nil {
		u.LastActive = *lastActive
	}
	return &u, nil
}

const subscriptionColumns = `id, copier_id, trader_id, copy_mode, fixed_amount, portfolio_percentage,
	copy_ratio, max_position_size, min_position_size, max_daily_loss, max_total_exposure,
	excluded_symbols, exclude_market_types, copy_fee_rate, copy_delay_seconds, status, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.CopySubscription, error) {
	var sub models.CopySubscription
	err := row.Scan(&sub.ID, &sub.CopierID, &sub.TraderID, &sub.CopyMode, &sub.FixedAmount,
		&sub.PortfolioPercentage, &sub.CopyRatio, &sub.MaxPositionSize, &sub.MinPositionSize,
		&sub.MaxDailyLoss, &sub.MaxTotalExposure, &sub.ExcludedSymbols, &sub.ExcludeMarketTypes,
		&sub.CopyFeeRate, &sub.CopyDelaySeconds, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveSubscriptions returns all active subscriptions copying the trader.
func (s *PostgresStore) GetActiveSubscriptions(ctx context.Context, traderID string) ([]models.CopySubscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+`
		FROM copy_subscriptions WHERE trader_id = $1 AND status = 'active'
		ORDER BY created_at`, traderID)
	if err != nil {
		return nil, fmt.Errorf("get active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.CopySubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// GetSubscription loads one subscription by ID.
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*models.CopySubscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+`
		FROM copy_subscriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// UpdateSubscriptionStats bumps the rolling exposure counters after a copy.
func (s *PostgresStore) UpdateSubscriptionStats(ctx context.Context, subscriptionID string, notional float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE copy_subscriptions
		SET total_copied = total_copied + $2, trades_copied = trades_copied + 1, updated_at = now()
		WHERE id = $1`, subscriptionID, notional)
	if err != nil {
		return fmt.Errorf("update subscription stats: %w", err)
	}
	return nil
}

// GetCopyTradeRecord fetches the record for the idempotency key
// (originalOrderID, copierID). Returns nil when no attempt exists yet.
func (s *PostgresStore) GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error) {
	var rec models.CopyTradeRecord
	err := s.pool.QueryRow(ctx, `SELECT id, subscription_id, copier_id, trader_id, original_order_id,
			symbol, side, original_quantity, copied_quantity, original_price, copied_price,
			status, skip_reason, failure_reason, copy_fee, platform_fee, order_id, created_at, executed_at
		FROM copy_trade_records WHERE original_order_id = $1 AND copier_id = $2`,
		originalOrderID, copierID).Scan(
		&rec.ID, &rec.SubscriptionID, &rec.CopierID, &rec.TraderID, &rec.OriginalOrderID,
		&rec.Symbol, &rec.Side, &rec.OriginalQuantity, &rec.CopiedQuantity, &rec.OriginalPrice,
		&rec.CopiedPrice, &rec.Status, &rec.SkipReason, &rec.FailureReason,
		&rec.Fees.CopyFee, &rec.Fees.PlatformFee, &rec.OrderID, &rec.CreatedAt, &rec.ExecutedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get copy trade record: %w", err)
	}
	return &rec, nil
}

// SaveCopyTradeRecord appends one copy-trade attempt. The unique key makes a
// replayed write a no-op rather than a second record.
func (s *PostgresStore) SaveCopyTradeRecord(ctx context.Context, rec models.CopyTradeRecord) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO copy_trade_records
		(id, subscription_id, copier_id, trader_id, original_order_id, symbol, side,
		 original_quantity, copied_quantity, original_price, copied_price, status,
		 skip_reason, failure_reason, copy_fee, platform_fee, order_id, created_at, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (original_order_id, copier_id) DO NOTHING`,
		rec.ID, rec.SubscriptionID, rec.CopierID, rec.TraderID, rec.OriginalOrderID,
		rec.Symbol, rec.Side, rec.OriginalQuantity, rec.CopiedQuantity, rec.OriginalPrice,
		rec.CopiedPrice, rec.Status, rec.SkipReason, rec.FailureReason,
		rec.Fees.CopyFee, rec.Fees.PlatformFee, rec.OrderID, rec.CreatedAt, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("save copy trade record: %w", err)
	}
	return nil
}

// ListCopyTradeRecords returns all attempts for one leader order.
func (s *PostgresStore) ListCopyTradeRecords(ctx context.Context, originalOrderID string) ([]models.CopyTradeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, subscription_id, copier_id, trader_id, original_order_id,
			symbol, side, original_quantity, copied_quantity, original_price, copied_price,
			status, skip_reason, failure_reason, copy_fee, platform_fee, order_id, created_at, executed_at
		FROM copy_trade_records WHERE original_order_id = $1 ORDER BY created_at`, originalOrderID)
	if err != nil {
		return nil, fmt.Errorf("list copy trade records: %w", err)
	}
	defer rows.Close()

	var recs []models.CopyTradeRecord
	for rows.Next() {
		var rec models.CopyTradeRecord
		if err := rows.Scan(
			&rec.ID, &rec.SubscriptionID, &rec.CopierID, &rec.TraderID, &rec.OriginalOrderID,
			&rec.Symbol, &rec.Side, &rec.OriginalQuantity, &rec.CopiedQuantity, &rec.OriginalPrice,
			&rec.CopiedPrice, &rec.Status, &rec.SkipReason, &rec.FailureReason,
			&rec.Fees.CopyFee, &rec.Fees.PlatformFee, &rec.OrderID, &rec.CreatedAt, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan copy trade record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetPortfolioValue returns the copier's current portfolio value.
func (s *PostgresStore) GetPortfolioValue(ctx context.Context, userID string) (float64, error) {
	var v float64
	err := s.pool.QueryRow(ctx, `SELECT portfolio_value FROM accounts WHERE user_id = $1`, userID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get portfolio value: %w", err)
	}
	return v, nil
}

// GetAvailableBalance returns the copier's spendable balance.
func (s *PostgresStore) GetAvailableBalance(ctx context.Context, userID string) (float64, error) {
	var v float64
	err := s.pool.QueryRow(ctx, `SELECT available_balance FROM accounts WHERE user_id = $1`, userID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get available balance: %w", err)
	}
	return v, nil
}

// ApplyCopyFees debits both fees from the copier's account in one statement.
func (s *PostgresStore) ApplyCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error {
	_, err := s.pool.Exec(ctx, `UPDATE accounts
		SET available_balance = available_balance - $2, updated_at = now()
		WHERE user_id = $1`, copierID, fees.CopyFee+fees.PlatformFee)
	if err != nil {
		return fmt.Errorf("apply copy fees: %w", err)
	}
	return nil
}

// ListTraderIDs returns the trader population for surveillance scans.
func (s *PostgresStore) ListTraderIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE is_trader = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list trader ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveFraudDetection persists one immutable finding.
func (s *PostgresStore) SaveFraudDetection(ctx context.Context, d models.FraudDetection) error {
	evidence, err := json.Marshal(d.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO fraud_detections (id, user_id, type, severity, evidence, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.UserID, d.Type, d.Severity, evidence, d.DetectedAt)
	if err != nil {
		return fmt.Errorf("save fraud detection: %w", err)
	}
	return nil
}

// ListFraudDetections returns findings, optionally filtered by user.
func (s *PostgresStore) ListFraudDetections(ctx context.Context, userID string, limit int) ([]models.FraudDetection, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, user_id, type, severity, evidence, detected_at FROM fraud_detections`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1 ORDER BY detected_at DESC LIMIT $2`
		args = append(args, userID, limit)
	} else {
		query += ` ORDER BY detected_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fraud detections: %w", err)
	}
	defer rows.Close()

	var out []models.FraudDetection
	for rows.Next() {
		var d models.FraudDetection
		var evidence []byte
		if err := rows.Scan(&d.ID, &d.UserID, &d.Type, &d.Severity, &evidence, &d.DetectedAt); err != nil {
			return nil, err
		}
		if len(evidence) > 0 {
			json.Unmarshal(evidence, &d.Evidence)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DisableCopyFeatures turns off the user's copy features and pauses all
// active subscriptions pointed at them.
func (s *PostgresStore) DisableCopyFeatures(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE users SET copy_features_enabled = FALSE WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("disable copy features: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE copy_subscriptions SET status = 'paused', updated_at = now()
		WHERE trader_id = $1 AND status = 'active'`, userID); err != nil {
		return fmt.Errorf("pause subscriptions: %w", err)
	}
	return tx.Commit(ctx)
}

// GetWashTradeStats counts self-trades (trades where the user is their own
// counterparty) since the cutoff.
func (s *PostgresStore) GetWashTradeStats(ctx context.Context, userID string, since time.Time) (models.WashTradingResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, quantity * price FROM ledger_trades
		WHERE user_id = $1 AND counterparty_id = $1 AND executed_at >= $2`, userID, since)
	if err != nil {
		return models.WashTradingResult{}, fmt.Errorf("wash trade stats: %w", err)
	}
	defer rows.Close()

	var result models.WashTradingResult
	for rows.Next() {
		var id string
		var notional float64
		if err := rows.Scan(&id, &notional); err != nil {
			return models.WashTradingResult{}, err
		}
		result.Occurrences++
		result.TotalVolume += notional
		result.SuspiciousTrades = append(result.SuspiciousTrades, id)
	}
	return result, rows.Err()
}

// GetCopyLeaders returns the traders this user actively copies.
func (s *PostgresStore) GetCopyLeaders(ctx context.Context, copierID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT trader_id FROM copy_subscriptions
		WHERE copier_id = $1 AND status = 'active'`, copierID)
	if err != nil {
		return nil, fmt.Errorf("get copy leaders: %w", err)
	}
	defer rows.Close()

	var leaders []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		leaders = append(leaders, id)
	}
	return leaders, rows.Err()
}

// GetPumpSignals aggregates the raw pump-and-dump inputs over the window.
func (s *PostgresStore) GetPumpSignals(ctx context.Context, userID string, since time.Time) (models.PumpSignals, error) {
	var sig models.PumpSignals
	err := s.pool.QueryRow(ctx, `SELECT
			COALESCE((SELECT AVG(quantity * price) FROM ledger_trades WHERE user_id = $1 AND executed_at < $2), 0),
			COALESCE((SELECT MAX(quantity * price) FROM ledger_trades WHERE user_id = $1 AND executed_at >= $2), 0),
			COALESCE((SELECT SUM(pnl) FROM ledger_trades WHERE user_id = $1 AND executed_at >= $2), 0),
			(SELECT COUNT(*) FROM follows WHERE followee_id = $1 AND created_at >= $2),
			(SELECT COUNT(DISTINCT copier_id) FROM copy_trade_records
				WHERE trader_id = $1 AND created_at >= $2 AND status IN ('executed','partial'))`,
		userID, since).Scan(&sig.BaselinePositionSize, &sig.PeakPositionSize, &sig.TraderPNL,
		&sig.FollowerGain, &sig.ImpactedCopiers)
	if err != nil {
		return models.PumpSignals{}, fmt.Errorf("pump signals: %w", err)
	}

	// Price impact approximated from the spread between the user's lowest and
	// highest fill in the window.
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(
			(MAX(price) - MIN(price)) / NULLIF(MIN(price), 0) * 100, 0)
		FROM ledger_trades WHERE user_id = $1 AND executed_at >= $2`, userID, since).Scan(&sig.PriceImpactPct)
	if err != nil {
		return models.PumpSignals{}, fmt.Errorf("pump price impact: %w", err)
	}
	return sig, nil
}

// GetFollowerAudit snapshots the user's follower population quality.
func (s *PostgresStore) GetFollowerAudit(ctx context.Context, userID string, minAccountAgeDays int) (models.FollowerAudit, error) {
	var audit models.FollowerAudit
	err := s.pool.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE u.last_active IS NULL OR u.last_active < now() - INTERVAL '30 days'),
			COUNT(*) FILTER (WHERE u.created_at > now() - ($2 || ' days')::interval)
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1`, userID, minAccountAgeDays).Scan(
		&audit.TotalFollowers, &audit.InactiveFollowers, &audit.YoungFollowers)
	if err != nil {
		return models.FollowerAudit{}, fmt.Errorf("follower audit: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT u.id
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1
		  AND (u.last_active IS NULL OR u.last_active < now() - INTERVAL '30 days')
		LIMIT 50`, userID)
	if err != nil {
		return models.FollowerAudit{}, fmt.Errorf("follower audit accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return models.FollowerAudit{}, err
		}
		audit.SuspiciousAccounts = append(audit.SuspiciousAccounts, id)
	}
	return audit, rows.Err()
}

// SaveActivity persists one social activity.
func (s *PostgresStore) SaveActivity(ctx context.Context, a models.SocialActivity) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO social_activities
		(id, actor_id, type, visibility, related_user_ids, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.ActorID, a.Type, a.Visibility, a.RelatedUserIDs, payload, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

// GetFollowers pages through the user's followers, oldest first.
func (s *PostgresStore) GetFollowers(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT follower_id FROM follows
		WHERE followee_id = $1 ORDER BY created_at OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("get followers: %w", err)
	}
	defer rows.Close()

	var followers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		followers = append(followers, id)
	}
	return followers, rows.Err()
}

// SaveFeedItems writes a batch of feed rows in one round trip.
func (s *PostgresStore) SaveFeedItems(ctx context.Context, items []models.FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO feed_items (user_id, activity_id, actor_id, feed, created_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (user_id, activity_id, feed) DO NOTHING`,
			item.UserID, item.ActivityID, item.ActorID, item.Feed, item.CreatedAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save feed items: %w", err)
		}
	}
	return nil
}

// GetTradesForPeriod pulls the user's settled trades inside [start, end).
func (s *PostgresStore) GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, symbol, side, quantity, price, pnl, executed_at, COALESCE(closed_at, executed_at)
		FROM ledger_trades WHERE user_id = $1 AND executed_at >= $2 AND executed_at < $3
		ORDER BY executed_at`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades for period: %w", err)
	}
	defer rows.Close()

	var trades []models.LedgerTrade
	for rows.Next() {
		var t models.LedgerTrade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.PNL, &t.ExecutedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// BatchUpdateTraderStats upserts all recomputed stats in one transaction.
func (s *PostgresStore) BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, st := range stats {
		if _, err := tx.Exec(ctx, `INSERT INTO trader_stats
			(user_id, period, total_return, return_30d, return_7d, return_24h, sharpe_ratio,
			 sortino_ratio, max_drawdown, current_drawdown, win_rate, avg_win, avg_loss,
			 total_trades, profitable_trades, avg_holding_period, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
			ON CONFLICT (user_id, period) DO UPDATE SET
				total_return = EXCLUDED.total_return,
				return_30d = EXCLUDED.return_30d,
				return_7d = EXCLUDED.return_7d,
				return_24h = EXCLUDED.return_24h,
				sharpe_ratio = EXCLUDED.sharpe_ratio,
				sortino_ratio = EXCLUDED.sortino_ratio,
				max_drawdown = EXCLUDED.max_drawdown,
				current_drawdown = EXCLUDED.current_drawdown,
				win_rate = EXCLUDED.win_rate,
				avg_win = EXCLUDED.avg_win,
				avg_loss = EXCLUDED.avg_loss,
				total_trades = EXCLUDED.total_trades,
				profitable_trades = EXCLUDED.profitable_trades,
				avg_holding_period = EXCLUDED.avg_holding_period,
				updated_at = now()`,
			st.UserID, st.Period, st.TotalReturn, st.Return30D, st.Return7D, st.Return24H,
			st.SharpeRatio, st.SortinoRatio, st.MaxDrawdown, st.CurrentDrawdown, st.WinRate,
			st.AvgWin, st.AvgLoss, st.TotalTrades, st.ProfitableTrades, st.AvgHoldingPeriod); err != nil {
			return fmt.Errorf("upsert trader stats for %s: %w", st.UserID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.redis.Del(ctx, "leaderboard:top")
	return nil
}

// RecalculateLeaderboardPositions re-ranks all traders by 30d Sharpe-weighted
// return, preserving the previous rank for movement detection.
func (s *PostgresStore) RecalculateLeaderboardPositions(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO leaderboard (user_id, rank, previous_rank, score, updated_at)
		SELECT ts.user_id,
		       ROW_NUMBER() OVER (ORDER BY ts.return_30d * (1 + GREATEST(ts.sharpe_ratio, 0)) DESC),
		       COALESCE(lb.rank, 0),
		       ts.return_30d * (1 + GREATEST(ts.sharpe_ratio, 0)),
		       now()
		FROM trader_stats ts
		LEFT JOIN leaderboard lb ON lb.user_id = ts.user_id
		WHERE ts.period = '30d'
		ON CONFLICT (user_id) DO UPDATE SET
			previous_rank = leaderboard.rank,
			rank = EXCLUDED.rank,
			score = EXCLUDED.score,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("recalculate leaderboard: %w", err)
	}

	s.redis.Del(ctx, "leaderboard:top")
	return nil
}

// GetLeaderboard returns the top ranked traders, served from Redis when warm.
func (s *PostgresStore) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	if cached, err := s.redis.Get(ctx, "leaderboard:top").Result(); err == nil {
		var entries []models.LeaderboardEntry
		if json.Unmarshal([]byte(cached), &entries) == nil && len(entries) >= limit {
			return entries[:limit], nil
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT user_id, rank, previous_rank, score
		FROM leaderboard ORDER BY rank LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Rank, &e.PreviousRank, &e.Score); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.redis.Set(ctx, "leaderboard:top", data, 10*time.Minute)
	}
	return entries, nil
}

// GetWorkflowStep loads a previously completed step result for replay.
func (s *PostgresStore) GetWorkflowStep(ctx context.Context, runID, stepKey string) ([]byte, bool, error) {
	var result []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM workflow_steps
		WHERE run_id = $1 AND step_key = $2`, runID, stepKey).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get workflow step: %w", err)
	}
	return result, true, nil
}

// RecordWorkflowStep durably records a completed step. A concurrent or
// replayed write of the same step is a no-op.
func (s *PostgresStore) RecordWorkflowStep(ctx context.Context, runID, stepKey string, result []byte) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO workflow_steps (run_id, step_key, result, completed_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (run_id, step_key) DO NOTHING`, runID, stepKey, result)
	if err != nil {
		return fmt.Errorf("record workflow step: %w", err)
	}
	return nil
}

// RecordAuditLog appends one audit trail entry.
func (s *PostgresStore) RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_log (user_id, action, resource_type, resource_id, metadata, created_at)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)`,
		entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, metadata, createdAt)
	if err != nil {
		return fmt.Errorf("record audit log: %w", err)
	}
	return nil
}
