package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository stores channel configs in Postgres, one jsonb document per
// (guild, channel) row. It satisfies Store.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new channel config repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// LoadChannelConfig retrieves a channel config by its keys
func (r *Repository) LoadChannelConfig(ctx context.Context, guildID, channelID string) (*ChannelConfig, error) {
	query := `
		SELECT config, updated_at
		FROM channel_configs
		WHERE guild_id = $1 AND channel_id = $2
	`

	cfg, err := scanConfig(r.db.Pool().QueryRow(ctx, query, guildID, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChannelNotConfigured
	}
	if err != nil {
		r.logger.Error("failed to load channel config",
			zap.Error(err),
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
		)
		return nil, fmt.Errorf("query channel config: %w", err)
	}

	cfg.GuildID = guildID
	cfg.ChannelID = channelID
	return cfg, nil
}

// SaveChannelConfig upserts the full config document
func (r *Repository) SaveChannelConfig(ctx context.Context, cfg *ChannelConfig) error {
	return r.save(ctx, r.db.Pool(), cfg)
}

// UpdateChannelConfig locks the row for the duration of fn so concurrent
// admins editing the same channel serialize instead of overwriting each other.
func (r *Repository) UpdateChannelConfig(ctx context.Context, guildID, channelID string, fn func(cfg *ChannelConfig) error) (*ChannelConfig, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT config, updated_at
		FROM channel_configs
		WHERE guild_id = $1 AND channel_id = $2
		FOR UPDATE
	`

	cfg, err := scanConfig(tx.QueryRow(ctx, query, guildID, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		cfg = &ChannelConfig{}
	} else if err != nil {
		return nil, fmt.Errorf("lock channel config: %w", err)
	}
	cfg.GuildID = guildID
	cfg.ChannelID = channelID

	if err := fn(cfg); err != nil {
		return nil, err
	}

	if err := r.save(ctx, tx, cfg); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit channel config: %w", err)
	}

	return cfg, nil
}

// ListChannelConfigs returns all configs ordered by guild then channel
func (r *Repository) ListChannelConfigs(ctx context.Context) ([]*ChannelConfig, error) {
	query := `
		SELECT guild_id, channel_id, config, updated_at
		FROM channel_configs
		ORDER BY guild_id, channel_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list channel configs", zap.Error(err))
		return nil, fmt.Errorf("query channel configs: %w", err)
	}
	defer rows.Close()

	var configs []*ChannelConfig
	for rows.Next() {
		var (
			guildID, channelID string
			raw                []byte
			cfg                ChannelConfig
		)
		if err := rows.Scan(&guildID, &channelID, &raw, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel config: %w", err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			r.logger.Warn("skipping undecodable channel config",
				zap.Error(err),
				zap.String("guild_id", guildID),
				zap.String("channel_id", channelID),
			)
			continue
		}
		cfg.GuildID = guildID
		cfg.ChannelID = channelID
		configs = append(configs, &cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel configs: %w", err)
	}

	return configs, nil
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) save(ctx context.Context, q rowQuerier, cfg *ChannelConfig) error {
	if cfg.GuildID == "" || cfg.ChannelID == "" {
		return fmt.Errorf("save channel config: guild and channel ids are required")
	}

	cfg.SchemaVersion = SchemaVersion
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode channel config: %w", err)
	}

	query := `
		INSERT INTO channel_configs (guild_id, channel_id, config, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id, channel_id)
		DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()
		RETURNING updated_at
	`

	if err := q.QueryRow(ctx, query, cfg.GuildID, cfg.ChannelID, raw).Scan(&cfg.UpdatedAt); err != nil {
		r.logger.Error("failed to save channel config",
			zap.Error(err),
			zap.String("guild_id", cfg.GuildID),
			zap.String("channel_id", cfg.ChannelID),
		)
		return fmt.Errorf("upsert channel config: %w", err)
	}

	r.logger.Info("channel config saved",
		zap.String("guild_id", cfg.GuildID),
		zap.String("channel_id", cfg.ChannelID),
		zap.Int("rules", len(cfg.NotificationRules)),
	)
	return nil
}

func scanConfig(row pgx.Row) (*ChannelConfig, error) {
	var (
		raw []byte
		cfg ChannelConfig
	)
	if err := row.Scan(&raw, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode channel config: %w", err)
	}
	return &cfg, nil
}
