package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store persists channel configs keyed by (guild, channel).
type Store interface {
	LoadChannelConfig(ctx context.Context, guildID, channelID string) (*ChannelConfig, error)
	SaveChannelConfig(ctx context.Context, cfg *ChannelConfig) error
	// UpdateChannelConfig reads the current config fresh, creating an empty one
	// if none exists, applies fn and writes the result back. If fn returns an
	// error nothing is written.
	UpdateChannelConfig(ctx context.Context, guildID, channelID string, fn func(cfg *ChannelConfig) error) (*ChannelConfig, error)
	ListChannelConfigs(ctx context.Context) ([]*ChannelConfig, error)
}

type guildDocument struct {
	Channels map[string]*ChannelConfig `json:"channels"`
}

// FileStore keeps every channel config in a single JSON document shaped
// {guild_id: {"channels": {channel_id: config}}}. The whole document is read
// on every call and rewritten on every change.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// LoadChannelConfig returns ErrChannelNotConfigured if the channel has no entry.
func (s *FileStore) LoadChannelConfig(ctx context.Context, guildID, channelID string) (*ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	cfg := lookup(doc, guildID, channelID)
	if cfg == nil {
		return nil, ErrChannelNotConfigured
	}
	return cfg, nil
}

func (s *FileStore) SaveChannelConfig(ctx context.Context, cfg *ChannelConfig) error {
	if cfg.GuildID == "" || cfg.ChannelID == "" {
		return fmt.Errorf("save channel config: guild and channel ids are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	put(doc, cfg)
	return s.writeLocked(doc)
}

func (s *FileStore) UpdateChannelConfig(ctx context.Context, guildID, channelID string, fn func(cfg *ChannelConfig) error) (*ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	cfg := lookup(doc, guildID, channelID)
	if cfg == nil {
		cfg = &ChannelConfig{GuildID: guildID, ChannelID: channelID}
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}

	put(doc, cfg)
	if err := s.writeLocked(doc); err != nil {
		return nil, err
	}

	s.logger.Debug("channel config updated",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
	)
	return cfg.Clone(), nil
}

// ListChannelConfigs returns every config ordered by guild then channel id.
func (s *FileStore) ListChannelConfigs(ctx context.Context) ([]*ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	var out []*ChannelConfig
	for guildID, guild := range doc {
		for channelID, cfg := range guild.Channels {
			if cfg == nil {
				continue
			}
			cfg.GuildID = guildID
			cfg.ChannelID = channelID
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out, nil
}

func (s *FileStore) readLocked() (map[string]*guildDocument, error) {
	doc := make(map[string]*guildDocument)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) writeLocked(doc map[string]*guildDocument) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".configs-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func lookup(doc map[string]*guildDocument, guildID, channelID string) *ChannelConfig {
	guild, ok := doc[guildID]
	if !ok || guild == nil {
		return nil
	}
	cfg, ok := guild.Channels[channelID]
	if !ok || cfg == nil {
		return nil
	}
	cfg.GuildID = guildID
	cfg.ChannelID = channelID
	return cfg
}

func put(doc map[string]*guildDocument, cfg *ChannelConfig) {
	guild, ok := doc[cfg.GuildID]
	if !ok || guild == nil {
		guild = &guildDocument{}
		doc[cfg.GuildID] = guild
	}
	if guild.Channels == nil {
		guild.Channels = make(map[string]*ChannelConfig)
	}
	saved := cfg.Clone()
	saved.SchemaVersion = SchemaVersion
	guild.Channels[cfg.ChannelID] = saved
}
