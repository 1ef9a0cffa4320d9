// Package store holds the gorm-backed credential, session and audit records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/remote-control/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = gorm.ErrRecordNotFound

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Principals

func (r *Repo) GetPrincipalByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error) {
	var p models.Principal
	if err := r.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPrincipal creates the principal or replaces username and password hash of an
// existing one with the same telegram id. The stored row is returned.
func (r *Repo) UpsertPrincipal(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "updated_at"}),
		}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return r.GetPrincipalByTelegramID(ctx, p.TelegramID)
}

func (r *Repo) MarkAuthenticated(ctx context.Context, principalID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Principal{}).
		Where("id = ?", principalID).
		Updates(map[string]any{
			"is_authenticated": true,
			"last_auth_at":     at.UTC(),
		}).Error
}

// Sessions

// FindValidSession returns the newest session for the chat whose expiry is after now.
func (r *Repo) FindValidSession(ctx context.Context, chatID int64, now time.Time) (*models.Session, error) {
	var s models.Session
	if err := r.db.WithContext(ctx).
		Where("telegram_chat_id = ? AND expires_at > ?", chatID, now.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Take(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession always inserts; an existing valid row for the chat is never overwritten.
func (r *Repo) CreateSession(ctx context.Context, s *models.Session) error {
	s.ExpiresAt = s.ExpiresAt.UTC()
	if !s.CreatedAt.IsZero() {
		s.CreatedAt = s.CreatedAt.UTC()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) CountActiveSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("expires_at > ?", now.UTC()).
		Count(&n).Error
	return n, err
}

// Conversation history

func (r *Repo) InsertCommandState(ctx context.Context, st *models.CommandState) error {
	return r.db.WithContext(ctx).Create(st).Error
}

func (r *Repo) GetCommandStateByRunID(ctx context.Context, runID string) (*models.CommandState, error) {
	var st models.CommandState
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Take(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repo) LastCompletedState(ctx context.Context, userID, command string) (*models.CommandState, error) {
	var st models.CommandState
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND command = ? AND completed = ?", userID, command, true).
		Order("created_at DESC").
		Order("id DESC").
		Take(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// Command log

func (r *Repo) InsertCommandLog(ctx context.Context, l *models.CommandLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// RecentCommandLogs returns the newest entries first.
func (r *Repo) RecentCommandLogs(ctx context.Context, userID string, limit int) ([]models.CommandLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 5
	}
	var logs []models.CommandLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Integrations

func (r *Repo) ListEnabledIntegrations(ctx context.Context) ([]models.Integration, error) {
	var out []models.Integration
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetEnabledIntegration(ctx context.Context, name string) (*models.Integration, error) {
	var it models.Integration
	if err := r.db.WithContext(ctx).
		Where("name = ? AND enabled = ?", name, true).
		Take(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repo) UpsertIntegration(ctx context.Context, it *models.Integration) (*models.Integration, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"webhook_url", "config", "enabled", "updated_at"}),
		}).
		Create(it).Error
	if err != nil {
		return nil, err
	}
	var stored models.Integration
	if err := r.db.WithContext(ctx).Where("name = ?", it.Name).Take(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
