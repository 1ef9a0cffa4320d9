package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Principal is a chat user allowed to operate the bot. Rows are provisioned out of band.
type Principal struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TelegramID      int64      `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username        string     `gorm:"type:varchar(64)" json:"username"`
	PasswordHash    string     `gorm:"type:varchar(255);not null" json:"-"`
	IsAuthenticated bool       `gorm:"not null;default:false" json:"is_authenticated"`
	LastAuthAt      *time.Time `json:"last_auth_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Principal) TableName() string { return "telegram_users" }

func (p *Principal) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// DisplayName falls back to a generic label for principals without a username.
func (p *Principal) DisplayName() string {
	if p.Username == "" {
		return "User"
	}
	return p.Username
}

// Session is a time-bounded proof of authentication for one chat.
// Rows are never updated; they become inert once ExpiresAt passes.
type Session struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	TelegramChatID int64     `gorm:"index:idx_session_chat_expiry,priority:1;not null" json:"telegram_chat_id"`
	Token          string    `gorm:"type:text" json:"-"`
	ExpiresAt      time.Time `gorm:"index:idx_session_chat_expiry,priority:2;not null" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Session) TableName() string { return "telegram_sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// CommandState is the append-only record of a completed conversation.
type CommandState struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID          string         `gorm:"type:varchar(26);uniqueIndex;not null" json:"run_id"`
	UserID         string         `gorm:"type:varchar(36);index:idx_state_user_cmd,priority:1;not null" json:"user_id"`
	TelegramChatID int64          `gorm:"index;not null" json:"telegram_chat_id"`
	Command        string         `gorm:"type:varchar(64);index:idx_state_user_cmd,priority:2;not null" json:"command"`
	CurrentStep    string         `gorm:"type:varchar(64)" json:"current_step,omitempty"`
	CollectedData  map[string]any `gorm:"serializer:json;type:text" json:"collected_data"`
	Completed      bool           `gorm:"not null;default:false" json:"completed"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (CommandState) TableName() string { return "command_states" }

// CommandLog is one audit row per command invocation.
type CommandLog struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string         `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Command    string         `gorm:"type:varchar(64);index;not null" json:"command"`
	Parameters map[string]any `gorm:"serializer:json;type:text" json:"parameters,omitempty"`
	Result     map[string]any `gorm:"serializer:json;type:text" json:"result,omitempty"`
	Success    bool           `gorm:"not null" json:"success"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (CommandLog) TableName() string { return "command_logs" }

// Integration is a named webhook users can fire with /webhook <name>.
type Integration struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	WebhookURL string         `gorm:"type:text" json:"webhook_url"`
	Config     map[string]any `gorm:"serializer:json;type:text" json:"config"`
	Enabled    bool           `gorm:"not null" json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (Integration) TableName() string { return "app_integrations" }

func (i *Integration) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&Principal{}, &Session{}, &CommandState{}, &CommandLog{}, &Integration{}}
}
