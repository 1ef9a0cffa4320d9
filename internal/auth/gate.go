package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/remote-control/internal/models"
	"github.com/suPer8Hu/remote-control/internal/store"
)

type PrincipalStore interface {
	GetPrincipalByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error)
	MarkAuthenticated(ctx context.Context, principalID string, at time.Time) error
}

type SessionStore interface {
	FindValidSession(ctx context.Context, chatID int64, now time.Time) (*models.Session, error)
	CreateSession(ctx context.Context, s *models.Session) error
}

// Flags is the per-chat auth cache. It is a hint only: Evaluate always rechecks the
// session store and overwrites it.
type Flags struct {
	PrincipalID      string `json:"principal_id,omitempty"`
	Authenticated    bool   `json:"authenticated"`
	AwaitingPassword bool   `json:"awaiting_password"`
}

type Input struct {
	ChatID   int64
	SenderID int64
	Text     string
}

type Outcome int

const (
	// Ignored: no chat to reply to.
	Ignored Outcome = iota
	// Denied: sender unknown; processing stops.
	Denied
	// Challenge: password prompt sent or a wrong/failed attempt; processing stops.
	Challenge
	// Authenticated: a valid session exists; the message is dispatched.
	Authenticated
	// JustAuthenticated: this message was the correct password. It is consumed, not dispatched.
	JustAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Denied:
		return "denied"
	case Challenge:
		return "challenge"
	case Authenticated:
		return "authenticated"
	case JustAuthenticated:
		return "just_authenticated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Decision struct {
	Outcome     Outcome
	Reply       string
	PrincipalID string
}

// Proceed reports whether the message should go on to the dispatcher.
func (d Decision) Proceed() bool { return d.Outcome == Authenticated }

const (
	msgUnidentified   = "❌ Unable to identify user"
	msgNotAuthorized  = "❌ You are not authorized to use this bot.\nPlease contact the administrator to get access."
	msgAuthRequired   = "🔐 Authentication required.\nPlease enter your password:"
	msgEnterPassword  = "Please enter your password:"
	msgWrongPassword  = "❌ Invalid password. Please try again:"
	msgSessionFailure = "❌ Failed to create session. Please try again."
)

type Gate struct {
	principals PrincipalStore
	sessions   SessionStore
	ttl        time.Duration
	secret     string
	now        func() time.Time
	log        *slog.Logger
}

func NewGate(principals PrincipalStore, sessions SessionStore, ttl time.Duration, secret string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		principals: principals,
		sessions:   sessions,
		ttl:        ttl,
		secret:     secret,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// WithClock replaces the time source; tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Evaluate decides whether the sender of in is an authenticated principal, driving the
// password challenge when not. flags is refreshed in place. A non-nil error means a store
// failed in a way the caller should treat as unexpected.
func (g *Gate) Evaluate(ctx context.Context, in Input, flags *Flags) (Decision, error) {
	if in.ChatID == 0 {
		return Decision{Outcome: Ignored}, nil
	}
	if in.SenderID == 0 {
		return Decision{Outcome: Denied, Reply: msgUnidentified}, nil
	}

	now := g.now()

	sess, err := g.validSession(ctx, in.ChatID, now)
	if err != nil {
		return Decision{}, err
	}
	if sess != nil {
		flags.PrincipalID = sess.UserID
		flags.Authenticated = true
		flags.AwaitingPassword = false
		return Decision{Outcome: Authenticated, PrincipalID: sess.UserID}, nil
	}

	// no durable session: whatever memory says is stale
	flags.Authenticated = false
	flags.PrincipalID = ""

	principal, err := g.principals.GetPrincipalByTelegramID(ctx, in.SenderID)
	if err != nil {
		if store.IsNotFound(err) {
			flags.AwaitingPassword = false
			return Decision{Outcome: Denied, Reply: msgNotAuthorized}, nil
		}
		return Decision{}, fmt.Errorf("lookup principal: %w", err)
	}

	if !flags.AwaitingPassword {
		flags.AwaitingPassword = true
		return Decision{Outcome: Challenge, Reply: msgAuthRequired}, nil
	}

	if strings.TrimSpace(in.Text) == "" {
		return Decision{Outcome: Challenge, Reply: msgEnterPassword}, nil
	}
	if !CheckPassword(principal.PasswordHash, in.Text) {
		g.log.Info("password rejected", "chat_id", in.ChatID, "principal_id", principal.ID)
		return Decision{Outcome: Challenge, Reply: msgWrongPassword}, nil
	}

	if err := g.openSession(ctx, principal.ID, in.ChatID, now); err != nil {
		g.log.Error("session creation failed", "chat_id", in.ChatID, "principal_id", principal.ID, "error", err)
		return Decision{Outcome: Challenge, Reply: msgSessionFailure}, nil
	}
	if err := g.principals.MarkAuthenticated(ctx, principal.ID, now); err != nil {
		g.log.Warn("mark authenticated failed", "principal_id", principal.ID, "error", err)
	}

	flags.PrincipalID = principal.ID
	flags.Authenticated = true
	flags.AwaitingPassword = false
	g.log.Info("principal authenticated", "chat_id", in.ChatID, "principal_id", principal.ID)

	return Decision{
		Outcome:     JustAuthenticated,
		PrincipalID: principal.ID,
		Reply: fmt.Sprintf("✅ Welcome back, %s!\n\nYou are now authenticated for the next %s.\nUse /help to see available commands.",
			principal.DisplayName(), HumanTTL(g.ttl)),
	}, nil
}

// validSession returns nil when the chat has no usable session. A row whose token does not
// verify (secret rotated, tampered row) counts as no session.
func (g *Gate) validSession(ctx context.Context, chatID int64, now time.Time) (*models.Session, error) {
	sess, err := g.sessions.FindValidSession(ctx, chatID, now)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Token == "" {
		return sess, nil
	}
	claims, err := ParseJWT(sess.Token, AudienceSession, g.secret, now)
	if err != nil || claims.Subject != sess.UserID || claims.ID != sess.ID {
		g.log.Warn("session token rejected", "chat_id", chatID, "session_id", sess.ID, "error", err)
		return nil, nil
	}
	return sess, nil
}

func (g *Gate) openSession(ctx context.Context, principalID string, chatID int64, now time.Time) error {
	sess := &models.Session{
		ID:             uuid.NewString(),
		UserID:         principalID,
		TelegramChatID: chatID,
		ExpiresAt:      now.Add(g.ttl),
		CreatedAt:      now,
	}
	token, err := SignJWT(principalID, AudienceSession, sess.ID, g.secret, now, sess.ExpiresAt)
	if err != nil {
		return err
	}
	sess.Token = token
	return g.sessions.CreateSession(ctx, sess)
}

// HumanTTL renders whole-day durations as "N days".
func HumanTTL(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
