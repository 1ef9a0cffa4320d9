// Package bot turns inbound chat messages into replies: authentication, command dispatch,
// guided conversations and the command log.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/automation"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/conversation"
	"github.com/suPer8Hu/remote-control/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/suPer8Hu/remote-control/internal/bot"

const (
	msgUnrecognized  = "I don't understand that command. Use /help to see available commands."
	msgNothingToStop = "ℹ️ There is no active command to cancel."
	msgApology       = "❌ An error occurred while processing your request.\nPlease try again or contact support if the issue persists."
	msgFlowGone      = "⚠️ That conversation is no longer available. Use /help to see available commands."
)

// Records is the slice of the record store the bot reads and writes.
type Records interface {
	CountActiveSessions(ctx context.Context, now time.Time) (int64, error)
	InsertCommandState(ctx context.Context, st *models.CommandState) error
	LastCompletedState(ctx context.Context, userID, command string) (*models.CommandState, error)
	InsertCommandLog(ctx context.Context, l *models.CommandLog) error
	RecentCommandLogs(ctx context.Context, userID string, limit int) ([]models.CommandLog, error)
	ListEnabledIntegrations(ctx context.Context) ([]models.Integration, error)
	GetEnabledIntegration(ctx context.Context, name string) (*models.Integration, error)
}

// Automation is the downstream service collected answers are sent to.
type Automation interface {
	Call(ctx context.Context, endpoint string, payload map[string]any) (*automation.Result, error)
	Trigger(ctx context.Context, url string, payload map[string]any) (map[string]any, error)
	Ping(ctx context.Context) error
}

type Options struct {
	CancelKeyword string
	SkipSentinel  string
	VerboseHelp   bool
	SessionTTL    time.Duration
}

type Deps struct {
	Records    Records
	Gate       *auth.Gate
	Flows      *conversation.Registry
	Engine     *conversation.Engine
	Automation Automation
	States     StateStore
	Replier    Replier
	Options    Options
	Logger     *slog.Logger
}

type Service struct {
	records    Records
	gate       *auth.Gate
	flows      *conversation.Registry
	engine     *conversation.Engine
	automation Automation
	states     StateStore
	replier    Replier
	opts       Options
	log        *slog.Logger

	locks    chatLocks
	now      func() time.Time
	newRunID func() (string, error)
	commands map[string]command

	tracer   trace.Tracer
	messages metric.Int64Counter
}

func NewService(d Deps) (*Service, error) {
	switch {
	case d.Records == nil:
		return nil, errors.New("bot: records are required")
	case d.Gate == nil:
		return nil, errors.New("bot: gate is required")
	case d.Flows == nil:
		return nil, errors.New("bot: flow registry is required")
	case d.Automation == nil:
		return nil, errors.New("bot: automation client is required")
	case d.Replier == nil:
		return nil, errors.New("bot: replier is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.States == nil {
		d.States = NewMemoryStateStore(24 * time.Hour)
	}
	if d.Options.CancelKeyword == "" {
		d.Options.CancelKeyword = "cancel"
	}
	if d.Options.SkipSentinel == "" {
		d.Options.SkipSentinel = "skip"
	}
	if d.Engine == nil {
		d.Engine = conversation.NewEngine(conversation.Options{
			CancelKeyword: d.Options.CancelKeyword,
			SkipSentinels: []string{d.Options.SkipSentinel},
		})
	}

	s := &Service{
		records:    d.Records,
		gate:       d.Gate,
		flows:      d.Flows,
		engine:     d.Engine,
		automation: d.Automation,
		states:     d.States,
		replier:    d.Replier,
		opts:       d.Options,
		log:        d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
		newRunID:   common.NewULID,
		tracer:     otel.Tracer(instrumentationName),
	}
	s.commands = s.builtinCommands()

	for _, f := range d.Flows.Flows() {
		for _, name := range append([]string{f.Command}, f.Aliases...) {
			if _, clash := s.commands[name]; clash || isPublic(name) {
				return nil, fmt.Errorf("bot: flow %s shadows built-in command %s", f.Command, name)
			}
		}
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"bot.messages",
		metric.WithDescription("Inbound chat messages by outcome"),
	)
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("bot.messages")
	}
	s.messages = counter
	return s, nil
}

// WithClock replaces the time source; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Handle processes one message to completion. Messages of the same chat are handled one
// at a time in call order. The chat state is saved only when handling succeeds; any
// unexpected error or panic is answered with an apology and returned.
func (s *Service) Handle(ctx context.Context, msg Message) (err error) {
	if msg.ChatID == 0 {
		s.log.Debug("message without chat ignored", "sender_id", msg.SenderID)
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "bot.handle", trace.WithAttributes(attribute.Int64("chat.id", msg.ChatID)))
	defer span.End()

	unlock := s.locks.lock(msg.ChatID)
	defer unlock()

	outcome := "error"
	defer func() {
		s.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			err = fmt.Errorf("panic handling message: %v", r)
			s.log.Error("panic handling message", "chat_id", msg.ChatID, "error", err, "stack", string(debug.Stack()))
			s.say(ctx, msg.ChatID, msgApology, PlainText)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	saved, err := s.states.Load(ctx, msg.ChatID)
	if err != nil {
		s.log.Error("load chat state failed", "chat_id", msg.ChatID, "error", err)
		s.say(ctx, msg.ChatID, msgApology, PlainText)
		return fmt.Errorf("load chat state: %w", err)
	}
	st := saved.Clone()

	res, err := s.process(ctx, msg, &st)
	if err != nil {
		s.log.Error("message handling failed", "chat_id", msg.ChatID, "error", err)
		s.say(ctx, msg.ChatID, msgApology, PlainText)
		return err
	}
	if err := s.states.Save(ctx, msg.ChatID, st); err != nil {
		s.log.Error("save chat state failed", "chat_id", msg.ChatID, "error", err)
		return fmt.Errorf("save chat state: %w", err)
	}
	outcome = res
	return nil
}

// process runs one message against a private copy of the chat state and returns the
// outcome label for metrics.
func (s *Service) process(ctx context.Context, msg Message, st *ChatState) (string, error) {
	name, args := msg.Command()

	if st.Run == nil && isPublic(name) {
		if name == "/start" {
			s.say(ctx, msg.ChatID, s.startText(msg), PlainText)
		} else {
			s.say(ctx, msg.ChatID, s.helpText(), Markdown)
		}
		return "public", nil
	}

	d, err := s.gate.Evaluate(ctx, auth.Input{ChatID: msg.ChatID, SenderID: msg.SenderID, Text: msg.Text}, &st.Auth)
	if err != nil {
		return "", fmt.Errorf("auth gate: %w", err)
	}
	if d.Reply != "" {
		s.say(ctx, msg.ChatID, d.Reply, PlainText)
	}
	if !d.Proceed() {
		return d.Outcome.String(), nil
	}

	if st.Run != nil {
		return "conversation", s.continueRun(ctx, msg, st, d.PrincipalID)
	}

	if s.engine.IsCancel(msg.Text) {
		s.say(ctx, msg.ChatID, msgNothingToStop, PlainText)
		return "command", nil
	}
	if name == "" {
		s.say(ctx, msg.ChatID, msgUnrecognized, PlainText)
		return "unrecognized", nil
	}

	if f, ok := s.flows.Lookup(name); ok {
		return "conversation", s.startRun(ctx, msg, st, f)
	}
	cmd, ok := s.commands[name]
	if !ok {
		s.say(ctx, msg.ChatID, msgUnrecognized, PlainText)
		return "unrecognized", nil
	}
	return "command", s.runCommand(ctx, cmd, &call{msg: msg, name: name, args: args, principalID: d.PrincipalID})
}

func (s *Service) startRun(ctx context.Context, msg Message, st *ChatState, f *conversation.Flow) error {
	runID, err := s.newRunID()
	if err != nil {
		return fmt.Errorf("new run id: %w", err)
	}
	run, replies := s.engine.Start(f, runID)
	st.Run = run
	s.log.Info("conversation started", "chat_id", msg.ChatID, "command", f.Command, "run_id", runID)
	for _, r := range replies {
		s.say(ctx, msg.ChatID, r, PlainText)
	}
	return nil
}

func (s *Service) continueRun(ctx context.Context, msg Message, st *ChatState, principalID string) error {
	f, ok := s.flows.Lookup(st.Run.Command)
	if !ok {
		st.Run = nil
		s.say(ctx, msg.ChatID, msgFlowGone, PlainText)
		return nil
	}

	out, err := s.engine.Advance(f, st.Run, msg.Text)
	if errors.Is(err, conversation.ErrRunFinished) {
		st.Run = nil
		s.say(ctx, msg.ChatID, msgUnrecognized, PlainText)
		return nil
	}
	if err != nil {
		return err
	}
	for _, r := range out.Replies {
		s.say(ctx, msg.ChatID, r, PlainText)
	}

	switch {
	case out.Cancelled:
		s.log.Info("conversation cancelled", "chat_id", msg.ChatID, "command", f.Command, "run_id", st.Run.RunID)
		st.Run = nil
	case out.Ready:
		run := st.Run
		st.Run = nil
		// cleared in the store before the call: at most one call per run
		if err := s.states.Save(ctx, msg.ChatID, *st); err != nil {
			return fmt.Errorf("save chat state: %w", err)
		}
		s.complete(ctx, msg, f, run, principalID, out.Payload)
	}
	return nil
}

// complete calls the automation endpoint exactly once and records the result. Downstream
// failures are reported to the user and logged; they are not errors of the handler.
func (s *Service) complete(ctx context.Context, msg Message, f *conversation.Flow, run *conversation.Run, principalID string, payload map[string]any) {
	start := time.Now()
	res, err := s.automation.Call(ctx, f.Endpoint, payload)
	elapsed := time.Since(start)

	if err != nil {
		s.log.Warn("automation call failed", "chat_id", msg.ChatID, "command", f.Command, "run_id", run.RunID,
			"duration", elapsed, "error", err)
		result := map[string]any{"error": err.Error()}
		if res != nil && res.Raw != nil {
			result["response"] = res.Raw
		}
		s.writeLog(ctx, &models.CommandLog{
			UserID:     principalID,
			Command:    f.Command,
			Parameters: payload,
			Result:     result,
			Success:    false,
			DurationMS: elapsed.Milliseconds(),
		})
		s.say(ctx, msg.ChatID, failureText(f, err), PlainText)
		return
	}

	if err := s.records.InsertCommandState(ctx, &models.CommandState{
		RunID:          run.RunID,
		UserID:         principalID,
		TelegramChatID: msg.ChatID,
		Command:        f.Command,
		CurrentStep:    "completed",
		CollectedData:  payload,
		Completed:      true,
	}); err != nil {
		s.log.Error("persist command state failed", "chat_id", msg.ChatID, "run_id", run.RunID, "error", err)
	}
	s.writeLog(ctx, &models.CommandLog{
		UserID:     principalID,
		Command:    f.Command,
		Parameters: payload,
		Result:     res.Raw,
		Success:    true,
		DurationMS: elapsed.Milliseconds(),
	})
	s.log.Info("conversation completed", "chat_id", msg.ChatID, "command", f.Command, "run_id", run.RunID,
		"duration", elapsed, "tasks", len(res.Tasks))
	s.say(ctx, msg.ChatID, summaryText(f, payload, res), Markdown)
}

func (s *Service) writeLog(ctx context.Context, l *models.CommandLog) {
	if l.UserID == "" {
		return
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if err := s.records.InsertCommandLog(ctx, l); err != nil {
		s.log.Warn("command log write failed", "principal_id", l.UserID, "command", l.Command, "error", err)
	}
}

func (s *Service) say(ctx context.Context, chatID int64, text string, mode ParseMode) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := s.replier.SendMessage(ctx, chatID, text, mode); err != nil {
		s.log.Warn("reply failed", "chat_id", chatID, "error", err)
	}
}
