package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/models"
	"github.com/suPer8Hu/remote-control/internal/store"
)

// call is one single-shot command invocation. Handlers may fill params, result and
// failed to shape the command log row.
type call struct {
	msg         Message
	name        string
	args        string
	principalID string

	params map[string]any
	result map[string]any
	failed error
}

type command struct {
	description string
	run         func(ctx context.Context, c *call) error
}

func isPublic(name string) bool { return name == "/start" || name == "/help" }

func (s *Service) builtinCommands() map[string]command {
	return map[string]command{
		"/status":  {description: "Check system and workflow status", run: s.status},
		"/deploy":  {description: "Deploy applications", run: s.deploy},
		"/webhook": {description: "Trigger custom webhooks", run: s.webhook},
	}
}

// runCommand executes a single-shot command and writes exactly one command log row.
func (s *Service) runCommand(ctx context.Context, cmd command, c *call) error {
	start := time.Now()
	err := cmd.run(ctx, c)
	elapsed := time.Since(start)

	params := map[string]any{
		"text":        c.msg.Text,
		"duration_ms": elapsed.Milliseconds(),
		"chat_id":     c.msg.ChatID,
	}
	for k, v := range c.params {
		params[k] = v
	}
	if err != nil {
		params["error"] = err.Error()
	}
	s.writeLog(ctx, &models.CommandLog{
		UserID:     c.principalID,
		Command:    c.name,
		Parameters: params,
		Result:     c.result,
		Success:    err == nil && c.failed == nil,
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

func (s *Service) startText(msg Message) string {
	name := msg.SenderName
	if name == "" {
		name = "User"
	}
	return fmt.Sprintf("👋 Welcome to the Remote Control Bot, %s!\n\n"+
		"This bot allows you to control various applications and workflows.\n\n"+
		"To get started, you'll need to authenticate.\n"+
		"Use any command (like /help) to begin the authentication process.", name)
}

func (s *Service) helpText() string {
	var b strings.Builder
	b.WriteString("📚 *Available Commands*\n")

	if flows := s.flows.Flows(); len(flows) > 0 {
		b.WriteString("\n*Guided Commands*\n")
		for _, f := range flows {
			fmt.Fprintf(&b, "%s - %s", escapeMarkdown(f.Command), escapeMarkdown(f.Description))
			if len(f.Aliases) > 0 {
				fmt.Fprintf(&b, " (also %s)", escapeMarkdown(strings.Join(f.Aliases, ", ")))
			}
			b.WriteString("\n")
		}
	}

	names := make([]string, 0, len(s.commands))
	for n := range s.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	b.WriteString("\n*System Control*\n")
	for _, n := range names {
		fmt.Fprintf(&b, "%s - %s\n", escapeMarkdown(n), s.commands[n].description)
	}

	b.WriteString("\n*Utility*\n/help - Show this help message\n/start - Welcome message\n")

	if s.opts.VerboseHelp {
		b.WriteString("\n*Tips:*\n")
		fmt.Fprintf(&b, "• Send \"%s\" to use default values\n", escapeMarkdown(s.opts.SkipSentinel))
		fmt.Fprintf(&b, "• Type \"%s\" to stop any conversation\n", escapeMarkdown(s.opts.CancelKeyword))
		if s.opts.SessionTTL > 0 {
			fmt.Fprintf(&b, "• Your session stays active for %s\n", auth.HumanTTL(s.opts.SessionTTL))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) status(ctx context.Context, c *call) error {
	s.say(ctx, c.msg.ChatID, "🔍 Checking system status...", PlainText)

	var lines []string
	if n, err := s.records.CountActiveSessions(ctx, s.now()); err != nil {
		s.log.Warn("status: session count failed", "error", err)
		lines = append(lines, "❌ Database: Connection failed")
	} else {
		lines = append(lines, fmt.Sprintf("✅ Database: Connected (%d active sessions)", n))
	}
	if err := s.automation.Ping(ctx); err != nil {
		s.log.Info("status: automation ping failed", "error", err)
		lines = append(lines, "⚠️ Automation: Unreachable (workflows may still work)")
	} else {
		lines = append(lines, "✅ Automation: Reachable")
	}

	var b strings.Builder
	b.WriteString("*System Status*\n\n")
	b.WriteString(strings.Join(lines, "\n"))

	recent, err := s.records.RecentCommandLogs(ctx, c.principalID, 5)
	if err != nil {
		s.log.Warn("status: recent commands failed", "principal_id", c.principalID, "error", err)
	}
	if len(recent) > 0 {
		b.WriteString("\n\n*Recent Commands:*\n")
		for _, l := range recent {
			icon := "✅"
			if !l.Success {
				icon = "❌"
			}
			fmt.Fprintf(&b, "%s %s - %s\n", icon, escapeMarkdown(l.Command), l.CreatedAt.UTC().Format("15:04:05"))
		}
	}

	for _, f := range s.flows.Flows() {
		last, err := s.records.LastCompletedState(ctx, c.principalID, f.Command)
		if err != nil {
			if !store.IsNotFound(err) {
				s.log.Warn("status: last run lookup failed", "command", f.Command, "error", err)
			}
			continue
		}
		fmt.Fprintf(&b, "\n*Last %s:*\n", escapeMarkdown(f.Command))
		for i, st := range f.Steps {
			if i >= 2 {
				break
			}
			if v, ok := last.CollectedData[st.Name]; ok {
				fmt.Fprintf(&b, "%s: %s\n", st.Label, escapeMarkdown(truncate(fmt.Sprint(v), 50)))
			}
		}
		fmt.Fprintf(&b, "Time: %s\n", last.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}

	s.say(ctx, c.msg.ChatID, strings.TrimRight(b.String(), "\n"), Markdown)
	return nil
}

func (s *Service) deploy(ctx context.Context, c *call) error {
	s.say(ctx, c.msg.ChatID, "🚀 *Deployment Options*\n\n"+
		"This feature is coming soon!\n\n"+
		"Planned deployments:\n"+
		"• Railway apps\n"+
		"• Vercel projects\n"+
		"• Docker containers\n"+
		"• GitHub Actions\n\n"+
		"Use /help to see available commands.", Markdown)
	c.params = map[string]any{"message": "Feature not yet implemented"}
	return nil
}

func (s *Service) webhook(ctx context.Context, c *call) error {
	name := c.args
	if name == "" {
		list, err := s.records.ListEnabledIntegrations(ctx)
		if err != nil {
			return fmt.Errorf("list integrations: %w", err)
		}
		var b strings.Builder
		b.WriteString("🔗 *Available Webhooks*\n\n")
		if len(list) == 0 {
			b.WriteString("No webhooks configured yet.\n")
		}
		for _, it := range list {
			fmt.Fprintf(&b, "• /webhook %s\n", escapeMarkdown(it.Name))
		}
		b.WriteString("\nUsage: `/webhook [name]`")
		s.say(ctx, c.msg.ChatID, b.String(), Markdown)
		return nil
	}

	c.params = map[string]any{"webhook": name}
	it, err := s.records.GetEnabledIntegration(ctx, name)
	if err != nil {
		if store.IsNotFound(err) {
			s.say(ctx, c.msg.ChatID, fmt.Sprintf("❌ Webhook %q not found.", name), PlainText)
			return nil
		}
		return fmt.Errorf("get integration: %w", err)
	}
	if it.WebhookURL == "" {
		s.say(ctx, c.msg.ChatID, fmt.Sprintf("❌ Webhook %q not found.", name), PlainText)
		return nil
	}

	s.say(ctx, c.msg.ChatID, fmt.Sprintf("🔄 Triggering webhook: %s...", name), PlainText)
	out, err := s.automation.Trigger(ctx, it.WebhookURL, it.Config)
	if err != nil {
		c.failed = err
		c.result = map[string]any{"error": err.Error()}
		s.say(ctx, c.msg.ChatID, "❌ Failed to trigger webhook.\nError: "+err.Error(), PlainText)
		return nil
	}
	c.result = out

	body, _ := json.MarshalIndent(out, "", "  ")
	s.say(ctx, c.msg.ChatID, "✅ Webhook triggered successfully!\n\nResponse: "+truncate(string(body), 500), PlainText)
	return nil
}
