package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds solace-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ClaudeAPIKey          string
	ClaudeModel           string
	DatabaseURL           string
	NotifyWebhookURL      string
	NotifyWebhookToken    string
	QuestionDelayMs       int
	EscalationDelayMs     int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth, dev only)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.NotifyWebhookURL, "notify-webhook-url", "", "webhook URL for staff escalation notifications (empty = disabled)")
	fs.StringVar(&c.NotifyWebhookToken, "notify-webhook-token", "", "bearer token sent with notification webhook calls")
	fs.IntVar(&c.QuestionDelayMs, "question-delay-ms", 1500, "pacing delay before each scripted triage message (0..60000)")
	fs.IntVar(&c.EscalationDelayMs, "escalation-delay-ms", 2000, "pacing delay before the in-conversation escalation notice (0..60000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// Pacing delays bound how long scripted messages lag their trigger
	if c.QuestionDelayMs < 0 || c.QuestionDelayMs > 60000 {
		errs = append(errs, fmt.Errorf("invalid QUESTION_DELAY_MS %d (must be 0..60000)", c.QuestionDelayMs))
	}
	if c.EscalationDelayMs < 0 || c.EscalationDelayMs > 60000 {
		errs = append(errs, fmt.Errorf("invalid ESCALATION_DELAY_MS %d (must be 0..60000)", c.EscalationDelayMs))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
