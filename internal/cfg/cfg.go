package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config adds intake-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	DataFile              string
	InsurerEndpoint       string
	InsurerToken          string
	VerifyEndpoint        string
	APIToken              string
	CORSOrigins           string
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the triage store")
	fs.StringVar(&c.DataFile, "data-file", "", "path for the JSON snapshot triage store (ignored when database-url is set)")
	fs.StringVar(&c.InsurerEndpoint, "insurer-endpoint", "", "insurer endpoint records are submitted to (empty = submission disabled)")
	fs.StringVar(&c.InsurerToken, "insurer-token", "", "bearer token for the insurer endpoint")
	fs.StringVar(&c.VerifyEndpoint, "verify-endpoint", "", "face-match verification endpoint (empty = verification disabled)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on review and submission routes (empty = open)")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma-separated origins allowed for browser requests (empty = CORS disabled)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for flagged capture notifications")
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

	// One durable store at a time
	if c.DatabaseURL != "" && c.DataFile != "" {
		errs = append(errs, errors.New("DATABASE_URL and DATA_FILE are mutually exclusive"))
	}

	if c.InsurerEndpoint != "" {
		if _, err := url.ParseRequestURI(c.InsurerEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid INSURER_ENDPOINT %q: %w", c.InsurerEndpoint, err))
		}
	}
	if c.VerifyEndpoint != "" {
		if _, err := url.ParseRequestURI(c.VerifyEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid VERIFY_ENDPOINT %q: %w", c.VerifyEndpoint, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
