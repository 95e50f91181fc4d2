// Package config loads the TOML configuration document that drives every
// subsystem: tick timing, the flag regex, adapter selection, and the
// database connection.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Cyberlandslaget/angrepa/internal/validate"
)

// Common holds the competition-wide settings shared by every subsystem.
type Common struct {
	Tick                  int64             `toml:"tick"`
	Format                string            `toml:"format"`
	Start                 string            `toml:"start"`
	Services              []string          `toml:"services"`
	ServicesWithoutFlagID []string          `toml:"services_without_flagid"`
	FlagValidity          int64             `toml:"flag_validity"`
	Rename                map[string]string `toml:"rename"`
	NOP                   string            `toml:"nop"`
	Own                   string            `toml:"own"`
	Webhook               string            `toml:"webhook"`
}

// StartTime parses Start as an RFC 3339 UTC timestamp.
func (c Common) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse common.start %q: %w", c.Start, err)
	}
	return t.UTC(), nil
}

// TickDuration returns Tick as a time.Duration.
func (c Common) TickDuration() time.Duration {
	return time.Duration(c.Tick) * time.Second
}

// Offset returns the fetcher's tick-clock offset: roughly 10% of tick,
// minimum one second.
func (c Common) Offset() time.Duration {
	off := c.TickDuration() / 10
	if off < time.Second {
		off = time.Second
	}
	return off
}

// Manager selects the fetcher and submitter adapter variants and carries
// their adapter-specific configuration as raw, re-decodable tables.
type Manager struct {
	SubmitterName string                 `toml:"submitter_name"`
	Submitter     map[string]interface{} `toml:"submitter"`
	FetcherName   string                 `toml:"fetcher_name"`
	Fetcher       map[string]interface{} `toml:"fetcher"`
}

// Runner holds the bind addresses for the control-plane HTTP and
// notification-bus WebSocket servers.
type Runner struct {
	HTTPServer string `toml:"http_server"`
	WSServer   string `toml:"ws_server"`
}

// Maintenance configures the periodic storage-stats/prune job. An empty
// Cron disables the job entirely.
type Maintenance struct {
	Cron     string `toml:"cron"`
	KeepDays int64  `toml:"keep_days"`
}

// Database holds the Postgres connection parameters.
type Database struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	DB       string `toml:"db"`
}

// DSN formats the Postgres connection string pgx expects.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", d.Username, d.Password, d.Host, d.DB)
}

// Config is the full, decoded configuration document.
type Config struct {
	Common      Common      `toml:"common"`
	Manager     Manager     `toml:"manager"`
	Runner      Runner      `toml:"runner"`
	Database    Database    `toml:"database"`
	Maintenance Maintenance `toml:"maintenance"`
}

const defaultConfigTemplate = `# angrepa configuration. Generated on first run; edit freely.

[common]
tick = 120
format = "[A-Z0-9]{31}="
start = "2030-01-01T00:00:00Z"
services = ["example"]
services_without_flagid = []
flag_validity = 5
nop = ""
own = ""
webhook = ""

[common.rename]

[manager]
submitter_name = "tcp"
fetcher_name = "tick-keyed"

[manager.submitter]
addr = "127.0.0.1:31337"
# http submitter instead uses: url, path, cookie_name, cookie_value

[manager.fetcher]
url = "http://gameserver/api"
# list-only fetcher additionally uses: ip_format = "10.60.{x}.1"

[runner]
http_server = "0.0.0.0:5000"
ws_server = "0.0.0.0:5001"

[maintenance]
cron = "0 3 * * *"
keep_days = 14

[database]
username = "angrepa"
password = "angrepa"
host = "127.0.0.1:5432"
db = "angrepa"
`

// Load decodes the TOML document at path. If the file does not exist, a
// commented default document is written first so an operator has
// something to edit.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := ensureDefaultConfig(path); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func ensureDefaultConfig(path string) error {
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}

// validate rejects missing required fields or malformed adapter names at
// startup rather than letting them surface mid-run.
func (c Config) validate() error {
	if c.Common.Tick <= 0 {
		return fmt.Errorf("common.tick must be positive, got %d", c.Common.Tick)
	}
	if _, err := c.Common.StartTime(); err != nil {
		return err
	}
	if c.Common.Format == "" {
		return fmt.Errorf("common.format must be set")
	}
	if c.Common.FlagValidity <= 0 {
		return fmt.Errorf("common.flag_validity must be positive, got %d", c.Common.FlagValidity)
	}
	if c.Manager.SubmitterName == "" {
		return fmt.Errorf("manager.submitter_name must be set")
	}
	if c.Manager.FetcherName == "" {
		return fmt.Errorf("manager.fetcher_name must be set")
	}
	if c.Runner.HTTPServer == "" {
		return fmt.Errorf("runner.http_server must be set")
	}
	if c.Runner.WSServer == "" {
		return fmt.Errorf("runner.ws_server must be set")
	}
	if c.Database.Host == "" || c.Database.DB == "" {
		return fmt.Errorf("database.host and database.db must be set")
	}
	if c.Maintenance.Cron != "" {
		if err := validate.CronExpression(c.Maintenance.Cron); err != nil {
			return fmt.Errorf("maintenance.cron: %w", err)
		}
		if c.Maintenance.KeepDays <= 0 {
			return fmt.Errorf("maintenance.keep_days must be positive when maintenance.cron is set")
		}
	}
	return nil
}
