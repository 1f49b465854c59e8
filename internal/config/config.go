package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version int           `yaml:"version" validate:"required"`
	Global  GlobalConfig  `yaml:"global"`
	Node    NodeConfig    `yaml:"node"`
	Module  ModuleConfig  `yaml:"module"`
	Poller  PollerConfig  `yaml:"poller"`
	Payment PaymentConfig `yaml:"payment"`
	NATS    NATSConfig    `yaml:"nats"`
	Rules   []Rule        `yaml:"rules" validate:"dive"`
	Sinks   []Sink        `yaml:"sinks" validate:"dive"`
}

type GlobalConfig struct {
	DBPath      string `yaml:"db_path"`
	CursorStore string `yaml:"cursor_store" validate:"oneof=memory sqlite badger"`
	BadgerDir   string `yaml:"badger_dir"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

type NodeConfig struct {
	URL        string        `yaml:"url" validate:"required,url"`
	IndexerURL string        `yaml:"indexer_url" validate:"omitempty,url"`
	Network    string        `yaml:"network"`
	ChainID    int           `yaml:"chain_id" validate:"gte=0,lte=255"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	RPS        int           `yaml:"rps" validate:"gte=0"`
	Burst      int           `yaml:"burst" validate:"gte=0"`
}

type ModuleConfig struct {
	Address       string `yaml:"address" validate:"required"`
	Name          string `yaml:"name"`
	EventStruct   string `yaml:"event_struct"`
	EventHandle   string `yaml:"event_handle"`
	EventField    string `yaml:"event_field"`
	EntryFunction string `yaml:"entry_function"`
}

// EventType is the fully qualified Move type of the watched event.
func (m ModuleConfig) EventType() string {
	return fmt.Sprintf("%s::%s::%s", m.Address, m.Name, m.EventStruct)
}

// EventHandleStruct is the fully qualified resource holding the event handle.
func (m ModuleConfig) EventHandleStruct() string {
	return fmt.Sprintf("%s::%s::%s", m.Address, m.Name, m.EventHandle)
}

// StreamID identifies the (account, event type) stream for cursor storage.
func (m ModuleConfig) StreamID() string {
	return m.Address + "/" + m.EventType()
}

type PollerConfig struct {
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size" validate:"gte=1,lte=10000"`
	FetchMode string `yaml:"fetch_mode" validate:"oneof=rest indexer"`
}

type PaymentConfig struct {
	PrivateKey     string        `yaml:"private_key"`
	MinAmount      uint64        `yaml:"min_amount"`
	MaxGasAmount   uint64        `yaml:"max_gas_amount"`
	GasUnitPrice   uint64        `yaml:"gas_unit_price"`
	ExpirationSecs uint64        `yaml:"expiration_secs"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
}

type NATSConfig struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Dedupe struct {
	Key string `yaml:"key"`
	TTL string `yaml:"ttl"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Rule struct {
	ID        string     `yaml:"id" validate:"required"`
	Where     []string   `yaml:"where"`
	Sinks     []string   `yaml:"sinks" validate:"required,min=1"`
	Dedupe    *Dedupe    `yaml:"dedupe,omitempty"`
	RateLimit *RateLimit `yaml:"rate_limit,omitempty"`
}

type Sink struct {
	ID         string `yaml:"id" validate:"required"`
	Type       string `yaml:"type" validate:"required"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	Subject    string `yaml:"subject"`
}

var (
	envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)
	validate   = validator.New()
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Defaults matching the public testnet deployment.
const (
	DefaultNodeURL        = "https://fullnode.testnet.aptoslabs.com/v1"
	DefaultIndexerURL     = "https://api.testnet.aptoslabs.com/v1/graphql"
	DefaultSchedule       = "*/10 * * * * *"
	DefaultBatchSize      = 100
	DefaultMinAmount      = 1_000_000
	DefaultMaxGasAmount   = 200_000
	DefaultExpirationSecs = 600
)

// Load reads, interpolates env vars, parses YAML, applies defaults and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(raw)
}

// Parse interpolates, decodes and validates an in-memory config document.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = "paywatch.db"
	}
	if c.Global.CursorStore == "" {
		c.Global.CursorStore = "sqlite"
	}
	if c.Global.BadgerDir == "" {
		c.Global.BadgerDir = "paywatch-cursors"
	}
	if c.Node.URL == "" {
		c.Node.URL = DefaultNodeURL
	}
	if c.Node.Network == "" {
		c.Node.Network = "testnet"
	}
	if c.Node.Timeout == 0 {
		c.Node.Timeout = 10 * time.Second
	}
	if c.Module.Name == "" {
		c.Module.Name = "payment"
	}
	if c.Module.EventStruct == "" {
		c.Module.EventStruct = "PaymentProcessedEvent"
	}
	if c.Module.EventHandle == "" {
		c.Module.EventHandle = "EventStore"
	}
	if c.Module.EventField == "" {
		c.Module.EventField = "payment_events"
	}
	if c.Module.EntryFunction == "" {
		c.Module.EntryFunction = "process_payment"
	}
	if c.Poller.Schedule == "" {
		c.Poller.Schedule = DefaultSchedule
	}
	if c.Poller.BatchSize == 0 {
		c.Poller.BatchSize = DefaultBatchSize
	}
	if c.Poller.FetchMode == "" {
		c.Poller.FetchMode = "indexer"
	}
	if c.Poller.FetchMode == "indexer" && c.Node.IndexerURL == "" {
		c.Node.IndexerURL = DefaultIndexerURL
	}
	if c.Payment.MinAmount == 0 {
		c.Payment.MinAmount = DefaultMinAmount
	}
	if c.Payment.MaxGasAmount == 0 {
		c.Payment.MaxGasAmount = DefaultMaxGasAmount
	}
	if c.Payment.ExpirationSecs == 0 {
		c.Payment.ExpirationSecs = DefaultExpirationSecs
	}
	if c.Payment.WaitTimeout == 0 {
		c.Payment.WaitTimeout = 60 * time.Second
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "PAYMENTS"
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []Sink{{ID: "console", Type: "log"}}
	}
	if len(c.Rules) == 0 {
		ids := make([]string, 0, len(c.Sinks))
		for _, s := range c.Sinks {
			ids = append(ids, s.ID)
		}
		c.Rules = []Rule{{ID: "all", Sinks: ids}}
	}
}

// Validate runs struct tag validation and cross-reference checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !isHexAddress(c.Module.Address) {
		return fmt.Errorf("module.address %q is not a hex account address", c.Module.Address)
	}
	if _, err := cronParser.Parse(c.Poller.Schedule); err != nil {
		return fmt.Errorf("poller.schedule %q: %w", c.Poller.Schedule, err)
	}
	if c.Poller.FetchMode == "rest" && (c.Module.EventHandle == "" || c.Module.EventField == "") {
		return errors.New("module.event_handle and module.event_field are required for rest fetch mode")
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(c.NATS); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	ruleIDs := map[string]struct{}{}
	for _, r := range c.Rules {
		if _, exists := ruleIDs[r.ID]; exists {
			return fmt.Errorf("duplicate rule id: %s", r.ID)
		}
		ruleIDs[r.ID] = struct{}{}
		if err := r.Validate(sinkIDs); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return nil
}

// ValidateForSubmit checks the settings only the submit path needs.
func (c *Config) ValidateForSubmit() error {
	if strings.TrimSpace(c.Payment.PrivateKey) == "" {
		return errors.New("payment.private_key is required to submit payments")
	}
	return nil
}

func (r *Rule) Validate(sinkIDs map[string]*Sink) error {
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}
	if r.Dedupe != nil {
		if r.Dedupe.TTL == "" {
			return errors.New("dedupe.ttl is required when dedupe is set")
		}
		if _, err := time.ParseDuration(r.Dedupe.TTL); err != nil {
			return fmt.Errorf("dedupe.ttl: %w", err)
		}
	}
	if r.RateLimit != nil && r.RateLimit.RPS <= 0 {
		return errors.New("rate_limit.rps must be > 0")
	}
	return nil
}

func (s *Sink) Validate(nats NATSConfig) error {
	switch strings.ToLower(s.Type) {
	case "log":
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	case "nats":
		if nats.URL == "" {
			return errors.New("nats.url is required for nats sinks")
		}
		if s.Subject == "" {
			s.Subject = "payments.processed"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func isHexAddress(addr string) bool {
	a := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	if a == "" || len(a) > 64 {
		return false
	}
	for _, c := range a {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
