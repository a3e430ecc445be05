package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketsync/backend/internal/domain/integration"
)

// Config holds all application configuration. It is built once at process
// start and passed by reference; core logic performs no ambient lookups.
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Marketplace MarketplaceConfig
	Ledger      LedgerConfig
	Orders      OrdersConfig
	Supplies    SuppliesConfig
	Sync        SyncConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds the run-state database settings. Driver selects
// sqlite (single-host deployments, Path is the db file) or postgres.
type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// CacheConfig holds the catalog product cache settings
type CacheConfig struct {
	Enabled  bool // use redis; in-memory per-run cache otherwise
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// MarketplaceConfig holds marketplace API credentials and endpoints
type MarketplaceConfig struct {
	BaseURL     string
	Token       string
	WarehouseID int64
	// The supplies API lives on a separate host with its own token; the
	// token falls back to the main one when unset.
	SuppliesBaseURL string
	SuppliesToken   string
}

// LedgerConfig holds ledger API credentials and the fixed entity references
// every created document carries.
type LedgerConfig struct {
	BaseURL        string
	Token          string
	OrgID          string
	AgentID        string
	StoreID        string
	SalesChannelID string
}

// OrdersConfig holds the order-flow state mapping: one vendor state id per
// symbolic order stage. Optional ids leave the corresponding transition
// unapplied.
type OrdersConfig struct {
	Cutoff                   string // RFC3339; orders created before it are never imported
	StateNewID               string
	StatePickingID           string
	StatePickedID            string
	StateShippedID           string
	StateDeliveringID        string
	StateDeliveredID         string
	StateCancelledID         string
	StateCancelledBySellerID string
	// ShipmentStateID is set on the shipment after creation, when configured
	ShipmentStateID string
}

// SuppliesConfig holds the supply-flow settings
type SuppliesConfig struct {
	SalesChannelID  string
	OrderStateID    string
	TransferStateID string
	ShipmentStateID string
	SourceStoreID   string
	TargetStoreID   string
	LookbackDays    int
	TimezoneOffset  string // appended to offset-less planned dates, e.g. "+03:00"
}

// SyncConfig holds cross-flow runtime settings
type SyncConfig struct {
	HTTPTimeout     time.Duration
	CatalogThrottle time.Duration
	RunLockTTL      time.Duration
	DryRun          bool
}

// Load loads configuration from the TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g. SYNC_LEDGER_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/marketsync")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars cover it
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Cache: CacheConfig{
			Enabled:  v.GetBool("cache.enabled"),
			Host:     v.GetString("cache.host"),
			Port:     v.GetInt("cache.port"),
			Password: v.GetString("cache.password"),
			DB:       v.GetInt("cache.db"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:         v.GetString("marketplace.base_url"),
			Token:           v.GetString("marketplace.token"),
			WarehouseID:     v.GetInt64("marketplace.warehouse_id"),
			SuppliesBaseURL: v.GetString("marketplace.supplies_base_url"),
			SuppliesToken:   v.GetString("marketplace.supplies_token"),
		},
		Ledger: LedgerConfig{
			BaseURL:        v.GetString("ledger.base_url"),
			Token:          v.GetString("ledger.token"),
			OrgID:          v.GetString("ledger.org_id"),
			AgentID:        v.GetString("ledger.agent_id"),
			StoreID:        v.GetString("ledger.store_id"),
			SalesChannelID: v.GetString("ledger.sales_channel_id"),
		},
		Orders: OrdersConfig{
			Cutoff:                   v.GetString("orders.cutoff"),
			StateNewID:               v.GetString("orders.state_new_id"),
			StatePickingID:           v.GetString("orders.state_picking_id"),
			StatePickedID:            v.GetString("orders.state_picked_id"),
			StateShippedID:           v.GetString("orders.state_shipped_id"),
			StateDeliveringID:        v.GetString("orders.state_delivering_id"),
			StateDeliveredID:         v.GetString("orders.state_delivered_id"),
			StateCancelledID:         v.GetString("orders.state_cancelled_id"),
			StateCancelledBySellerID: v.GetString("orders.state_cancelled_by_seller_id"),
			ShipmentStateID:          v.GetString("orders.shipment_state_id"),
		},
		Supplies: SuppliesConfig{
			SalesChannelID:  v.GetString("supplies.sales_channel_id"),
			OrderStateID:    v.GetString("supplies.order_state_id"),
			TransferStateID: v.GetString("supplies.transfer_state_id"),
			ShipmentStateID: v.GetString("supplies.shipment_state_id"),
			SourceStoreID:   v.GetString("supplies.source_store_id"),
			TargetStoreID:   v.GetString("supplies.target_store_id"),
			LookbackDays:    v.GetInt("supplies.lookback_days"),
			TimezoneOffset:  v.GetString("supplies.timezone_offset"),
		},
		Sync: SyncConfig{
			HTTPTimeout:     v.GetDuration("sync.http_timeout"),
			CatalogThrottle: v.GetDuration("sync.catalog_throttle"),
			RunLockTTL:      v.GetDuration("sync.run_lock_ttl"),
			DryRun:          v.GetBool("sync.dry_run"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "marketsync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Cache.Host == "" {
		cfg.Cache.Host = "localhost"
	}
	if cfg.Cache.Port == 0 {
		cfg.Cache.Port = 6379
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 12 * time.Hour
	}
	if cfg.Marketplace.BaseURL == "" {
		cfg.Marketplace.BaseURL = "https://marketplace-api.example.com"
	}
	if cfg.Marketplace.SuppliesBaseURL == "" {
		cfg.Marketplace.SuppliesBaseURL = "https://supplies-api.example.com"
	}
	if cfg.Marketplace.SuppliesToken == "" {
		cfg.Marketplace.SuppliesToken = cfg.Marketplace.Token
	}
	if cfg.Supplies.LookbackDays == 0 {
		cfg.Supplies.LookbackDays = 30
	}
	if cfg.Supplies.TimezoneOffset == "" {
		cfg.Supplies.TimezoneOffset = "+03:00"
	}
	if cfg.Sync.HTTPTimeout == 0 {
		cfg.Sync.HTTPTimeout = 30 * time.Second
	}
	if cfg.Sync.CatalogThrottle == 0 {
		cfg.Sync.CatalogThrottle = 80 * time.Millisecond
	}
	if cfg.Sync.RunLockTTL == 0 {
		cfg.Sync.RunLockTTL = 30 * time.Minute
	}
}

// validate performs validation common to all flows
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Sync.DryRun {
			return fmt.Errorf("sync.dry_run must be false in production")
		}
	}
	if c.Orders.Cutoff != "" {
		if _, err := time.Parse(time.RFC3339, c.Orders.Cutoff); err != nil {
			return fmt.Errorf("orders.cutoff must be RFC3339: %w", err)
		}
	}
	return nil
}

// ValidateOrderFlow checks the settings the order flow cannot run without.
// Missing required values are fatal setup errors, not per-entity skips.
func (c *Config) ValidateOrderFlow() error {
	if err := c.validateLedgerAccess(); err != nil {
		return err
	}
	if c.Marketplace.Token == "" {
		return fmt.Errorf("marketplace.token is required")
	}
	if c.Ledger.SalesChannelID == "" {
		return fmt.Errorf("ledger.sales_channel_id is required")
	}
	return nil
}

// ValidateSupplyFlow checks the settings the supply flow cannot run without
func (c *Config) ValidateSupplyFlow() error {
	if err := c.validateLedgerAccess(); err != nil {
		return err
	}
	if c.Marketplace.SuppliesToken == "" {
		return fmt.Errorf("marketplace.supplies_token or marketplace.token is required")
	}
	for name, val := range map[string]string{
		"supplies.sales_channel_id":  c.Supplies.SalesChannelID,
		"supplies.order_state_id":    c.Supplies.OrderStateID,
		"supplies.transfer_state_id": c.Supplies.TransferStateID,
		"supplies.shipment_state_id": c.Supplies.ShipmentStateID,
		"supplies.source_store_id":   c.Supplies.SourceStoreID,
		"supplies.target_store_id":   c.Supplies.TargetStoreID,
	} {
		if val == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// ValidateStockFlow checks the settings the stock flow cannot run without
func (c *Config) ValidateStockFlow() error {
	if err := c.validateLedgerAccess(); err != nil {
		return err
	}
	if c.Marketplace.Token == "" {
		return fmt.Errorf("marketplace.token is required")
	}
	if c.Marketplace.WarehouseID == 0 {
		return fmt.Errorf("marketplace.warehouse_id is required")
	}
	return nil
}

func (c *Config) validateLedgerAccess() error {
	for name, val := range map[string]string{
		"ledger.token":    c.Ledger.Token,
		"ledger.org_id":   c.Ledger.OrgID,
		"ledger.agent_id": c.Ledger.AgentID,
		"ledger.store_id": c.Ledger.StoreID,
	} {
		if val == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Derived order-flow settings
// ---------------------------------------------------------------------------

// StateIDFor maps a symbolic order stage to the configured vendor state id.
// Empty when the stage is not configured. The picked stage falls back to the
// picking id so a single-stage configuration still confirms orders.
func (c *OrdersConfig) StateIDFor(s integration.OrderStage) string {
	switch s {
	case integration.StageNew:
		return c.StateNewID
	case integration.StagePicking:
		if c.StatePickingID == "" {
			return c.StatePickedID
		}
		return c.StatePickingID
	case integration.StagePicked:
		if c.StatePickedID == "" {
			return c.StatePickingID
		}
		return c.StatePickedID
	case integration.StageShipped:
		return c.StateShippedID
	case integration.StageDelivering:
		return c.StateDeliveringID
	case integration.StageDelivered:
		return c.StateDeliveredID
	case integration.StageCancelled:
		return c.StateCancelledID
	case integration.StageCancelledBySeller:
		return c.StateCancelledBySellerID
	default:
		return ""
	}
}

// ShipmentDenyStateIDs returns the vendor state ids of the stages that are
// too early for a shipment. Unconfigured stages contribute nothing.
func (c *OrdersConfig) ShipmentDenyStateIDs() map[string]struct{} {
	deny := make(map[string]struct{})
	for _, stage := range integration.DefaultShipmentDenyStages() {
		if id := c.StateIDFor(stage); id != "" {
			deny[id] = struct{}{}
		}
	}
	return deny
}

// CutoffTime returns the parsed import cutoff, or the zero time when unset
func (c *OrdersConfig) CutoffTime() time.Time {
	if c.Cutoff == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, c.Cutoff)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
