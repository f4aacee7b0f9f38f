// internal/config/config.go
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"printer-service/internal/model"
)

// minTicketWidth is the narrowest paper the ticket layout can render on.
const minTicketWidth = 8

// Config represents the application configuration
type Config struct {
	App      AppConfig       `mapstructure:"app"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Health   HealthConfig    `mapstructure:"health"`
	Printers []PrinterConfig `mapstructure:"printers"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// HealthConfig represents health monitor configuration
type HealthConfig struct {
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	CriticalThreshold int           `mapstructure:"critical_threshold"`
}

// PrinterConfig represents one configured printer
type PrinterConfig struct {
	Name             string        `mapstructure:"name"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Protocol         string        `mapstructure:"protocol"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailSafe         bool          `mapstructure:"fail_safe"`
	TaxRates         []float64     `mapstructure:"tax_rates"`
	PaymentTolerance string        `mapstructure:"payment_tolerance"`
	TicketWidth      int           `mapstructure:"ticket_width"`
	AutoCut          bool          `mapstructure:"auto_cut"`
	AutoOpenDrawer   bool          `mapstructure:"auto_open_drawer"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/printer-service")

	// Environment variable support
	viper.SetEnvPrefix("PRINTER_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine: defaults plus env cover a single
	// fiscal/ticket pair on standard ports.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "printer-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// Health defaults
	viper.SetDefault("health.check_interval", "30s")
	viper.SetDefault("health.critical_threshold", 3)
}

// validate validates the configuration
func validate(config *Config) error {
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Health.CheckInterval <= 0 {
		return fmt.Errorf("health.check_interval must be positive")
	}
	if config.Health.CriticalThreshold < 1 {
		return fmt.Errorf("health.critical_threshold must be at least 1")
	}

	seen := make(map[string]bool)
	for i := range config.Printers {
		p := &config.Printers[i]
		if err := p.validate(); err != nil {
			return fmt.Errorf("printers[%d] (%s): %w", i, p.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("printers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

func (p *PrinterConfig) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	ip := net.ParseIP(p.Host)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("host %q is not a valid IPv4 address", p.Host)
	}
	// Port 0 means "use the protocol default" and is filled by ToDeviceConfig.
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p.Port)
	}

	switch model.ProtocolKind(p.Protocol) {
	case model.ProtocolFiscal:
		if len(p.TaxRates) == 0 {
			return fmt.Errorf("fiscal printer requires tax_rates")
		}
		if p.PaymentTolerance != "" {
			tolerance, err := decimal.NewFromString(p.PaymentTolerance)
			if err != nil {
				return fmt.Errorf("payment_tolerance %q is not a decimal: %w", p.PaymentTolerance, err)
			}
			if tolerance.IsNegative() {
				return fmt.Errorf("payment_tolerance must not be negative")
			}
		}
	case model.ProtocolTicket:
		// 0 means "use the default"; anything narrower than the widest
		// line indent cannot hold a single wrapped character.
		if p.TicketWidth != 0 && p.TicketWidth < minTicketWidth {
			return fmt.Errorf("ticket_width must be at least %d", minTicketWidth)
		}
	default:
		return fmt.Errorf("protocol must be %s or %s", model.ProtocolFiscal, model.ProtocolTicket)
	}

	return nil
}

// ToDeviceConfig converts a validated PrinterConfig into the immutable
// DeviceConfig consumed by the drivers. Defaults that depend on the
// protocol kind are applied here.
func (p *PrinterConfig) ToDeviceConfig() model.DeviceConfig {
	cfg := model.DeviceConfig{
		Name:             p.Name,
		Host:             p.Host,
		Port:             p.Port,
		Timeout:          p.Timeout,
		Protocol:         model.ProtocolKind(p.Protocol),
		FailSafe:         p.FailSafe,
		PaymentTolerance: decimal.Zero,
		TicketWidth:      p.TicketWidth,
		AutoCut:          p.AutoCut,
		AutoOpenDrawer:   p.AutoOpenDrawer,
	}

	if cfg.Port == 0 {
		cfg.Port = 9100
	}
	if cfg.Timeout == 0 {
		if cfg.Protocol == model.ProtocolFiscal {
			cfg.Timeout = 30 * time.Second
		} else {
			cfg.Timeout = 10 * time.Second
		}
	}
	if cfg.Protocol == model.ProtocolTicket && cfg.TicketWidth == 0 {
		cfg.TicketWidth = 32
	}

	for _, rate := range p.TaxRates {
		cfg.TaxRates = append(cfg.TaxRates, decimal.NewFromFloat(rate))
	}
	if p.PaymentTolerance != "" {
		// Validated in validate(); a parse failure here cannot happen.
		tolerance, _ := decimal.NewFromString(p.PaymentTolerance)
		cfg.PaymentTolerance = tolerance
	}

	return cfg
}
