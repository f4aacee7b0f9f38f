// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printer-service/internal/model"
)

func validFiscal() PrinterConfig {
	return PrinterConfig{
		Name:     "cassa-1",
		Host:     "192.168.1.50",
		Port:     9100,
		Protocol: "FISCAL",
		TaxRates: []float64{0, 4, 5, 10, 22},
	}
}

func validTicket() PrinterConfig {
	return PrinterConfig{
		Name:        "cucina",
		Host:        "192.168.1.60",
		Port:        9100,
		Protocol:    "TICKET",
		TicketWidth: 32,
	}
}

func baseConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Health:  HealthConfig{CheckInterval: 30 * time.Second, CriticalThreshold: 3},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := baseConfig()
	cfg.Printers = []PrinterConfig{validFiscal(), validTicket()}
	require.NoError(t, validate(cfg))
}

func TestValidateRejectsBadHost(t *testing.T) {
	tests := []string{"", "not-a-host", "192.168.1", "fe80::1"}
	for _, host := range tests {
		cfg := baseConfig()
		p := validFiscal()
		p.Host = host
		cfg.Printers = []PrinterConfig{p}
		assert.Error(t, validate(cfg), "host %q", host)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := baseConfig()
	p := validFiscal()
	p.Port = 70000
	cfg.Printers = []PrinterConfig{p}
	require.Error(t, validate(cfg))
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	cfg := baseConfig()
	p := validFiscal()
	p.Protocol = "ZPL"
	cfg.Printers = []PrinterConfig{p}
	require.Error(t, validate(cfg))
}

func TestValidateRejectsFiscalWithoutTaxRates(t *testing.T) {
	cfg := baseConfig()
	p := validFiscal()
	p.TaxRates = nil
	cfg.Printers = []PrinterConfig{p}
	require.Error(t, validate(cfg))
}

func TestValidateRejectsBadTolerance(t *testing.T) {
	for _, tolerance := range []string{"abc", "-0.01"} {
		cfg := baseConfig()
		p := validFiscal()
		p.PaymentTolerance = tolerance
		cfg.Printers = []PrinterConfig{p}
		assert.Error(t, validate(cfg), "tolerance %q", tolerance)
	}
}

func TestValidateRejectsNarrowTicketWidth(t *testing.T) {
	for _, width := range []int{-1, 3, 7} {
		cfg := baseConfig()
		p := validTicket()
		p.TicketWidth = width
		cfg.Printers = []PrinterConfig{p}
		assert.Error(t, validate(cfg), "width %d", width)
	}

	// 0 means "use the default"; the minimum is accepted as-is.
	for _, width := range []int{0, 8} {
		cfg := baseConfig()
		p := validTicket()
		p.TicketWidth = width
		cfg.Printers = []PrinterConfig{p}
		assert.NoError(t, validate(cfg), "width %d", width)
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	cfg := baseConfig()
	first := validFiscal()
	second := validTicket()
	second.Name = first.Name
	cfg.Printers = []PrinterConfig{first, second}
	require.Error(t, validate(cfg))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := baseConfig()
	cfg.Logging.Level = "verbose"
	require.Error(t, validate(cfg))
}

func TestToDeviceConfigAppliesDefaults(t *testing.T) {
	p := validFiscal()
	p.Port = 0
	p.Timeout = 0
	cfg := p.ToDeviceConfig()

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, model.ProtocolFiscal, cfg.Protocol)
	assert.True(t, cfg.PaymentTolerance.IsZero())
	require.Len(t, cfg.TaxRates, 5)
	assert.True(t, cfg.HasTaxRate(decimal.NewFromInt(22)))
	assert.False(t, cfg.HasTaxRate(decimal.NewFromInt(7)))

	tp := validTicket()
	tp.Timeout = 0
	tp.TicketWidth = 0
	tcfg := tp.ToDeviceConfig()

	assert.Equal(t, 10*time.Second, tcfg.Timeout)
	assert.Equal(t, 32, tcfg.TicketWidth)
}

func TestToDeviceConfigParsesTolerance(t *testing.T) {
	p := validFiscal()
	p.PaymentTolerance = "0.05"
	cfg := p.ToDeviceConfig()

	assert.True(t, cfg.PaymentTolerance.Equal(decimal.RequireFromString("0.05")))
}

func TestToDeviceConfigIdentity(t *testing.T) {
	p := validFiscal()
	cfg := p.ToDeviceConfig()
	identity := cfg.Identity()

	assert.Equal(t, "192.168.1.50", identity.Host)
	assert.Equal(t, 9100, identity.Port)
	assert.Equal(t, model.ProtocolFiscal, identity.Protocol)
	assert.Equal(t, "FISCAL/192.168.1.50:9100", identity.String())
}
