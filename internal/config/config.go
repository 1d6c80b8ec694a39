package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"coinex-trade-bot-go/internal/money"
)

// Config holds all configuration for one bot instance. It is loaded once at
// startup and immutable afterwards.
type Config struct {
	Label            string           `mapstructure:"label"`
	Exchange         string           `mapstructure:"exchange"`
	Pair             string           `mapstructure:"pair"`
	MinBuyAmountUSDT float64          `mapstructure:"min_buy_amount_usdt"`
	Decimals         ExchangeDecimals `mapstructure:"-"`
	Client           ClientCredentials
	Logger           Logger   `mapstructure:"logger"`
	Database         Database `mapstructure:"database"`
	Trading          Trading  `mapstructure:"trading"`
}

// ClientCredentials are the exchange API credentials, resolved from the
// environment rather than the config file.
type ClientCredentials struct {
	Key    string
	Secret string
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the local store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the tunables of the trading loop.
type Trading struct {
	TickInterval     int     `mapstructure:"tick_interval"`
	ReserveUSDT      float64 `mapstructure:"reserve_usdt"`
	ProfitPercent    float64 `mapstructure:"profit_percent"`
	JoinDistancePct  float64 `mapstructure:"join_distance_percent"`
	ExecutedPageSize int     `mapstructure:"executed_page_size"`
	RateLimit        float64 `mapstructure:"rate_limit"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
}

// MarketPrecision is the decimal-place count for one market's price and
// amount fields.
type MarketPrecision struct {
	Price  int `mapstructure:"price"`
	Amount int `mapstructure:"amount"`
}

// ExchangeDecimals maps market (pair string without separator) to its
// precision, for one exchange.
type ExchangeDecimals struct {
	Pairs map[string]MarketPrecision `mapstructure:"pairs"`
}

// MarketDecimalsUndefinedError is returned when a market or exchange has no
// entry in the decimals table. This is a configuration error, fatal at
// startup.
type MarketDecimalsUndefinedError struct {
	Exchange string
	Market   string
}

func (e *MarketDecimalsUndefinedError) Error() string {
	if e.Market == "" {
		return fmt.Sprintf("exchange %s not in decimals table", e.Exchange)
	}
	return fmt.Sprintf("market %s not in decimals table for exchange %s", e.Market, e.Exchange)
}

// Market returns the pair without separator, e.g. "ADA/USDT" -> "ADAUSDT".
func (c *Config) Market() string {
	return strings.ToUpper(strings.ReplaceAll(c.Pair, "/", ""))
}

// CurrencyFrom is the base leg of the pair, e.g. "ADA" of "ADA/USDT".
func (c *Config) CurrencyFrom() string {
	from, _, _ := strings.Cut(c.Pair, "/")
	return from
}

// CurrencyTo is the quote leg of the pair, e.g. "USDT" of "ADA/USDT".
func (c *Config) CurrencyTo() string {
	_, to, _ := strings.Cut(c.Pair, "/")
	return to
}

// Currencies returns every currency the bot tracks balances for: both pair
// legs plus the basic quote currencies.
func (c *Config) Currencies() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, ccy := range []string{c.CurrencyFrom(), c.CurrencyTo(), "BTC", "USDT", "USDC"} {
		if _, ok := seen[ccy]; ok {
			continue
		}
		seen[ccy] = struct{}{}
		out = append(out, ccy)
	}
	return out
}

func (c *Config) precision() (MarketPrecision, error) {
	p, ok := c.Decimals.Pairs[c.Market()]
	if !ok {
		return MarketPrecision{}, &MarketDecimalsUndefinedError{Exchange: c.Exchange, Market: c.Market()}
	}
	return p, nil
}

// RoundPrice rounds a price at the market's configured price precision.
func (c *Config) RoundPrice(price decimal.Decimal) (decimal.Decimal, error) {
	p, err := c.precision()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return money.Round(price, p.Price)
}

// RoundAmount rounds an amount at the market's configured amount precision.
func (c *Config) RoundAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	p, err := c.precision()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return money.Round(amount, p.Amount)
}

// RoundAmountByCurrency rounds an amount denominated in a currency that is
// not tied to the bot's market.
func (c *Config) RoundAmountByCurrency(amount decimal.Decimal, currency string) decimal.Decimal {
	return money.RoundByCurrency(amount, currency)
}

// MinBuyAmount converts the configured minimum buy amount in USDT to
// base-currency units at the given price.
func (c *Config) MinBuyAmount(price decimal.Decimal) (decimal.Decimal, error) {
	return c.RoundAmount(decimal.NewFromFloat(c.MinBuyAmountUSDT).Div(price))
}

// ReserveUSDT is the standing reserve ("rinconcito") in USDT the bot must
// never spend below.
func (c *Config) ReserveUSDT() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.ReserveUSDT)
}

// LoadConfig reads configuration from file or environment variables. The
// decimals table in the file covers every exchange; only the section for the
// configured exchange is retained. API credentials are resolved from the
// environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("trading.tick_interval", 5)
	v.SetDefault("trading.executed_page_size", 1000)
	v.SetDefault("trading.profit_percent", 1.0)
	v.SetDefault("trading.join_distance_percent", 0.5)
	v.SetDefault("trading.rate_limit", 10)
	v.SetDefault("trading.rate_limit_burst", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	decimals := map[string]ExchangeDecimals{}
	if err := v.UnmarshalKey("decimals", &decimals); err != nil {
		return cfg, err
	}
	exchangeDecimals, ok := decimals[cfg.Exchange]
	if !ok {
		return cfg, &MarketDecimalsUndefinedError{Exchange: cfg.Exchange}
	}
	// Viper lowercases map keys; markets are upper-case by convention.
	cfg.Decimals = ExchangeDecimals{Pairs: map[string]MarketPrecision{}}
	for market, precision := range exchangeDecimals.Pairs {
		cfg.Decimals.Pairs[strings.ToUpper(market)] = precision
	}

	creds, err := credentialsFromEnv(cfg.Exchange, cfg.Label)
	if err != nil {
		return cfg, err
	}
	cfg.Client = creds

	return cfg, nil
}

// credentialsFromEnv resolves the API key pair from
// P_<EXCHANGE>_<LABEL>_V2_ACCESS_KEY / ..._SECRET_KEY.
func credentialsFromEnv(exchange, label string) (ClientCredentials, error) {
	prefix := fmt.Sprintf("P_%s_%s_V2", strings.ToUpper(exchange), strings.ToUpper(label))

	key, ok := os.LookupEnv(prefix + "_ACCESS_KEY")
	if !ok {
		return ClientCredentials{}, fmt.Errorf("environment access_key variable for %s and %s not found", exchange, label)
	}
	secret, ok := os.LookupEnv(prefix + "_SECRET_KEY")
	if !ok {
		return ClientCredentials{}, fmt.Errorf("environment secret_key variable for %s and %s not found", exchange, label)
	}
	return ClientCredentials{Key: key, Secret: secret}, nil
}
