package store

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigValue is one opaque name/value pair of a stored configuration
// entry: bot parameters, per-market decimals or secrets.
type ConfigValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// BotConfig is a stored configuration entry keyed by logical name, e.g.
// "bot_ADA1" or "decimals_coinex". Values are an explicit mapping, read
// through typed accessors.
type BotConfig struct {
	Key    string        `gorm:"primaryKey;size:255"`
	Values []ConfigValue `gorm:"serializer:json"`
}

func (BotConfig) TableName() string { return "config" }

// GetString returns the named value as a string, empty when absent.
func (c *BotConfig) GetString(name string) string {
	if v, ok := c.lookup(name); ok {
		return cast.ToString(v)
	}
	return ""
}

// GetInt returns the named value as an int, zero when absent.
func (c *BotConfig) GetInt(name string) int {
	if v, ok := c.lookup(name); ok {
		return cast.ToInt(v)
	}
	return 0
}

// GetFloat returns the named value as a float64, zero when absent.
func (c *BotConfig) GetFloat(name string) float64 {
	if v, ok := c.lookup(name); ok {
		return cast.ToFloat64(v)
	}
	return 0
}

// Set adds or replaces the named value.
func (c *BotConfig) Set(name string, value any) {
	for i := range c.Values {
		if c.Values[i].Name == name {
			c.Values[i].Value = value
			return
		}
	}
	c.Values = append(c.Values, ConfigValue{Name: name, Value: value})
}

func (c *BotConfig) lookup(name string) (any, bool) {
	for _, v := range c.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}

// BotConfigRepository persists configuration entries. The table is shared
// across bots; keys carry the namespace.
type BotConfigRepository struct {
	db *gorm.DB
}

func NewBotConfigRepository(db *gorm.DB) *BotConfigRepository {
	return &BotConfigRepository{db: db}
}

// Get returns the entry for key, or an empty entry when none exists.
func (r *BotConfigRepository) Get(key string) (*BotConfig, error) {
	var config BotConfig
	err := r.db.Where("key = ?", key).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BotConfig{Key: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return &config, nil
}

// Save upserts the entry.
func (r *BotConfigRepository) Save(config *BotConfig) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(config).Error
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", config.Key, err)
	}
	return nil
}

// AddBot stores or extends a bot's parameter entry under "bot_<label>".
func (r *BotConfigRepository) AddBot(label string, values map[string]any) error {
	config, err := r.Get("bot_" + label)
	if err != nil {
		return err
	}
	for name, value := range values {
		config.Set(name, value)
	}
	return r.Save(config)
}

// AddDecimals stores per-market precision for an exchange under
// "decimals_<exchange>". Each value is a {price, amount} mapping keyed by
// market.
func (r *BotConfigRepository) AddDecimals(exchange string, pairs map[string]map[string]int) error {
	config, err := r.Get("decimals_" + exchange)
	if err != nil {
		return err
	}
	for market, precision := range pairs {
		config.Set(market, precision)
	}
	return r.Save(config)
}
