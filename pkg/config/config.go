package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GridConfig 网格策略配置
type GridConfig struct {
	Spacing          float64 // 相邻网格层之间的乘法间距（比例），例如 0.0003 表示 0.03%
	LevelsPerSide    int     // 每侧（买/卖）的网格层数
	MaxActiveOrders  int     // 活跃订单总数上限（买+卖）
	OrderNotional    float64 // 单笔订单名义金额（USD），按当前价折算成基础数量
	Leverage         int     // 杠杆倍数（启动时设置一次）
	PlaceCooldownSec int     // 同一价位重新下单的冷却时间（秒）
	MaxOrderAgeSec   int     // 订单最大存活时间（秒），超过则被清理撤销
}

// ExchangeConfig 交易所接入配置
type ExchangeConfig struct {
	BaseURL      string // REST API 基础地址
	WsURL        string // WebSocket 地址
	AccountIndex int    // Lighter 账户索引
}

// TimingConfig 周期性任务配置
type TimingConfig struct {
	SyncIntervalSec    int // REST 对账同步间隔（秒）
	CleanupIntervalSec int // 陈旧订单清理间隔（秒）
	StaleAfterSec      int // WebSocket 静默多久视为失活（秒）
	CallTimeoutSec     int // 单次交易所调用超时（秒）
	ShutdownTimeoutSec int // 优雅关闭预算（秒）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config 应用配置
type Config struct {
	Symbol   string // 交易标的，例如 BTC-PERP
	DryRun   bool   // 纸交易模式：不发真实订单，本地模拟成交
	Grid     GridConfig
	Exchange ExchangeConfig
	Timing   TimingConfig
	Log      LogConfig
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	DryRun bool   `yaml:"dry_run" json:"dry_run"`
	Grid   struct {
		Spacing          float64 `yaml:"spacing" json:"spacing"`
		LevelsPerSide    int     `yaml:"levels_per_side" json:"levels_per_side"`
		MaxActiveOrders  int     `yaml:"max_active_orders" json:"max_active_orders"`
		OrderNotional    float64 `yaml:"order_notional" json:"order_notional"`
		Leverage         int     `yaml:"leverage" json:"leverage"`
		PlaceCooldownSec int     `yaml:"place_cooldown_sec" json:"place_cooldown_sec"`
		MaxOrderAgeSec   int     `yaml:"max_order_age_sec" json:"max_order_age_sec"`
	} `yaml:"grid" json:"grid"`
	Exchange struct {
		BaseURL      string `yaml:"base_url" json:"base_url"`
		WsURL        string `yaml:"ws_url" json:"ws_url"`
		AccountIndex int    `yaml:"account_index" json:"account_index"`
	} `yaml:"exchange" json:"exchange"`
	Timing struct {
		SyncIntervalSec    int `yaml:"sync_interval_sec" json:"sync_interval_sec"`
		CleanupIntervalSec int `yaml:"cleanup_interval_sec" json:"cleanup_interval_sec"`
		StaleAfterSec      int `yaml:"stale_after_sec" json:"stale_after_sec"`
		CallTimeoutSec     int `yaml:"call_timeout_sec" json:"call_timeout_sec"`
		ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	} `yaml:"timing" json:"timing"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
		Compress   *bool  `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置
// 优先级：配置文件 > 环境变量 > 默认值；配置文件可以不存在
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	config := &Config{
		Symbol: pickString(configFile != nil, safeString(configFile, func(cf *ConfigFile) string { return cf.Symbol }), getEnv("SYMBOL", "BTC-PERP")),
		DryRun: func() bool {
			if configFile != nil {
				return configFile.DryRun
			}
			return parseBoolEnv("DRY_RUN", false)
		}(),
		Grid: GridConfig{
			Spacing:          pickFloat(safeFloat(configFile, func(cf *ConfigFile) float64 { return cf.Grid.Spacing }), parseFloatEnv("GRID_SPACING", 0.0003)),
			LevelsPerSide:    pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Grid.LevelsPerSide }), parseIntEnv("GRID_LEVELS_PER_SIDE", 4)),
			MaxActiveOrders:  pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Grid.MaxActiveOrders }), parseIntEnv("MAX_ACTIVE_ORDERS", 8)),
			OrderNotional:    pickFloat(safeFloat(configFile, func(cf *ConfigFile) float64 { return cf.Grid.OrderNotional }), parseFloatEnv("ORDER_NOTIONAL", 20)),
			Leverage:         pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Grid.Leverage }), parseIntEnv("LEVERAGE", 3)),
			PlaceCooldownSec: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Grid.PlaceCooldownSec }), parseIntEnv("PLACE_COOLDOWN_SEC", 10)),
			MaxOrderAgeSec:   pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Grid.MaxOrderAgeSec }), parseIntEnv("MAX_ORDER_AGE_SEC", 1800)),
		},
		Exchange: ExchangeConfig{
			BaseURL:      pickString(configFile != nil, safeString(configFile, func(cf *ConfigFile) string { return cf.Exchange.BaseURL }), getEnv("LIGHTER_BASE_URL", "https://mainnet.zklighter.elliot.ai")),
			WsURL:        pickString(configFile != nil, safeString(configFile, func(cf *ConfigFile) string { return cf.Exchange.WsURL }), getEnv("LIGHTER_WS_URL", "wss://mainnet.zklighter.elliot.ai/stream")),
			AccountIndex: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Exchange.AccountIndex }), parseIntEnv("LIGHTER_ACCOUNT_INDEX", 0)),
		},
		Timing: TimingConfig{
			SyncIntervalSec:    pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Timing.SyncIntervalSec }), parseIntEnv("SYNC_INTERVAL_SEC", 10)),
			CleanupIntervalSec: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Timing.CleanupIntervalSec }), parseIntEnv("CLEANUP_INTERVAL_SEC", 60)),
			StaleAfterSec:      pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Timing.StaleAfterSec }), parseIntEnv("STALE_AFTER_SEC", 120)),
			CallTimeoutSec:     pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Timing.CallTimeoutSec }), parseIntEnv("CALL_TIMEOUT_SEC", 10)),
			ShutdownTimeoutSec: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Timing.ShutdownTimeoutSec }), parseIntEnv("SHUTDOWN_TIMEOUT_SEC", 30)),
		},
		Log: LogConfig{
			Level:      pickString(configFile != nil, safeString(configFile, func(cf *ConfigFile) string { return cf.Log.Level }), getEnv("LOG_LEVEL", "info")),
			File:       pickString(configFile != nil, safeString(configFile, func(cf *ConfigFile) string { return cf.Log.File }), getEnv("LOG_FILE", "logs/gridbot.log")),
			MaxSizeMB:  pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Log.MaxSizeMB }), 100),
			MaxBackups: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Log.MaxBackups }), 3),
			MaxAgeDays: pickInt(safeInt(configFile, func(cf *ConfigFile) int { return cf.Log.MaxAgeDays }), 7),
			Compress: func() bool {
				if configFile != nil && configFile.Log.Compress != nil {
					return *configFile.Log.Compress
				}
				return true
			}(),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL 未配置")
	}
	if c.Grid.Spacing <= 0 || c.Grid.Spacing >= 1 {
		return fmt.Errorf("GRID_SPACING 必须在 0 到 1 之间")
	}
	if c.Grid.LevelsPerSide <= 0 {
		return fmt.Errorf("GRID_LEVELS_PER_SIDE 必须大于 0")
	}
	if c.Grid.MaxActiveOrders <= 0 {
		return fmt.Errorf("MAX_ACTIVE_ORDERS 必须大于 0")
	}
	if c.Grid.OrderNotional <= 0 {
		return fmt.Errorf("ORDER_NOTIONAL 必须大于 0")
	}
	if c.Grid.Leverage <= 0 {
		return fmt.Errorf("LEVERAGE 必须大于 0")
	}
	if c.Timing.SyncIntervalSec <= 0 {
		return fmt.Errorf("SYNC_INTERVAL_SEC 必须大于 0")
	}
	if c.Timing.StaleAfterSec <= 0 {
		return fmt.Errorf("STALE_AFTER_SEC 必须大于 0")
	}
	if !c.DryRun && c.Exchange.BaseURL == "" {
		return fmt.Errorf("LIGHTER_BASE_URL 未配置")
	}
	return nil
}

// PlaceCooldown 返回下单冷却时长
func (c *Config) PlaceCooldown() time.Duration {
	return time.Duration(c.Grid.PlaceCooldownSec) * time.Second
}

// MaxOrderAge 返回订单最大存活时长
func (c *Config) MaxOrderAge() time.Duration {
	return time.Duration(c.Grid.MaxOrderAgeSec) * time.Second
}

// CallTimeout 返回单次交易所调用超时
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Timing.CallTimeoutSec) * time.Second
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// pickString 配置文件非空值优先，否则用环境变量/默认值
func pickString(hasConfig bool, configValue, fallback string) string {
	if hasConfig && configValue != "" {
		return configValue
	}
	return fallback
}

// pickInt 配置文件正值优先
func pickInt(configValue, fallback int) int {
	if configValue > 0 {
		return configValue
	}
	return fallback
}

// pickFloat 配置文件正值优先
func pickFloat(configValue, fallback float64) float64 {
	if configValue > 0 {
		return configValue
	}
	return fallback
}

func safeString(cf *ConfigFile, getter func(*ConfigFile) string) string {
	if cf == nil {
		return ""
	}
	return getter(cf)
}

func safeInt(cf *ConfigFile, getter func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func safeFloat(cf *ConfigFile, getter func(*ConfigFile) float64) float64 {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
