package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Хранилища результатов
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// envPrefix — префикс переменных окружения.
const envPrefix = "QUIZRESULTS_"

// Config содержит настройки сервиса. После загрузки только читается.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	Storage     string `yaml:"storage"`
	PostgresDSN string `yaml:"postgres_dsn"`

	Redis     Redis     `yaml:"redis"`
	Signature Signature `yaml:"signature"`

	LockTTL        time.Duration `yaml:"lock_ttl"`
	ThrottleWindow time.Duration `yaml:"throttle_window"`
	LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
	TopUsersTTL    time.Duration `yaml:"topusers_ttl"`
	RefreshPeriod  time.Duration `yaml:"refresh_period"`
	TopLimit       int           `yaml:"top_limit"`

	ErrorLog    string   `yaml:"error_log"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Redis содержит параметры подключения к Redis.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Signature содержит параметры проверки подписи. Первый секрет текущий,
// остальные принимаются на время ротации.
type Signature struct {
	Algorithm string   `yaml:"algorithm"`
	Secrets   []string `yaml:"secrets"`
}

// ErrInvalid оборачивает все ошибки Validate.
var ErrInvalid = errors.New("invalid config")

// Default возвращает настройки по умолчанию. Секрета по умолчанию нет.
func Default() *Config {
	return &Config{
		ListenAddr: ":3000",
		Storage:    StoragePostgres,
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Signature: Signature{
			Algorithm: string(auth.AlgorithmMD5),
		},
		LockTTL:        30 * time.Second,
		ThrottleWindow: 15 * time.Second,
		LeaderboardTTL: 15 * time.Second,
		TopUsersTTL:    60 * time.Second,
		RefreshPeriod:  15 * time.Second,
		TopLimit:       10,
		ErrorLog:       "error.log",
		LogLevel:       "info",
		LogFormat:      "text",
		CORSOrigins:    []string{"*"},
	}
}

// Load собирает настройки: значения по умолчанию, затем YAML-файл (--config),
// затем переменные окружения QUIZRESULTS_*, затем флаги.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	cfg := Default()

	path, err := configPath(args, lookupEnv)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err = cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err = cfg.loadEnv(lookupEnv); err != nil {
		return nil, err
	}

	fs := cfg.flagSet()
	if err = fs.Parse(args); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath достаёт --config до полного разбора флагов.
func configPath(args []string, lookupEnv func(string) (string, bool)) (string, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}

	path, _ := lookupEnv(envPrefix + "CONFIG")
	fs.StringVar(&path, "config", path, "")

	if err := fs.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return "", err
	}

	return path, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv(lookupEnv func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN_ADDR":         &c.ListenAddr,
		"STORAGE":             &c.Storage,
		"POSTGRES_DSN":        &c.PostgresDSN,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
		"SIGNATURE_ALGORITHM": &c.Signature.Algorithm,
		"ERROR_LOG":           &c.ErrorLog,
		"LOG_LEVEL":           &c.LogLevel,
		"LOG_FORMAT":          &c.LogFormat,
	}
	for name, dst := range strs {
		if value, ok := lookupEnv(envPrefix + name); ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"LOCK_TTL":        &c.LockTTL,
		"THROTTLE_WINDOW": &c.ThrottleWindow,
		"LEADERBOARD_TTL": &c.LeaderboardTTL,
		"TOPUSERS_TTL":    &c.TopUsersTTL,
		"REFRESH_PERIOD":  &c.RefreshPeriod,
	}
	for name, dst := range durations {
		value, ok := lookupEnv(envPrefix + name)
		if !ok {
			continue
		}

		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"REDIS_DB":  &c.Redis.DB,
		"TOP_LIMIT": &c.TopLimit,
	}
	for name, dst := range ints {
		value, ok := lookupEnv(envPrefix + name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	lists := map[string]*[]string{
		"SIGNING_SECRETS": &c.Signature.Secrets,
		"CORS_ORIGINS":    &c.CORSOrigins,
	}
	for name, dst := range lists {
		if value, ok := lookupEnv(envPrefix + name); ok {
			*dst = splitList(value)
		}
	}

	return nil
}

func (c *Config) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("quizresults", pflag.ContinueOnError)

	fs.String("config", "", "path to YAML config file")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "HTTP listen address")
	fs.StringVar(&c.Storage, "storage", c.Storage, "result storage: postgres or memory")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "PostgreSQL connection string")
	fs.StringVar(&c.Redis.Addr, "redis-addr", c.Redis.Addr, "Redis address for cache and locks")
	fs.StringVar(&c.Redis.Password, "redis-password", c.Redis.Password, "Redis password")
	fs.IntVar(&c.Redis.DB, "redis-db", c.Redis.DB, "Redis database number")
	fs.StringVar(&c.Signature.Algorithm, "signature-algorithm", c.Signature.Algorithm, "md5 or hmac-sha256")
	fs.StringSliceVar(&c.Signature.Secrets, "signing-secret", c.Signature.Secrets, "signing secret; repeat to accept previous secrets during rotation")
	fs.DurationVar(&c.LockTTL, "lock-ttl", c.LockTTL, "submission lock expiry")
	fs.DurationVar(&c.ThrottleWindow, "throttle-window", c.ThrottleWindow, "minimum interval between accepted submissions of one test")
	fs.DurationVar(&c.LeaderboardTTL, "leaderboard-ttl", c.LeaderboardTTL, "leaderboard cache TTL")
	fs.DurationVar(&c.TopUsersTTL, "topusers-ttl", c.TopUsersTTL, "top users cache TTL")
	fs.DurationVar(&c.RefreshPeriod, "refresh-period", c.RefreshPeriod, "top users refresh period")
	fs.IntVar(&c.TopLimit, "top-limit", c.TopLimit, "size of leaderboard and top users")
	fs.StringVar(&c.ErrorLog, "error-log", c.ErrorLog, "error log file, empty to disable")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origin", c.CORSOrigins, "allowed CORS origins")

	return fs
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Signature.Secrets) == 0 {
		errs = append(errs, errors.New("signing secret is required"))
	}
	for _, secret := range c.Signature.Secrets {
		if secret == "" {
			errs = append(errs, errors.New("signing secret must not be empty"))
			break
		}
	}

	switch auth.Algorithm(c.Signature.Algorithm) {
	case auth.AlgorithmMD5, auth.AlgorithmHMACSHA256:
	default:
		errs = append(errs, fmt.Errorf("unknown signature algorithm %q", c.Signature.Algorithm))
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required"))
		}
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis address is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	for name, d := range map[string]time.Duration{
		"lock ttl":        c.LockTTL,
		"throttle window": c.ThrottleWindow,
		"leaderboard ttl": c.LeaderboardTTL,
		"topusers ttl":    c.TopUsersTTL,
		"refresh period":  c.RefreshPeriod,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	// Иначе между истечением и следующим обновлением появляется окно промахов.
	if c.TopUsersTTL <= c.RefreshPeriod {
		errs = append(errs, errors.New("topusers ttl must exceed refresh period"))
	}

	if c.TopLimit <= 0 {
		errs = append(errs, errors.New("top limit must be positive"))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")

	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}

	return list
}
