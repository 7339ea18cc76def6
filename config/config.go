package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Log      LogConfig      `mapstructure:"log"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	HealthAddress  string `mapstructure:"health_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Driver       string         `mapstructure:"driver"`
	QuestionBank string         `mapstructure:"question_bank"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds the engine timings and limits.
type GameConfig struct {
	QueueMaxWait         time.Duration `mapstructure:"queue_max_wait"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	AdvanceDelay         time.Duration `mapstructure:"advance_delay"`
	ForfeitAfter         time.Duration `mapstructure:"forfeit_after"`
	RoomIdleTimeout      time.Duration `mapstructure:"room_idle_timeout"`
	InviteTTL            time.Duration `mapstructure:"invite_ttl"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	TieBreakerQuestions  int           `mapstructure:"tie_breaker_questions"`
	MaxTieBreakerRounds  int           `mapstructure:"max_tie_breaker_rounds"`
	MaxQuestionCount     int           `mapstructure:"max_question_count"`
	DefaultQuestionCount int           `mapstructure:"default_question_count"`
}

// Postgres reports whether the postgres backend is selected.
func (c *Config) Postgres() bool {
	return strings.EqualFold(c.Database.Driver, "postgres")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.health_address", ":9091")
	v.SetDefault("server.metrics_address", ":9100")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.question_bank", "questions.yaml")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "quizarena")

	v.SetDefault("redis.url", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "quizarena.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("game.queue_max_wait", 120*time.Second)
	v.SetDefault("game.sweep_interval", 30*time.Second)
	v.SetDefault("game.advance_delay", 2*time.Second)
	v.SetDefault("game.forfeit_after", 30*time.Second)
	v.SetDefault("game.room_idle_timeout", 15*time.Minute)
	v.SetDefault("game.invite_ttl", 60*time.Second)
	v.SetDefault("game.fetch_timeout", 5*time.Second)
	v.SetDefault("game.tie_breaker_questions", 5)
	v.SetDefault("game.max_tie_breaker_rounds", 0)
	v.SetDefault("game.max_question_count", 50)
	v.SetDefault("game.default_question_count", 5)
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig reads config.yaml from path, then applies QUIZARENA_* env overrides.
// A missing config file is not an error.
func LoadConfig(path string) (config *Config, err error) {
	return load(viper.GetViper(), path)
}

func load(v *viper.Viper, path string) (config *Config, err error) {
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return config, config.validate()
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "memory", "postgres":
	default:
		return errors.New("database.driver must be memory or postgres")
	}
	if c.Game.TieBreakerQuestions <= 0 {
		return errors.New("game.tie_breaker_questions must be positive")
	}
	if c.Game.MaxTieBreakerRounds < 0 {
		return errors.New("game.max_tie_breaker_rounds must not be negative")
	}
	if c.Game.MaxQuestionCount <= 0 {
		return errors.New("game.max_question_count must be positive")
	}
	return nil
}
