package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DB       *DBconfig        `yaml:"db"`
	RabbitMq *RabbitMqconfig  `yaml:"rabbitmq"`
	Redis    *Redisconfig     `yaml:"redis"`
	WS       *WebSocketconfig `yaml:"websocket"`
	Srv      *Serviceconfig   `yaml:"service"`
	App      *Appconfig       `yaml:"app"`
	Rider    *Riderconfig     `yaml:"rider"`
	Log      *Loggerconfig    `yaml:"log"`
}

type DBconfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	MaxRetries int    `yaml:"max_retries"`
}

type RabbitMqconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// Redisconfig with an empty Addr disables the membership cache.
type Redisconfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type WebSocketconfig struct {
	AuthTimeout      time.Duration `yaml:"auth_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	WriteWait        time.Duration `yaml:"write_wait"`
	ReadLimit        int64         `yaml:"read_limit"`
	SendQueue        int           `yaml:"send_queue"`
	RatePerSecond    float64       `yaml:"rate_per_second"`
	RateBurst        int           `yaml:"rate_burst"`
	RebroadcastEvery time.Duration `yaml:"rebroadcast_every"`
}

type Serviceconfig struct {
	GroupServicePort string `yaml:"group_service"`
	MaxGroupMembers  int    `yaml:"max_group_members"`
}

type Appconfig struct {
	PublicJwtSecret string `yaml:"public_jwt_secret"`
}

type Riderconfig struct {
	ServerURL        string        `yaml:"server_url"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PendingChatTTL   time.Duration `yaml:"pending_chat_ttl"`
	ReconnectMaxTime time.Duration `yaml:"reconnect_max_time"`
}

type Loggerconfig struct {
	Level string `yaml:"level"`
}

// New reads the configuration from the environment, falling back to defaults.
func New() (*Config, error) {
	cnf := defaults()
	if err := applyEnv(cnf); err != nil {
		return nil, err
	}
	return cnf, nil
}

// NewFromYAML reads the file at path and lets the environment override it.
func NewFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cnf := defaults()
	if err := yaml.Unmarshal(data, cnf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(cnf); err != nil {
		return nil, err
	}
	return cnf, nil
}

func defaults() *Config {
	return &Config{
		DB: &DBconfig{
			Host:       "localhost",
			Port:       5432,
			User:       "grouperide_user",
			Password:   "grouperide_pass",
			Database:   "grouperide_db",
			MaxRetries: 5,
		},
		RabbitMq: &RabbitMqconfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
		},
		Redis: &Redisconfig{
			Prefix: "groupride",
			TTL:    5 * time.Minute,
		},
		WS: &WebSocketconfig{
			AuthTimeout:      5 * time.Second,
			PingInterval:     30 * time.Second,
			PongWait:         60 * time.Second,
			WriteWait:        10 * time.Second,
			ReadLimit:        8 * 1024,
			SendQueue:        256,
			RatePerSecond:    20,
			RateBurst:        40,
			RebroadcastEvery: 10 * time.Second,
		},
		Srv: &Serviceconfig{
			GroupServicePort: "3000",
			MaxGroupMembers:  50,
		},
		App: &Appconfig{},
		Rider: &Riderconfig{
			ServerURL:        "http://localhost:3000",
			PollInterval:     3 * time.Second,
			PendingChatTTL:   15 * time.Second,
			ReconnectMaxTime: 5 * time.Minute,
		},
		Log: &Loggerconfig{
			Level: "INFO",
		},
	}
}

// applyEnv overrides cnf with every variable that is set. Unset variables keep
// the current value.
func applyEnv(cnf *Config) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	getEnv := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	getEnvInt := func(key string, dst *int) {
		valStr := os.Getenv(key)
		if valStr == "" {
			return
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			keep(fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = val
	}

	getEnvFloat := func(key string, dst *float64) {
		valStr := os.Getenv(key)
		if valStr == "" {
			return
		}
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			keep(fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = val
	}

	getEnvDuration := func(key string, dst *time.Duration) {
		valStr := os.Getenv(key)
		if valStr == "" {
			return
		}
		val, err := time.ParseDuration(valStr)
		if err != nil {
			keep(fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = val
	}

	getEnv("DB_HOST", &cnf.DB.Host)
	getEnvInt("DB_PORT", &cnf.DB.Port)
	getEnv("DB_USER", &cnf.DB.User)
	getEnv("DB_PASSWORD", &cnf.DB.Password)
	getEnv("DB_NAME", &cnf.DB.Database)
	getEnvInt("DB_MAX_RETRIES", &cnf.DB.MaxRetries)

	getEnv("RABBITMQ_HOST", &cnf.RabbitMq.Host)
	getEnvInt("RABBITMQ_PORT", &cnf.RabbitMq.Port)
	getEnv("RABBITMQ_USER", &cnf.RabbitMq.User)
	getEnv("RABBITMQ_PASSWORD", &cnf.RabbitMq.Password)
	getEnv("RABBITMQ_VHOST", &cnf.RabbitMq.VHost)

	getEnv("REDIS_ADDR", &cnf.Redis.Addr)
	getEnv("REDIS_PASSWORD", &cnf.Redis.Password)
	getEnvInt("REDIS_DB", &cnf.Redis.DB)
	getEnv("REDIS_PREFIX", &cnf.Redis.Prefix)
	getEnvDuration("REDIS_TTL", &cnf.Redis.TTL)

	getEnvDuration("WS_AUTH_TIMEOUT", &cnf.WS.AuthTimeout)
	getEnvDuration("WS_PING_INTERVAL", &cnf.WS.PingInterval)
	getEnvDuration("WS_PONG_WAIT", &cnf.WS.PongWait)
	getEnvDuration("WS_WRITE_WAIT", &cnf.WS.WriteWait)
	getEnvInt("WS_SEND_QUEUE", &cnf.WS.SendQueue)
	getEnvFloat("WS_RATE_PER_SECOND", &cnf.WS.RatePerSecond)
	getEnvInt("WS_RATE_BURST", &cnf.WS.RateBurst)
	getEnvDuration("WS_REBROADCAST_EVERY", &cnf.WS.RebroadcastEvery)

	getEnv("GROUP_SERVICE_PORT", &cnf.Srv.GroupServicePort)
	getEnvInt("GROUP_MAX_MEMBERS", &cnf.Srv.MaxGroupMembers)
	getEnv("JWT_SECRET", &cnf.App.PublicJwtSecret)

	getEnv("RIDER_SERVER_URL", &cnf.Rider.ServerURL)
	getEnvDuration("RIDER_POLL_INTERVAL", &cnf.Rider.PollInterval)
	getEnvDuration("RIDER_PENDING_CHAT_TTL", &cnf.Rider.PendingChatTTL)
	getEnvDuration("RIDER_RECONNECT_MAX_TIME", &cnf.Rider.ReconnectMaxTime)

	getEnv("LOG_LEVEL", &cnf.Log.Level)

	return firstErr
}

// DSN builds the PostgreSQL connection string.
func (c *DBconfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// URL builds the AMQP connection string.
func (c *RabbitMqconfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}
