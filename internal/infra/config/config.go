package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Supabase  SupabaseSettings  `mapstructure:"supabase"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Session   SessionSettings   `mapstructure:"session"`
	Cookie    CookieSettings    `mapstructure:"cookie"`
	Line      LineSettings      `mapstructure:"line"`
	OAuth     OAuthSettings     `mapstructure:"oauth"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Frontend  FrontendSettings  `mapstructure:"frontend"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SupabaseSettings configures the upstream identity provider.
type SupabaseSettings struct {
	URL            string        `mapstructure:"url"`
	AnonKey        string        `mapstructure:"anon_key"`
	ServiceRoleKey string        `mapstructure:"service_role_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SessionSettings configures server-side session records in Redis.
type SessionSettings struct {
	TTL            time.Duration `mapstructure:"ttl"`
	PermissionTTL  time.Duration `mapstructure:"permission_ttl"`
	UserInfoTTL    time.Duration `mapstructure:"user_info_ttl"`
	MaxPerUser     int           `mapstructure:"max_per_user"`
	TouchThrottle  time.Duration `mapstructure:"touch_throttle"`
	StateTTL       time.Duration `mapstructure:"state_ttl"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	IndexKeyPrefix string        `mapstructure:"index_key_prefix"`
}

// CookieSettings controls the three auth cookies set on login.
type CookieSettings struct {
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// LineChannelSettings holds the credentials for one role-scoped login channel.
type LineChannelSettings struct {
	ChannelID     string `mapstructure:"channel_id"`
	ChannelSecret string `mapstructure:"channel_secret"`
	RedirectURI   string `mapstructure:"redirect_uri"`
}

type LineSettings struct {
	Student  LineChannelSettings `mapstructure:"student"`
	Teacher  LineChannelSettings `mapstructure:"teacher"`
	Employee LineChannelSettings `mapstructure:"employee"`
	Timeout  time.Duration       `mapstructure:"timeout"`
}

type OAuthSettings struct {
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts      int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts       int           `mapstructure:"refresh_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// FrontendSettings holds redirect targets for the OAuth callback.
type FrontendSettings struct {
	BaseURL         string `mapstructure:"base_url"`
	BindSuccessPath string `mapstructure:"bind_success_path"`
	BindErrorPath   string `mapstructure:"bind_error_path"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("EDU")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"supabase.url",
		"supabase.anon_key",
		"supabase.service_role_key",
		"supabase.timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"session.ttl",
		"session.permission_ttl",
		"session.user_info_ttl",
		"session.max_per_user",
		"session.touch_throttle",
		"session.key_prefix",
		"session.index_key_prefix",
		"cookie.domain",
		"cookie.secure",
		"cookie.same_site",
		"line.student.channel_id",
		"line.student.channel_secret",
		"line.student.redirect_uri",
		"line.teacher.channel_id",
		"line.teacher.channel_secret",
		"line.teacher.redirect_uri",
		"line.employee.channel_id",
		"line.employee.channel_secret",
		"line.employee.redirect_uri",
		"line.timeout",
		"oauth.state_ttl",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"telemetry.metrics_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"frontend.base_url",
		"frontend.bind_success_path",
		"frontend.bind_error_path",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if cfg.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required")
	}
	if cfg.Supabase.ServiceRoleKey == "" {
		return fmt.Errorf("supabase.service_role_key is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "edu-auth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("supabase.timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "edu")
	v.SetDefault("postgres.password", "edu_password")
	v.SetDefault("postgres.database", "edu")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "edu-auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.issuer", "edu-auth-service")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.permission_ttl", "5m")
	v.SetDefault("session.user_info_ttl", "60s")
	v.SetDefault("session.max_per_user", 10)
	v.SetDefault("session.touch_throttle", "60s")
	v.SetDefault("session.key_prefix", "session:")
	v.SetDefault("session.index_key_prefix", "user_sessions:")

	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.same_site", "lax")

	v.SetDefault("line.timeout", "10s")
	v.SetDefault("oauth.state_ttl", "10m")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "edu-auth-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("frontend.base_url", "http://localhost:3000")
	v.SetDefault("frontend.bind_success_path", "/settings/notifications")
	v.SetDefault("frontend.bind_error_path", "/settings/notifications/error")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// ChannelSettings returns the LINE credentials for the given channel name.
func (l LineSettings) ChannelSettings(channel string) (LineChannelSettings, bool) {
	var cs LineChannelSettings
	switch channel {
	case "student":
		cs = l.Student
	case "teacher":
		cs = l.Teacher
	case "employee":
		cs = l.Employee
	default:
		return cs, false
	}
	return cs, cs.ChannelID != "" && cs.ChannelSecret != ""
}
