package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env
// y opcionalmente archivo).
type Config struct {
	App   AppConfig
	SIFEN SIFENConfig
	Cache CacheConfig
	Redis RedisConfig
	DB    DBConfig
	HTTP  HTTPConfig
	JWT   JWTConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// SIFENConfig configuración del WS SIFEN (Paraguay).
type SIFENConfig struct {
	// AppEnv "dev" simula respuestas sin red; "test" usa el ambiente de
	// habilitación sifen-test.set.gov.py; "prod" el de producción.
	AppEnv         string
	TimeoutSeconds int
	// BaseURL permite apuntar a un stub del WS en tests de integración;
	// vacío = URL oficial según AppEnv.
	BaseURL string
}

// CacheConfig configuración del cache persistente de configuración del emisor.
type CacheConfig struct {
	// Backend "redis", "postgres" o "memoria".
	Backend string
	TTLDays int // vigencia de la entrada; 90 días por defecto
}

// TTL devuelve la vigencia como duración.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// RedisConfig conexión a Redis (backend de cache recomendado en despliegues
// con más de una instancia).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DBConfig conexión a PostgreSQL (backend de cache alternativo).
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN devuelve el connection string para PostgreSQL.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// HTTPConfig configuración del servidor HTTP (modo servir).
type HTTPConfig struct {
	Host        string
	Port        int
	MetricsPort int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddr dirección del listener de /metrics.
func (c HTTPConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// JWTConfig configuración de los tokens de la API HTTP.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde
// archivo .env). Las env vars tienen prioridad. Nombres esperados: APP_ENV,
// SIFEN_ENV, CACHE_BACKEND, REDIS_ADDR, DB_HOST, JWT_SECRET, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "facturador-pro"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		SIFEN: SIFENConfig{
			AppEnv:         getString(v, "SIFEN_ENV", "dev"),
			TimeoutSeconds: getInt(v, "SIFEN_TIMEOUT_SECONDS", 60),
			BaseURL:        getString(v, "SIFEN_BASE_URL", ""),
		},
		Cache: CacheConfig{
			Backend: getString(v, "CACHE_BACKEND", "memoria"),
			TTLDays: getInt(v, "CACHE_TTL_DAYS", 90),
		},
		Redis: RedisConfig{
			Addr:     getString(v, "REDIS_ADDR", "localhost:6379"),
			Password: getString(v, "REDIS_PASSWORD", ""),
			DB:       getInt(v, "REDIS_DB", 0),
		},
		DB: DBConfig{
			Host:     getString(v, "DB_HOST", "localhost"),
			Port:     getInt(v, "DB_PORT", 5432),
			User:     getString(v, "DB_USER", "postgres"),
			Password: getString(v, "DB_PASSWORD", ""),
			DBName:   getString(v, "DB_NAME", "facturador_pro"),
			SSLMode:  getString(v, "DB_SSLMODE", "disable"),
		},
		HTTP: HTTPConfig{
			Host:        getString(v, "HTTP_HOST", "0.0.0.0"),
			Port:        getInt(v, "HTTP_PORT", 8080),
			MetricsPort: getInt(v, "METRICS_PORT", 9090),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "facturador-pro"),
		},
	}

	if cfg.Cache.TTLDays <= 0 {
		return nil, fmt.Errorf("config: CACHE_TTL_DAYS debe ser positivo, se recibió %d", cfg.Cache.TTLDays)
	}
	switch cfg.SIFEN.AppEnv {
	case "dev", "test", "prod":
	default:
		return nil, fmt.Errorf("config: SIFEN_ENV desconocido: %q (usar dev|test|prod)", cfg.SIFEN.AppEnv)
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
