package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string
	DBMaxConns int

	RunMigrations bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JobEventsChannel string
	FeedKeepalive    time.Duration

	// Upper bound a transition waits on a job row lock before giving up.
	ArbiterLockTimeout time.Duration

	// Emails that receive the admin role when their profile is first created.
	AdminEmails []string

	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()
}

// FromEnv builds a Config from the process environment without touching .env files.
func FromEnv() *Config {
	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		JWTKey:             []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:             time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "user"),
		DBPassword:         getEnv("DB_PASSWORD", "password"),
		DBName:             getEnv("DB_NAME", "guideboard"),
		DBSslMode:          getEnv("DB_SSLMODE", "disable"),
		DBMaxConns:         getEnvAsInt("DB_MAX_CONNS", 25),
		RunMigrations:      getEnvAsBool("RUN_MIGRATIONS", true),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		JobEventsChannel:   getEnv("JOB_EVENTS_CHANNEL", "guideboard:job_events"),
		FeedKeepalive:      time.Duration(getEnvAsInt("FEED_KEEPALIVE_SECONDS", 25)) * time.Second,
		ArbiterLockTimeout: time.Duration(getEnvAsInt("ARBITER_LOCK_TIMEOUT_MS", 5000)) * time.Millisecond,
		AdminEmails:        getEnvAsList("ADMIN_EMAILS"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}

	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode

	return cfg
}

// IsAdminEmail reports whether email is on the ADMIN_EMAILS bootstrap list.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
