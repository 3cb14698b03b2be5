package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DBUrl         string
	JWTSecret     string
	AllowedOrigin string
	// DB Config
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration
	DBAutoMigrate     bool
	// R2 Storage (delivery proofs)
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string
	MaxUploadSizeMB   int64
	R2UploadTimeout   time.Duration
	// Cache
	CacheFeeRulesTTL time.Duration
	// Messaging
	KafkaBrokers     []string
	KafkaTopicPrefix string
	// Sweeper
	SweepInterval  time.Duration
	SweepBatchSize int
	// COD policy
	COD CODPolicy
}

// CODPolicy holds the business thresholds and retry budgets for COD handling.
type CODPolicy struct {
	HighValueThreshold             decimal.Decimal
	IDVerificationThreshold        decimal.Decimal
	MaxVerificationAttempts        int
	MaxVerificationAttemptsHighVal int
	MaxDeliveryAttempts            int
	MaxOrderAmount                 decimal.Decimal // zero means no ceiling
	RequireFeeRule                 bool
	VerificationRetryInterval      time.Duration
	RedeliveryBusinessDays         int
	DispatchHour                   int
	Location                       *time.Location
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: .env for local dev, system env vars otherwise
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DBUrl:         getEnv("DB_DSN", ""),
		JWTSecret:     getEnv("JWT_SECRET", "default_secret_CHANGE_ME"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),

		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 20),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 2),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),
		DBAutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", false),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		MaxUploadSizeMB:   getInt64Env("MAX_UPLOAD_SIZE_MB", 10),
		R2UploadTimeout:   getDurationEnv("R2_UPLOAD_TIMEOUT", 30*time.Second),

		CacheFeeRulesTTL: getDurationEnv("CACHE_FEE_RULES_TTL", 5*time.Minute),

		KafkaBrokers:     getListEnv("KAFKA_BROKERS"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),

		SweepInterval:  getDurationEnv("SWEEP_INTERVAL", 0),
		SweepBatchSize: getIntEnv("SWEEP_BATCH_SIZE", 100),

		COD: CODPolicy{
			HighValueThreshold:             getDecimalEnv("COD_HIGH_VALUE_THRESHOLD", decimal.NewFromInt(25000)),
			IDVerificationThreshold:        getDecimalEnv("COD_ID_VERIFICATION_THRESHOLD", decimal.NewFromInt(10000)),
			MaxVerificationAttempts:        getIntEnv("COD_MAX_VERIFICATION_ATTEMPTS", 3),
			MaxVerificationAttemptsHighVal: getIntEnv("COD_MAX_VERIFICATION_ATTEMPTS_HIGH_VALUE", 5),
			MaxDeliveryAttempts:            getIntEnv("COD_MAX_DELIVERY_ATTEMPTS", 3),
			MaxOrderAmount:                 getDecimalEnv("COD_MAX_ORDER_AMOUNT", decimal.Zero),
			RequireFeeRule:                 getBoolEnv("COD_REQUIRE_FEE_RULE", true),
			VerificationRetryInterval:      getDurationEnv("COD_VERIFICATION_RETRY_INTERVAL", 2*time.Hour),
			RedeliveryBusinessDays:         getIntEnv("COD_REDELIVERY_BUSINESS_DAYS", 1),
			DispatchHour:                   getIntEnv("COD_DISPATCH_HOUR", 9),
			Location:                       getLocationEnv("COD_TIMEZONE", "Asia/Colombo"),
		},
	}

	cfg.Validate()
	return cfg
}

func (c *Config) Validate() {
	if c.DBUrl == "" {
		log.Fatal("CRITICAL: DB_DSN environment variable is required")
	}
	if c.JWTSecret == "default_secret_CHANGE_ME" {
		log.Println("WARNING: Using default JWT secret. Setting up for failure in production.")
	}
	if err := c.COD.Validate(); err != nil {
		log.Fatalf("CRITICAL: invalid COD policy: %v", err)
	}
}

// DefaultCODPolicy returns the policy with every value at its documented default.
func DefaultCODPolicy() CODPolicy {
	return CODPolicy{
		HighValueThreshold:             decimal.NewFromInt(25000),
		IDVerificationThreshold:        decimal.NewFromInt(10000),
		MaxVerificationAttempts:        3,
		MaxVerificationAttemptsHighVal: 5,
		MaxDeliveryAttempts:            3,
		MaxOrderAmount:                 decimal.Zero,
		RequireFeeRule:                 true,
		VerificationRetryInterval:      2 * time.Hour,
		RedeliveryBusinessDays:         1,
		DispatchHour:                   9,
		Location:                       time.UTC,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using fallback", key)
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s, using fallback", key)
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		log.Printf("Invalid int64 for %s, using fallback", key)
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Invalid bool for %s, using fallback", key)
	}
	return fallback
}

func getListEnv(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
