package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

func getInt32Env(key string, fallback int32) int32 {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := toInt32(value); err == nil {
			return i
		}
		log.Printf("Invalid int32 for %s, using fallback", key)
	}
	return fallback
}

func toInt32(s string) (int32, error) {
	var i int32
	_, err := fmt.Sscanf(s, "%d", &i)
	return i, err
}

func getDecimalEnv(key string, fallback decimal.Decimal) decimal.Decimal {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
		log.Printf("Invalid decimal for %s, using fallback", key)
	}
	return fallback
}

func getLocationEnv(key, fallback string) *time.Location {
	name := getEnv(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("Invalid timezone %q for %s, using UTC", name, key)
		return time.UTC
	}
	return loc
}

// Validate checks that the COD policy is internally consistent.
func (p CODPolicy) Validate() error {
	if p.MaxVerificationAttempts < 1 || p.MaxVerificationAttemptsHighVal < 1 {
		return errors.New("verification attempt ceilings must be at least 1")
	}
	if p.MaxVerificationAttemptsHighVal < p.MaxVerificationAttempts {
		return errors.New("high-value verification ceiling must not be lower than the standard ceiling")
	}
	if p.MaxDeliveryAttempts < 1 {
		return errors.New("delivery attempt ceiling must be at least 1")
	}
	if p.HighValueThreshold.IsNegative() || p.IDVerificationThreshold.IsNegative() || p.MaxOrderAmount.IsNegative() {
		return errors.New("thresholds must not be negative")
	}
	if p.RedeliveryBusinessDays < 1 {
		return errors.New("redelivery delay must be at least one business day")
	}
	if p.DispatchHour < 0 || p.DispatchHour > 23 {
		return fmt.Errorf("dispatch hour %d out of range", p.DispatchHour)
	}
	if p.VerificationRetryInterval <= 0 {
		return errors.New("verification retry interval must be positive")
	}
	if p.Location == nil {
		return errors.New("timezone is required")
	}
	return nil
}
