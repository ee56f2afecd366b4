package config

import (
	"os"
	"strconv"
	"time"
)

type SchoolConfig struct {
	SchoolCode      string
	SchoolName      string
	QRImageSize     int
	CSVImportLimit  int
	SummaryCacheTTL time.Duration
	RecentLimit     int
	MaxRecentLimit  int
}

func LoadSchoolConfig() *SchoolConfig {
	return &SchoolConfig{
		SchoolCode:      getEnv("SCHOOL_CODE", "SCH001"),
		SchoolName:      getEnv("SCHOOL_NAME", "Tabungin"),
		QRImageSize:     getEnvAsInt("QR_IMAGE_SIZE", 256),
		CSVImportLimit:  getEnvAsInt("CSV_IMPORT_LIMIT", 500),
		SummaryCacheTTL: getEnvAsDuration("SUMMARY_CACHE_TTL", 5*time.Minute),
		RecentLimit:     getEnvAsInt("RECENT_TX_LIMIT", 10),
		MaxRecentLimit:  getEnvAsInt("RECENT_TX_MAX_LIMIT", 100),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
