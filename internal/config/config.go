package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// maxPriceScale mirrors domain.MaxPriceScale.
const maxPriceScale = 18

// Config holds all runtime configuration for the matching engine service.
type Config struct {
	Port       int
	LogLevel   string
	Symbol     string
	PriceScale int32
	VWAPWindow time.Duration

	// Trade sinks. An empty address, DSN, URL or directory disables the sink.
	JournalDir    string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	KafkaBrokers  []string
	KafkaTopic    string
	PostgresDSN   string
	WebhookURL    string
	SinkTimeout   time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	symbol := getStr("SYMBOL", "DEX")
	if !symbolRegex.MatchString(symbol) {
		return nil, fmt.Errorf("invalid SYMBOL: %q, must match %s", symbol, symbolRegex)
	}

	scale, err := getInt("PRICE_SCALE", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_SCALE: %w", err)
	}
	if scale < 0 || scale > maxPriceScale {
		return nil, fmt.Errorf("invalid PRICE_SCALE: %d, must be between 0 and %d", scale, maxPriceScale)
	}

	vwapWindow, err := getDuration("VWAP_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid VWAP_WINDOW: %w", err)
	}

	webhookURL := getStr("WEBHOOK_URL", "")
	if webhookURL != "" {
		u, err := url.Parse(webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid WEBHOOK_URL: %q, must be an absolute http(s) URL", webhookURL)
		}
	}

	sinkTimeout, err := getDuration("SINK_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SINK_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		Symbol:          symbol,
		PriceScale:      int32(scale),
		VWAPWindow:      vwapWindow,
		JournalDir:      getStr("JOURNAL_DIR", ""),
		RedisAddr:       getStr("REDIS_ADDR", ""),
		RedisPassword:   getStr("REDIS_PASSWORD", ""),
		RedisChannel:    getStr("REDIS_CHANNEL", "trades"),
		KafkaBrokers:    getList("KAFKA_BROKERS"),
		KafkaTopic:      getStr("KAFKA_TOPIC", "trades"),
		PostgresDSN:     getStr("POSTGRES_DSN", ""),
		WebhookURL:      webhookURL,
		SinkTimeout:     sinkTimeout,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated variable, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
