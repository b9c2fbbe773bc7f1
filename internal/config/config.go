// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the process-wide settings for the table server. Values are
// fixed at startup; there is no reload path.
type Config struct {
	// TCPAddr is the listen address for the line-protocol transport.
	TCPAddr string
	// HTTPAddr is the listen address for the WebSocket endpoint.
	HTTPAddr string

	// MaxBet is the hard per-bet ceiling.
	MaxBet int
	// StartBalance is the chip grant for a nickname seen for the first time.
	StartBalance int
	// MaxChatLen is the truncation length for chat text.
	MaxChatLen int
	// MinPlayers is the player count required to leave the waiting phase.
	MinPlayers int

	// DealerDelay paces the dealer's draw loop so clients can watch the
	// cards arrive one by one.
	DealerDelay time.Duration

	// RedisAddr enables the action journal when non-empty.
	RedisAddr string
}

// Load reads the configuration from environment variables, falling back to
// built-in defaults.
func Load() Config {
	return Config{
		TCPAddr:      getEnv("BLACKJACK_TCP_ADDR", ":5555"),
		HTTPAddr:     ":" + getEnv("PORT", "8080"),
		MaxBet:       getEnvInt("MAX_BET", 100000),
		StartBalance: getEnvInt("START_BALANCE", 100),
		MaxChatLen:   getEnvInt("MAX_CHAT_LEN", 500),
		MinPlayers:   getEnvInt("MIN_PLAYERS", 1),
		DealerDelay:  time.Duration(getEnvInt("DEALER_DELAY_MS", 1000)) * time.Millisecond,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
