package bootstrap

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string
	LogLevel   string
	AdminToken string

	RecognizerURL      string
	RecognizerToken    string
	RecognizerRate     int
	RecognizerLanguage string
	RecognizerModel    string

	TranscriptionURL      string
	TranscriptionAPIKey   string
	TranscriptionModel    string
	TranscriptionLanguage string

	AgentURL   string
	AgentToken string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VADOnThreshold  float64
	VADOffThreshold float64
	VADWindowSize   int
	VADHoldover     time.Duration
	VADSilence      time.Duration
	VADPreRoll      time.Duration

	StreamWatchdog time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		AdminToken: getEnv("ADMIN_TOKEN", ""),

		RecognizerURL:      getEnv("RECOGNIZER_URL", "ws://localhost:50052/stream"),
		RecognizerToken:    getEnv("RECOGNIZER_TOKEN", ""),
		RecognizerRate:     getEnvInt("RECOGNIZER_SAMPLE_RATE", 16000),
		RecognizerLanguage: getEnv("RECOGNIZER_LANGUAGE", "en"),
		RecognizerModel:    getEnv("RECOGNIZER_MODEL", ""),

		TranscriptionURL:      getEnv("TRANSCRIPTION_URL", "https://api.openai.com/v1/audio/transcriptions"),
		TranscriptionAPIKey:   getEnv("TRANSCRIPTION_API_KEY", ""),
		TranscriptionModel:    getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "en"),

		AgentURL:   getEnv("AGENT_URL", "http://localhost:9090/message"),
		AgentToken: getEnv("AGENT_TOKEN", ""),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		VADOnThreshold:  getEnvFloat("VAD_ON_THRESHOLD", 0.015),
		VADOffThreshold: getEnvFloat("VAD_OFF_THRESHOLD", 0.010),
		VADWindowSize:   getEnvInt("VAD_WINDOW_SIZE", 45),
		VADHoldover:     getEnvDuration("VAD_HOLDOVER_MS", 1000),
		VADSilence:      getEnvDuration("VAD_SILENCE_MS", 2000),
		VADPreRoll:      getEnvDuration("VAD_PREROLL_MS", 500),

		StreamWatchdog: getEnvDuration("STREAM_WATCHDOG_MS", 5000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}
