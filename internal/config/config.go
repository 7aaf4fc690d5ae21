package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// HoldTTL is how long a restored temporary hold lives before the store
	// expires it.
	HoldTTL time.Duration
	// AccessKeyTTL bounds how long an admitted user may sit in checkout.
	AccessKeyTTL time.Duration
	// SequenceExpiry bounds the lifetime of per-millisecond sequence counters.
	SequenceExpiry time.Duration

	// Admission worker knobs.
	WorkerInterval time.Duration
	AdmitBatch     int
	MaxActiveUsers int64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HoldTTL:        duration("HOLD_TTL", 5*time.Minute),
		AccessKeyTTL:   duration("ACCESS_KEY_TTL", 10*time.Minute),
		SequenceExpiry: duration("SEQUENCE_EXPIRY", 2*time.Second),
		WorkerInterval: duration("WORKER_INTERVAL", 5*time.Second),
		AdmitBatch:     integer("ADMIT_BATCH", 100),
		MaxActiveUsers: int64(integer("MAX_ACTIVE_USERS", 1000)),
	}, nil
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return def
	}
	return d
}

func integer(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n == 0 {
		return def
	}
	return n
}
