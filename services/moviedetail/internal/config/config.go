package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	platformconfig "github.com/example/movie-discovery/internal/platform/config"
	"github.com/example/movie-discovery/services/moviedetail/internal/upstream"
)

const defaultUpstreamURL = "http://localhost:8090"

type Config struct {
	platformconfig.AppConfig

	JWTSecret          string
	GRPCAddr           string
	InteractionBaseURL string
	MetadataBaseURL    string
	RedisURL           string
	DatabaseURL        string
	NATSURL            string
	ViewIdleTTL        time.Duration
	SweepInterval      time.Duration
	CacheTTL           time.Duration
	// Circuit-breaker settings shared by both upstream clients.
	Breaker upstream.BreakerConfig
}

func Load() (Config, error) {
	app, err := platformconfig.Load()
	if err != nil {
		return Config{}, err
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	grpcAddr := strings.TrimSpace(os.Getenv("GRPC_ADDR"))
	if grpcAddr == "" {
		grpcAddr = ":9090"
	}
	interactionURL := strings.TrimSpace(os.Getenv("INTERACTION_BASE_URL"))
	if interactionURL == "" {
		interactionURL = defaultUpstreamURL
	}
	metadataURL := strings.TrimSpace(os.Getenv("METADATA_BASE_URL"))
	if metadataURL == "" {
		metadataURL = interactionURL
	}

	return Config{
		AppConfig:          app,
		JWTSecret:          secret,
		GRPCAddr:           grpcAddr,
		InteractionBaseURL: strings.TrimRight(interactionURL, "/"),
		MetadataBaseURL:    strings.TrimRight(metadataURL, "/"),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:            strings.TrimSpace(os.Getenv("NATS_URL")),
		ViewIdleTTL:        envDuration("VIEW_IDLE_TTL", 30*time.Minute),
		SweepInterval:      envDuration("VIEW_SWEEP_INTERVAL", time.Minute),
		CacheTTL:           time.Duration(envInt("CACHE_TTL_SEC", 300)) * time.Second,
		Breaker: upstream.BreakerConfig{
			MaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
			Interval:         envDuration("CB_INTERVAL", 60*time.Second),
			Timeout:          envDuration("CB_TIMEOUT", 30*time.Second),
			FailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
		},
	}, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
