package main

import (
	"strings"
	"time"

	"poimap/internal/env"
	"poimap/internal/storage"
)

type config struct {
	PlacesBackend  string
	PlacesAPIKey   string
	PlacesBaseURL  string
	ElasticURL     string
	ElasticIndex   string
	CredentialsKey string
	HTTPAddr       string
	Interval       time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	DatabaseURL    string
	S3             storage.S3Config
	AutoGrant      bool
	GeocoderURL    string
}

func loadConfig() config {
	cfg := config{
		PlacesBackend:  env.GetEnvOrDefault("PLACES_BACKEND", "google"),
		PlacesBaseURL:  env.GetEnvOrDefault("PLACES_BASE_URL", ""),
		ElasticURL:     env.GetEnvOrDefault("ELASTIC_URL", "http://localhost:9200"),
		ElasticIndex:   env.GetEnvOrDefault("ELASTIC_INDEX", "places"),
		CredentialsKey: env.GetEnvOrDefault("MAP_CREDENTIALS_KEY", ""),
		HTTPAddr:       env.GetEnvOrDefault("HTTP_ADDR", ":8080"),
		Interval:       env.GetDuration("LOCATION_INTERVAL", 30*time.Second),
		KafkaTopic:     env.GetEnvOrDefault("KAFKA_TOPIC", "location-fixes"),
		KafkaGroupID:   env.GetEnvOrDefault("KAFKA_GROUP_ID", "poimap"),
		DatabaseURL:    env.GetEnvOrDefault("DATABASE_URL", ""),
		S3: storage.S3Config{
			Endpoint:  env.GetEnvOrDefault("MINIO_ENDPOINT", ""),
			AccessKey: env.GetEnvOrDefault("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetEnvOrDefault("MINIO_SECRET_KEY", ""),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetEnvOrDefault("ICON_BUCKET", "poimap-icons"),
		},
		AutoGrant:   env.GetBool("AUTO_GRANT_LOCATION", false),
		GeocoderURL: env.GetEnvOrDefault("NOMINATIM_URL", ""),
	}
	if brokers := env.GetEnvOrDefault("KAFKA_BROKER", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.PlacesBackend == "google" {
		cfg.PlacesAPIKey = env.MustGetEnv("PLACES_API_KEY")
	}
	return cfg
}
