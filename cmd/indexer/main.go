// Command indexer mirrors Google nearby-search results for a list of
// locations into the Elasticsearch places index, and optionally warms the
// icon cache.
//
//	indexer "47.6,-122.3" "47.61,-122.33"
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"time"

	"poimap/internal/env"
	"poimap/internal/models"
	"poimap/internal/storage"
	"poimap/internal/viewmodel"
	"poimap/pkg/geo"
	"poimap/pkg/graceful"
	"poimap/pkg/places"
)

func main() {
	env.LoadEnv()
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	locations := os.Args[1:]
	if len(locations) == 0 {
		log.Fatal("usage: indexer LAT,LNG [LAT,LNG...]")
	}
	for _, loc := range locations {
		if _, _, err := geo.ParseLatLng(loc); err != nil {
			log.Fatalf("Invalid location %q: %v", loc, err)
		}
	}

	var opts []places.Option
	if base := env.GetEnvOrDefault("PLACES_BASE_URL", ""); base != "" {
		opts = append(opts, places.WithBaseURL(base))
	}
	client := places.NewClient(env.MustGetEnv("PLACES_API_KEY"), opts...)

	index, err := places.NewElasticSource(
		env.GetEnvOrDefault("ELASTIC_URL", "http://localhost:9200"),
		env.GetEnvOrDefault("ELASTIC_INDEX", "places"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer index.Close()
	if err := index.EnsureIndex(ctx); err != nil {
		log.Fatal(err)
	}

	var icons *storage.IconStore
	if endpoint := env.GetEnvOrDefault("MINIO_ENDPOINT", ""); endpoint != "" {
		icons, err = storage.NewIconStore(storage.S3Config{
			Endpoint:  endpoint,
			AccessKey: env.MustGetEnv("MINIO_ACCESS_KEY"),
			SecretKey: env.MustGetEnv("MINIO_SECRET_KEY"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetEnvOrDefault("ICON_BUCKET", "poimap-icons"),
		})
		if err != nil {
			log.Fatal(err)
		}
		if err := icons.EnsureBucket(ctx, ""); err != nil {
			log.Fatal(err)
		}
	}

	iconClient := &http.Client{Timeout: 15 * time.Second}
	start := time.Now()
	total := 0
	for _, loc := range locations {
		if ctx.Err() != nil {
			break
		}
		found, err := client.PointsOfInterest(ctx, loc)
		if err != nil {
			log.Printf("Nearby search for %s failed: %v", loc, err)
			continue
		}
		n, err := index.IndexPlaces(ctx, found)
		if err != nil {
			log.Printf("Indexing places for %s failed: %v", loc, err)
			continue
		}
		total += n
		log.Printf("Indexed %d places around %s", n, loc)
		if icons != nil {
			if n := warmIcons(ctx, icons, iconClient, found); n > 0 {
				log.Printf("Cached %d icons around %s", n, loc)
			}
		}
	}

	fmt.Printf("\nIndexed %d places from %d locations, took %s\n", total, len(locations), time.Since(start))
}

// warmIcons stores every distinct icon of places in the cache. Cached
// objects that no longer decode are downloaded again and replaced.
func warmIcons(ctx context.Context, icons viewmodel.IconCache, hc *http.Client, found []models.Place) int {
	seen := make(map[string]bool)
	stored := 0
	for _, p := range found {
		if p.Icon == "" || seen[p.Icon] {
			continue
		}
		seen[p.Icon] = true
		if cached, err := icons.Get(ctx, p.Icon); err == nil {
			if _, _, err := image.Decode(bytes.NewReader(cached)); err == nil {
				continue
			}
			log.Printf("Cached icon for %s does not decode, replacing it", p.Icon)
		}
		data, contentType, _, err := viewmodel.DownloadIcon(ctx, hc, p.Icon)
		if err != nil {
			log.Printf("Failed to download icon %s: %v", p.Icon, err)
			continue
		}
		if err := icons.Put(ctx, p.Icon, data, contentType); err != nil {
			log.Printf("Failed to cache icon %s: %v", p.Icon, err)
			continue
		}
		stored++
	}
	return stored
}
