package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"poimap/internal/activity"
	"poimap/internal/api"
	"poimap/internal/env"
	"poimap/internal/livedata"
	"poimap/internal/locationsvc"
	"poimap/internal/looper"
	"poimap/internal/models"
	"poimap/internal/permission"
	"poimap/internal/service"
	"poimap/internal/storage"
	"poimap/internal/viewmodel"
	"poimap/pkg/graceful"
	"poimap/pkg/kafkaclient"
	"poimap/pkg/location"
	"poimap/pkg/places"
)

func main() {
	env.LoadEnv()
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	cfg := loadConfig()
	var closers []graceful.Closer

	var source viewmodel.PlacesSource
	switch cfg.PlacesBackend {
	case "google":
		var opts []places.Option
		if cfg.PlacesBaseURL != "" {
			opts = append(opts, places.WithBaseURL(cfg.PlacesBaseURL))
		}
		source = places.NewClient(cfg.PlacesAPIKey, opts...)
	case "elastic":
		es, err := places.NewElasticSource(cfg.ElasticURL, cfg.ElasticIndex)
		if err != nil {
			log.Fatal(err)
		}
		if err := es.EnsureIndex(ctx); err != nil {
			log.Fatal(err)
		}
		source = es
		closers = append(closers, func(context.Context) error {
			es.Close()
			return nil
		})
	default:
		log.Fatalf("Unknown PLACES_BACKEND %q, want google or elastic", cfg.PlacesBackend)
	}

	var (
		vmOpts      []viewmodel.Option
		fixRecorder locationsvc.FixRecorder
	)
	if cfg.DatabaseURL != "" {
		history, err := storage.NewHistoryStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		if err := history.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		fixRecorder = history
		vmOpts = append(vmOpts, viewmodel.WithRecorder(history))
		closers = append(closers, func(context.Context) error {
			history.Close()
			return nil
		})
	}
	if cfg.S3.Endpoint != "" {
		icons, err := storage.NewIconStore(cfg.S3)
		if err != nil {
			log.Fatal(err)
		}
		if err := icons.EnsureBucket(ctx, ""); err != nil {
			log.Fatal(err)
		}
		vmOpts = append(vmOpts, viewmodel.WithIconCache(icons))
	}

	// The main looper outlives the signal context so the activity can be
	// finished on it during shutdown.
	mainCtx, stopMain := context.WithCancel(context.Background())
	defer stopMain()
	mainLooper := looper.New(256)
	go mainLooper.Run(mainCtx)

	io := livedata.NewDispatcher(8)
	fused := locationsvc.NewFusedClient(mainLooper, fixRecorder)
	go fused.Run(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		log.Printf("Connecting to Kafka brokers %v on topic %s with group ID %s", cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		consumer, err := kafkaclient.NewConsumer(kafkaclient.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		if err != nil {
			log.Fatalf("Failed to create kafka consumer: %v", err)
		}
		consumer.StartConsuming(ctx)
		fixes := service.NewIterator(consumer, models.DecodeFix)
		go fused.Ingest(ctx, fixes.Objects(ctx))
		closers = append(closers, func(context.Context) error {
			consumer.Stop()
			return nil
		})
	}

	perms := permission.NewStore()
	if cfg.AutoGrant {
		perms.Grant(permission.AccessFineLocation, permission.AccessCoarseLocation)
	}

	vm := viewmodel.New(ctx, source, mainLooper, io, vmOpts...)
	acfg := activity.DefaultConfig()
	acfg.CredentialsKey = cfg.CredentialsKey
	acfg.Request.Interval = cfg.Interval
	acfg.Request.FastestInterval = cfg.Interval
	screen := activity.New(acfg, mainLooper, vm, fused, perms)
	if err := screen.Launch(ctx, nil); err != nil {
		log.Fatalf("Failed to launch map activity: %v", err)
	}

	var apiOpts []api.Option
	if cfg.GeocoderURL != "" {
		apiOpts = append(apiOpts, api.WithGeocoder(location.NewClient(cfg.GeocoderURL, "poimap/1.0")))
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewHandler(screen, fused, perms, apiOpts...).Router(30 * time.Second),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdown := []graceful.Closer{
		server.Shutdown,
		func(ctx context.Context) error {
			_, err := screen.Finish(ctx)
			return err
		},
		func(context.Context) error {
			io.Wait()
			return nil
		},
	}
	if err := graceful.Shutdown(15*time.Second, append(shutdown, closers...)...); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
	}
	stopMain()
	log.Println("Main method finished, application exiting.")
}
