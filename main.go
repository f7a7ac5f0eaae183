package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"github.com/streamforge/vodflow/api"
	"github.com/streamforge/vodflow/broker"
	"github.com/streamforge/vodflow/clients"
	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/metrics"
	"github.com/streamforge/vodflow/pipeline"
	"github.com/streamforge/vodflow/store"
	"golang.org/x/sync/errgroup"
)

const brokerPollTimeout = 5 * time.Second

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("vodflow", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")

	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8989", "Address to bind for the status API")
	fs.IntVar(&cli.PromPort, "prom-port", 2112, "Prometheus metrics listen port")
	fs.StringVar(&cli.APIToken, "api-token", "IAmAuthorized", "Auth header value for API access")

	fs.StringVar(&cli.DatabaseURL, "database-url", "", "Postgres connection string for the videos table")

	// object store
	fs.StringVar(&cli.OSEndpoint, "os-endpoint", "localhost:9000", "S3-compatible object store endpoint")
	fs.StringVar(&cli.OSAccessKey, "os-access-key", "", "Object store access key")
	fs.StringVar(&cli.OSSecretKey, "os-secret-key", "", "Object store secret key")
	fs.BoolVar(&cli.OSUseTLS, "os-use-tls", false, "Use TLS when talking to the object store")
	fs.StringVar(&cli.RawBucket, "raw-bucket", "raw-videos", "Bucket holding uploaded sources")
	fs.StringVar(&cli.ThumbnailBucket, "thumbnail-bucket", "thumbnails", "Bucket holding generated thumbnails")
	fs.StringVar(&cli.ProcessedBucket, "processed-bucket", "processed-videos", "Bucket receiving HLS output")

	// task broker
	fs.StringVar(&cli.RedisHost, "redis-host", "localhost", "Redis host for the task broker")
	fs.IntVar(&cli.RedisPort, "redis-port", 6379, "Redis port for the task broker")
	fs.StringVar(&cli.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&cli.RedisDB, "redis-db", 0, "Redis database index")
	fs.StringVar(&cli.JobQueue, "job-queue", "vodflow:jobs", "Redis list the API publishes jobs to")

	fs.StringVar(&cli.TempDir, "temp-dir", os.TempDir(), "Directory for per-job scratch workspaces")
	fs.IntVar(&cli.EncoderThreads, "encoder-threads", 0, "Thread count passed to the encoder, 0 lets it decide")
	workers := fs.Int("workers", 2, "Number of concurrent pipeline workers")
	parallelTranscodes := fs.Int("parallel-transcode-jobs", 4, "Number of parallel transcode jobs per pipeline run")

	config.LadderFlag(fs, &cli.Ladder, "quality-ladder", config.DefaultLadder, "Rendition ladder as comma-separated label:WxH:bitrate entries")

	defaults := config.DefaultRetryPolicies()
	cli.Retries = defaults
	config.RetryPolicyFlag(fs, &cli.Retries.Prepare, "retry-prepare", defaults.Prepare, "Prepare stage retries as attempts:backoff-seconds")
	config.RetryPolicyFlag(fs, &cli.Retries.Transcode, "retry-transcode", defaults.Transcode, "Transcode stage retries as attempts:backoff-seconds")
	config.RetryPolicyFlag(fs, &cli.Retries.Segment, "retry-segment", defaults.Segment, "Segment stage retries as attempts:backoff-seconds")
	config.RetryPolicyFlag(fs, &cli.Retries.Manifest, "retry-manifest", defaults.Manifest, "Manifest stage retries as attempts:backoff-seconds")
	config.RetryPolicyFlag(fs, &cli.Retries.Upload, "retry-upload", defaults.Upload, "Upload stage retries as attempts:backoff-seconds")
	config.RetryPolicyFlag(fs, &cli.Retries.Finalize, "retry-finalize", defaults.Finalize, "Finalize stage retries as attempts:backoff-seconds")

	_ = fs.String("config", "", "config file (optional)")

	err = ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("VODFLOW"),
	)
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}

	if *version {
		fmt.Printf("vodflow version: %s\n", config.Version)
		return
	}
	if cli.DatabaseURL == "" {
		glog.Fatal("-database-url is required")
	}

	db, err := sql.Open("postgres", cli.DatabaseURL)
	if err != nil {
		glog.Fatalf("error creating postgres connection: %v", err)
	}
	videoStore := store.NewVideoStore(db)
	if err := videoStore.Migrate(context.Background()); err != nil {
		glog.Fatalf("error migrating videos table: %v", err)
	}

	objectStore, err := clients.NewObjectStore(cli.OSEndpoint, cli.OSAccessKey, cli.OSSecretKey, cli.OSUseTLS)
	if err != nil {
		glog.Fatalf("error creating object store client: %v", err)
	}
	for _, bucket := range []string{cli.RawBucket, cli.ThumbnailBucket, cli.ProcessedBucket} {
		if err := objectStore.EnsureBucket(context.Background(), bucket); err != nil {
			glog.Fatalf("error ensuring bucket %q: %v", bucket, err)
		}
	}

	taskBroker, err := broker.NewBroker(cli.RedisAddr(), cli.RedisPassword, cli.RedisDB, cli.JobQueue)
	if err != nil {
		glog.Fatalf("error creating task broker: %v", err)
	}
	if err := taskBroker.Ping(context.Background()); err != nil {
		glog.Fatalf("error connecting to task broker: %v", err)
	}

	coordinator := pipeline.NewCoordinator(videoStore, objectStore, cli, *parallelTranscodes)

	// Cancelling the root context prompts all components to shut down cleanly
	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli, coordinator, videoStore)
	})

	group.Go(func() error {
		return metrics.ListenAndServe(cli.PromPort)
	})

	for i := 0; i < *workers; i++ {
		group.Go(func() error {
			return runWorker(ctx, taskBroker, coordinator)
		})
	}

	err = group.Wait()
	glog.Infof("Shutdown complete. Reason for shutdown: %s", err)
}

// runWorker consumes jobs until the context is cancelled. Pipeline failures
// are terminal for the job, never for the worker.
func runWorker(ctx context.Context, taskBroker *broker.Broker, coordinator *pipeline.Coordinator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := taskBroker.Consume(ctx, brokerPollTimeout)
		if err != nil {
			log.LogNoVideoID("Failed to consume from broker", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		metrics.Metrics.JobsConsumed.Inc()
		log.Log(job.VideoID, "Dequeued processing job", "workflow_handle", job.WorkflowHandle)
		// Process marks the row failed and cleans up on error; nothing more
		// for the worker to do.
		_ = coordinator.Process(ctx, job)
	}
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			glog.Errorf("caught signal=%v, attempting clean shutdown", s)
			return fmt.Errorf("caught signal=%v", s)
		case <-ctx.Done():
			return nil
		}
	}
}
