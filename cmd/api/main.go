// The channel service: consumes upload notifications and conversion
// confirmations, and serves the public read API over video metadata.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/videonest/videonest/api"
	"github.com/videonest/videonest/clients"
	"github.com/videonest/videonest/config"
	"github.com/videonest/videonest/events"
	"github.com/videonest/videonest/ingest"
	"github.com/videonest/videonest/store"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("channel-api", flag.ExitOnError)
	cli := config.Cli{}

	config.AddCommonFlags(fs, &cli, 8000)
	config.AddDatabaseFlags(fs, &cli)
	config.AddBrokerFlags(fs, &cli)
	fs.IntVar(&cli.WorkerCount, "channel-actions-service-workers", 1, "Accepted for compose compatibility")

	if err := config.Parse(fs, os.Args[1:]); err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}
	if cli.DebugMode {
		if err := flag.Set("v", "6"); err != nil {
			glog.Warning(err)
		}
	}
	if err := flag.CommandLine.Parse(nil); err != nil {
		glog.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cli.PostgresDSN())
	if err != nil {
		glog.Fatalf("error connecting to postgres: %s", err)
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		glog.Fatalf("error creating schema: %s", err)
	}
	videos := store.NewVideoStore(db)

	broker, err := clients.NewAMQPClient(cli.AMQPURL(),
		events.QueueUnprocessedVideoUploaded,
		events.QueueConvertVideoToHLS,
		events.QueueConfirmVideoHLSConverted,
	)
	if err != nil {
		glog.Fatalf("error connecting to RabbitMQ: %s", err)
	}
	defer broker.Close()

	coordinator := &ingest.Coordinator{Registry: videos, Publisher: broker}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.ListenAddr(), api.NewVideoAPIRouter(videos))
	})

	group.Go(func() error {
		return broker.Consume(ctx, events.QueueUnprocessedVideoUploaded, "channel-api-uploads", 1, coordinator.HandleUpload)
	})

	group.Go(func() error {
		return broker.Consume(ctx, events.QueueConfirmVideoHLSConverted, "channel-api-confirms", 1, coordinator.HandleConfirm)
	})

	err = group.Wait()
	glog.Infof("Shutdown complete. Reason for shutdown: %s", err)
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
