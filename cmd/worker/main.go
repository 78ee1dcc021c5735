// The transcoder worker: consumes conversion commands and turns raw uploads
// into HLS rendition trees in object storage.
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
	"github.com/videonest/videonest/pipeline"
	"github.com/videonest/videonest/video"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("transcode-worker", flag.ExitOnError)
	cli := config.Cli{}

	config.AddCommonFlags(fs, &cli, 8001)
	config.AddBrokerFlags(fs, &cli)
	config.AddObjectStoreFlags(fs, &cli)
	fs.IntVar(&cli.WorkerCount, "video-postprocess-workers", 1, "Number of concurrent conversion jobs")

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

	objectStore, err := clients.NewMinIOStore(
		cli.MinioServerURL, cli.MinioRootUser, cli.MinioRootPassword, cli.S3Bucket, cli.S3Region)
	if err != nil {
		glog.Fatalf("error connecting to object store: %s", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		// the bucket usually exists already with the right policy; keep
		// going and let the first download surface a real misconfiguration
		glog.Warningf("bucket bootstrap failed: %s", err)
	}

	broker, err := clients.NewAMQPClient(cli.AMQPURL(),
		events.QueueConvertVideoToHLS,
		events.QueueConfirmVideoHLSConverted,
	)
	if err != nil {
		glog.Fatalf("error connecting to RabbitMQ: %s", err)
	}
	defer broker.Close()

	transcoder := &pipeline.Transcoder{
		ObjectStore: objectStore,
		Publisher:   broker,
		Prober:      video.FFProbe{},
		Renderer:    pipeline.FFmpegRenderer{},
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.ListenAddr(), api.NewWorkerRouter())
	})

	// each consumer owns one job at a time; prefetch 1 keeps the queue
	// feeding whichever worker is idle
	workers := cli.WorkerCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		tag := fmt.Sprintf("transcode-worker-%d", i)
		group.Go(func() error {
			return broker.Consume(ctx, events.QueueConvertVideoToHLS, tag, 1, transcoder.HandleConvert)
		})
	}

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
