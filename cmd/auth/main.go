// The auth service: accounts, RS256 token pairs, refresh rotation and
// logout via a redis blacklist.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/videonest/videonest/api"
	"github.com/videonest/videonest/auth"
	"github.com/videonest/videonest/config"
	"github.com/videonest/videonest/store"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("auth-service", flag.ExitOnError)
	cli := config.Cli{}

	config.AddCommonFlags(fs, &cli, 8002)
	config.AddDatabaseFlags(fs, &cli)
	config.AddRedisFlags(fs, &cli)
	config.AddRSAKeyFlags(fs, &cli)
	fs.IntVar(&cli.WorkerCount, "auth-service-workers", 1, "Accepted for compose compatibility")

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

	issuer, err := auth.NewTokenIssuer([]byte(cli.RSAPrivateKey))
	if err != nil {
		glog.Fatalf("error loading RSA private key: %s", err)
	}
	verifier, err := auth.NewTokenVerifier([]byte(cli.RSAPublicKey))
	if err != nil {
		glog.Fatalf("error loading RSA public key: %s", err)
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cli.RedisAddr(),
		Password: cli.RedisPassword,
	})
	defer redisClient.Close()

	service := &auth.Service{
		Users:         store.NewUserStore(db),
		RefreshTokens: store.NewRefreshTokenStore(db),
		Issuer:        issuer,
		Verifier:      verifier,
		Blacklist:     auth.NewBlacklist(redisClient),
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.ListenAddr(), api.NewAuthRouter(service))
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
