// Package config holds the flag/environment configuration of the three
// services. Every flag can be set through the environment: the variable name
// is the flag name uppercased with dashes turned into underscores, so
// -postgres-db binds to POSTGRES_DB.
package config

import (
	"flag"
	"fmt"
	"net/url"

	"github.com/peterbourgon/ff/v3"
)

type Cli struct {
	Port      int
	DebugMode bool

	// process count accepted for compose compatibility; replica counts are
	// an orchestrator concern, each binary runs one process
	WorkerCount int

	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	RabbitMQHost        string
	RabbitMQPort        string
	RabbitMQDefaultUser string
	RabbitMQDefaultPass string

	MinioServerURL    string
	MinioRootUser     string
	MinioRootPassword string
	S3Bucket          string
	S3Region          string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	RSAPrivateKey string
	RSAPublicKey  string
}

// AddCommonFlags registers the flags every service takes.
func AddCommonFlags(fs *flag.FlagSet, cli *Cli, defaultPort int) {
	fs.IntVar(&cli.Port, "port", defaultPort, "Port to listen on")
	fs.BoolVar(&cli.DebugMode, "debug-mode", false, "Enable verbose logging")
}

// AddDatabaseFlags registers the Postgres connection flags.
func AddDatabaseFlags(fs *flag.FlagSet, cli *Cli) {
	fs.StringVar(&cli.PostgresHost, "postgres-host", "postgres", "Postgres host")
	fs.StringVar(&cli.PostgresPort, "postgres-port", "5432", "Postgres port")
	fs.StringVar(&cli.PostgresDB, "postgres-db", "", "Postgres database name")
	fs.StringVar(&cli.PostgresUser, "postgres-user", "", "Postgres user")
	fs.StringVar(&cli.PostgresPassword, "postgres-password", "", "Postgres password")
}

// AddBrokerFlags registers the RabbitMQ connection flags.
func AddBrokerFlags(fs *flag.FlagSet, cli *Cli) {
	fs.StringVar(&cli.RabbitMQHost, "rabbitmq-host", "rabbitmq", "RabbitMQ host")
	fs.StringVar(&cli.RabbitMQPort, "rabbitmq-port", "5672", "RabbitMQ port")
	fs.StringVar(&cli.RabbitMQDefaultUser, "rabbitmq-default-user", "", "RabbitMQ user")
	fs.StringVar(&cli.RabbitMQDefaultPass, "rabbitmq-default-pass", "", "RabbitMQ password")
}

// AddObjectStoreFlags registers the MinIO/S3 flags.
func AddObjectStoreFlags(fs *flag.FlagSet, cli *Cli) {
	fs.StringVar(&cli.MinioServerURL, "minio-server-url", "http://minio:9000", "Object store endpoint URL")
	fs.StringVar(&cli.MinioRootUser, "minio-root-user", "", "Object store access key")
	fs.StringVar(&cli.MinioRootPassword, "minio-root-password", "", "Object store secret key")
	fs.StringVar(&cli.S3Bucket, "s3-bucket", "files", "Bucket holding raw uploads and HLS trees")
	fs.StringVar(&cli.S3Region, "s3-region", "us-east-1", "Bucket region")
}

// AddRedisFlags registers the redis flags used by the auth service.
func AddRedisFlags(fs *flag.FlagSet, cli *Cli) {
	fs.StringVar(&cli.RedisHost, "redis-host", "redis", "Redis host")
	fs.StringVar(&cli.RedisPort, "redis-port", "6379", "Redis port")
	fs.StringVar(&cli.RedisPassword, "redis-password", "", "Redis password")
}

// AddRSAKeyFlags registers the PEM-encoded JWT signing keys.
func AddRSAKeyFlags(fs *flag.FlagSet, cli *Cli) {
	fs.StringVar(&cli.RSAPrivateKey, "rsa-private-key", "", "PEM-encoded RSA private key for signing tokens")
	fs.StringVar(&cli.RSAPublicKey, "rsa-public-key", "", "PEM-encoded RSA public key for verifying tokens")
}

// Parse reads flags from args and the environment.
func Parse(fs *flag.FlagSet, args []string) error {
	return ff.Parse(fs, args, ff.WithEnvVarNoPrefix())
}

// PostgresDSN is the connection string store.Open expects.
func (cli *Cli) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cli.PostgresHost, cli.PostgresPort, cli.PostgresUser, cli.PostgresPassword, cli.PostgresDB)
}

// AMQPURL builds the broker URL from its parts.
func (cli *Cli) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		url.QueryEscape(cli.RabbitMQDefaultUser), url.QueryEscape(cli.RabbitMQDefaultPass),
		cli.RabbitMQHost, cli.RabbitMQPort)
}

// RedisAddr is the host:port go-redis expects.
func (cli *Cli) RedisAddr() string {
	return cli.RedisHost + ":" + cli.RedisPort
}

// ListenAddr is the bind address of the HTTP server.
func (cli *Cli) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", cli.Port)
}
