// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	syncOnStart    = pflag.Bool("sync-on-start", false, "Runs all planners once on startup")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDBTypes   = []string{"postgres", "sqlite"}
)

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")

	v.BindEnv("db.type", "db_type")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("staging.endpoint", "staging_endpoint")
	v.BindEnv("staging.region", "staging_region")
	v.BindEnv("staging.bucket", "staging_bucket")
	v.BindEnv("staging.access_key_id", "staging_access_key_id")
	v.BindEnv("staging.secret_access_key", "staging_secret_access_key")
	v.BindEnv("staging.url_expiry", "staging_url_expiry")

	v.BindEnv("ipfs.api_endpoint", "ipfs_api_endpoint")
	v.BindEnv("ipfs.gateway", "ipfs_gateway")

	v.BindEnv("crust.endpoint", "crust_endpoint")
	v.BindEnv("crust.tips", "crust_tips")
	v.BindEnv("crust.orders_per_minute", "crust_orders_per_minute")

	v.BindEnv("quota.endpoint", "quota_endpoint")
	v.BindEnv("quota.default_bucket_size", "quota_default_bucket_size")

	v.BindEnv("workers.redis_addr", "workers_redis_addr")
	v.BindEnv("workers.concurrency", "workers_concurrency")
	v.BindEnv("workers.batch_size", "workers_batch_size")

	v.BindEnv("buckets.retention_days", "buckets_retention_days")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)

	v.SetDefault("db.type", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("staging.region", "auto")
	v.SetDefault("staging.url_expiry", 900)

	v.SetDefault("ipfs.api_endpoint", "http://127.0.0.1:5001")
	v.SetDefault("ipfs.gateway", "https://ipfs.io/ipfs/")

	v.SetDefault("crust.tips", 0)
	v.SetDefault("crust.orders_per_minute", 60)

	// GiB unless the subscription service says otherwise
	v.SetDefault("quota.default_bucket_size", 5)

	v.SetDefault("workers.redis_addr", "127.0.0.1:6379")
	v.SetDefault("workers.concurrency", 20)
	v.SetDefault("workers.batch_size", 10)

	v.SetDefault("buckets.retention_days", 3)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDBTypes, v.GetString("db.type")) {
		return errors.New("invalid db type provided")
	}

	if v.GetString("db.dsn") == "" {
		return errors.New("db dsn can't be empty")
	}

	if v.GetString("staging.bucket") == "" {
		return errors.New("staging bucket can't be empty")
	}
	if v.GetString("staging.access_key_id") == "" {
		return errors.New("staging access key id can't be empty")
	}
	if v.GetString("staging.secret_access_key") == "" {
		return errors.New("staging secret access key can't be empty")
	}

	if v.GetString("ipfs.api_endpoint") == "" {
		return errors.New("ipfs api endpoint can't be empty")
	}

	if v.GetInt("workers.concurrency") <= 0 {
		return errors.New("workers.concurrency must be bigger than 0")
	}

	if v.GetInt("workers.batch_size") <= 0 {
		return errors.New("workers.batch_size must be bigger than 0")
	}

	if v.GetInt("quota.default_bucket_size") <= 0 {
		return errors.New("quota.default_bucket_size must be bigger than 0")
	}

	v.Set("quota.default_bucket_size", v.GetInt64("quota.default_bucket_size")<<30)
	v.Set("workers.sync_on_start", *syncOnStart)

	return nil
}
