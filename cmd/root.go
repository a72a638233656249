// Package cmd contains helpers common to all CLI implementations.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/blampe/rrjudge/internal"
	charm "github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// LogConfig configures logging.
type LogConfig struct {
	Verbose bool `env:"VERBOSE" help:"increase log verbosity"`
}

// Run sets logging to DEBUG if verbose is enabled.
func (c *LogConfig) Run() error {
	if c.Verbose {
		internal.SetLogLevel(charm.DebugLevel)
	}
	return nil
}

// RedisConfig configures the optional shared cache layer.
type RedisConfig struct {
	RedisAddr         string        `env:"REDIS_ADDR" help:"Redis host:port. Leave empty to cache in memory only."`
	RedisPassword     string        `xor:"redis-auth" env:"REDIS_PASSWORD" help:"Redis password."`
	RedisPasswordFile []byte        `type:"filecontent" xor:"redis-auth" env:"REDIS_PASSWORD_FILE" help:"File with the Redis password."`
	RedisDB           int           `default:"0" env:"REDIS_DB" help:"Redis database number."`
	RedisTimeout      time.Duration `default:"2s" env:"REDIS_TIMEOUT" help:"Redis read/write timeout."`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	RedisConfig

	CacheTTL  time.Duration `default:"10m" env:"CACHE_TTL" help:"How long aggregated responses are cached."`
	CacheSize string        `default:"" env:"CACHE_SIZE" help:"In-memory cache budget, e.g. 512MiB. Defaults to 75% of the memory limit."`
}

// Options returns cache options based on the provided flags.
func (c *CacheConfig) Options() (internal.CacheOptions, error) {
	if len(c.RedisPasswordFile) > 0 {
		c.RedisPassword = string(bytes.TrimSpace(c.RedisPasswordFile))
	}

	opts := internal.CacheOptions{
		Redis: internal.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Timeout:  c.RedisTimeout,
		},
	}

	if c.CacheSize != "" {
		size, err := humanize.ParseBytes(c.CacheSize)
		if err != nil {
			return opts, fmt.Errorf("invalid cache size %q: %w", c.CacheSize, err)
		}
		opts.MaxBytes = int64(size)
	}

	return opts, nil
}

// JudgeMeConfig configures the upstream review provider. Credentials are
// passed through untouched.
type JudgeMeConfig struct {
	JudgeMeURL      string        `default:"https://judge.me" env:"JUDGEME_URL" help:"Judge.me API base URL."`
	ShopDomain      string        `required:"" env:"SHOP_DOMAIN" help:"Shop domain, e.g. example.myshopify.com."`
	APIToken        string        `xor:"token" env:"API_TOKEN" help:"Judge.me API token."`
	APITokenFile    []byte        `type:"filecontent" xor:"token" env:"API_TOKEN_FILE" help:"File with the Judge.me API token."`
	UserAgent       string        `default:"rrjudge/1.0" env:"USER_AGENT" help:"User-Agent for upstream requests."`
	RPS             float64       `default:"10" env:"RPS" help:"Maximum upstream requests per second."`
	UpstreamTimeout time.Duration `default:"10s" env:"UPSTREAM_TIMEOUT" help:"Timeout for each upstream request."`
}

// Upstream returns upstream options based on the provided flags.
func (c *JudgeMeConfig) Upstream() (internal.UpstreamOptions, error) {
	if len(c.APITokenFile) > 0 {
		c.APIToken = string(bytes.TrimSpace(c.APITokenFile))
	}
	if c.APIToken == "" {
		return internal.UpstreamOptions{}, fmt.Errorf("one of --api-token or --api-token-file is required")
	}
	return internal.UpstreamOptions{
		BaseURL:    c.JudgeMeURL,
		ShopDomain: c.ShopDomain,
		Token:      c.APIToken,
		UserAgent:  c.UserAgent,
		RPS:        c.RPS,
		Timeout:    c.UpstreamTimeout,
	}, nil
}

// Bust allows manually busting entries from the CLI.
type Bust struct {
	CacheConfig
	LogConfig

	IDs []string `arg:"" help:"Shopify IDs whose combined response should be busted, e.g. 123 456."`
}

// Run busts a cache key. Only shared layers outlive this process, so without
// Redis there's nothing to do.
func (b *Bust) Run() error {
	_ = b.LogConfig.Run()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if b.RedisAddr == "" {
		return fmt.Errorf("nothing to bust without --redis-addr")
	}

	opts, err := b.Options()
	if err != nil {
		return err
	}

	cache, err := internal.NewCache(ctx, opts)
	if err != nil {
		return err
	}

	key := internal.ReviewsKey(internal.NewIdentifierSet(b.IDs...))
	if _, ok := cache.Get(ctx, key); !ok {
		internal.Log(ctx).Info("nothing cached", "key", key)
		return nil
	}

	internal.Log(ctx).Info("busting", "key", key)
	return cache.Expire(ctx, key)
}

func init() {
	// Limit our memory to 90% of what's free. This affects cache sizes.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
