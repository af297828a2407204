package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cve-crawler/internal/crawler"
	"cve-crawler/internal/storage"
)

type Config struct {
	Crawl   crawler.Options      `mapstructure:"crawl"`
	Storage storage.Options      `mapstructure:"storage"`
	Writer  storage.WriterConfig `mapstructure:"writer"`
	Redis   RedisConfig          `mapstructure:"redis"`
	Kafka   KafkaConfig          `mapstructure:"kafka"`
	Log     LogConfig            `mapstructure:"log"`
}

// RedisConfig enables the crawl cache when Address is set.
type RedisConfig struct {
	Address string        `mapstructure:"address"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// KafkaConfig enables publishing of stored records when Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.1.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:77.0) Gecko/20100101 Firefox/77.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.97 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:77.0) Gecko/20100101 Firefox/77.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.97 Safari/537.36",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.roots", []string{
		"https://www.fortiguard.com/encyclopedia?type=ips&page=",
		"https://www.fortiguard.com/encyclopedia?type=forticlientvuln&page=",
	})
	v.SetDefault("crawl.user_agents", defaultUserAgents)
	v.SetDefault("crawl.entry_base_url", "")
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.listing_retries", 2)
	v.SetDefault("crawl.listing_retry_delay", 3*time.Second)
	v.SetDefault("crawl.rotate_every", 20)
	v.SetDefault("crawl.flush_every", 10)
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.request_timeout", 30*time.Second)
	v.SetDefault("crawl.flush_timeout", 30*time.Second)
	v.SetDefault("crawl.requests_per_second", 0)
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("crawl.skip_crawled", false)

	v.SetDefault("crawl.listing.results_tag", "div")
	v.SetDefault("crawl.listing.results_class", "results")
	v.SetDefault("crawl.listing.nav_tag", "nav")

	v.SetDefault("crawl.extract.content_tag", "section")
	v.SetDefault("crawl.extract.content_class", "ency_content")
	v.SetDefault("crawl.extract.title_tag", "h2")
	v.SetDefault("crawl.extract.title_class", "title")
	v.SetDefault("crawl.extract.description_tag", "p")
	v.SetDefault("crawl.extract.identifier_prefix", "CVE")

	v.SetDefault("storage.driver", "mongo")
	v.SetDefault("storage.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("storage.database", "vulnerabilities")
	v.SetDefault("storage.collection", "cve_references")
	v.SetDefault("storage.cassandra_hosts", []string{"localhost"})
	v.SetDefault("storage.keyspace", "crawler_keyspace")
	v.SetDefault("storage.table", "vulnerabilities")

	v.SetDefault("writer.batch_size", 500)
	v.SetDefault("writer.write_retries", 2)
	v.SetDefault("writer.write_retry_delay", 2*time.Second)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "vulnerability-records")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional YAML file given with
// --config, and CVECRAWLER_* environment variables, in increasing priority.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("crawler", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CVECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Crawl.Roots) == 0 {
		errs = append(errs, errors.New("crawl.roots is empty"))
	}
	if len(c.Crawl.UserAgents) < 2 {
		errs = append(errs, errors.New("crawl.user_agents needs at least 2 entries"))
	}
	if c.Crawl.Concurrency < 1 {
		errs = append(errs, errors.New("crawl.concurrency must be at least 1"))
	}
	if c.Crawl.ListingRetries < 0 {
		errs = append(errs, errors.New("crawl.listing_retries must not be negative"))
	}
	if c.Crawl.RotateEvery < 1 || c.Crawl.FlushEvery < 1 {
		errs = append(errs, errors.New("crawl.rotate_every and crawl.flush_every must be positive"))
	}
	if c.Crawl.Extract.IdentifierPrefix == "" {
		errs = append(errs, errors.New("crawl.extract.identifier_prefix is empty"))
	}
	if c.Writer.BatchSize < 1 {
		errs = append(errs, errors.New("writer.batch_size must be positive"))
	}
	if c.Writer.Retries < 0 {
		errs = append(errs, errors.New("writer.write_retries must not be negative"))
	}
	switch c.Storage.Driver {
	case "mongo", "cassandra":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not mongo or cassandra", c.Storage.Driver))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	return errors.Join(errs...)
}
