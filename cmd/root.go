package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "cv-matcher"
	envPrefix = "CV_MATCHER"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        AIConfig        `mapstructure:"ai"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	CVs       CVsConfig       `mapstructure:"cvs"`
	Shortlist ShortlistConfig `mapstructure:"shortlist"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Events    EventsConfig    `mapstructure:"events"`
	Lock      LockConfig      `mapstructure:"lock"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AIConfig struct {
	Provider            string        `mapstructure:"provider"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max-retries"`
	RequestsPerMinute   int           `mapstructure:"requests-per-minute"`
	EmbeddingDimensions int           `mapstructure:"embedding-dimensions"`
	FallbackDimensions  int           `mapstructure:"fallback-dimensions"`
	MaxLogLength        int           `mapstructure:"max-log-length"`
	Ollama              OllamaConfig  `mapstructure:"ollama"`
	Gemini              GeminiConfig  `mapstructure:"gemini"`
}

type OllamaConfig struct {
	Host           string `mapstructure:"host"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type GeminiConfig struct {
	APIKey               string `mapstructure:"api-key" json:"-"`
	APIKeyFile           string `mapstructure:"api-key-file"`
	Model                string `mapstructure:"model"`
	EmbeddingModel       string `mapstructure:"embedding-model"`
	OutputDimensionality int    `mapstructure:"output-dimensionality"`
}

type JobsConfig struct {
	CSV string `mapstructure:"csv"`
}

type CVsConfig struct {
	Dir string     `mapstructure:"dir"`
	S3  S3Settings `mapstructure:"s3"`
}

type S3Settings struct {
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access-key"`
	SecretKey     string `mapstructure:"secret-key" json:"-"`
	SecretKeyFile string `mapstructure:"secret-key-file"`
}

type ShortlistConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type SMTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password" json:"-"`
	PasswordFile string        `mapstructure:"password-file"`
	From         string        `mapstructure:"from"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	Slots    []string      `mapstructure:"slots"`
	Meeting  string        `mapstructure:"meeting"`
	Duration string        `mapstructure:"duration"`
	Interval time.Duration `mapstructure:"interval"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp-url" json:"-"`
	Exchange string `mapstructure:"exchange"`
}

type LockConfig struct {
	RedisAddress  string        `mapstructure:"redis-address"`
	RedisPassword string        `mapstructure:"redis-password" json:"-"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-matcher matches resumes against job descriptions and invites the best candidates to interviews",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "recruitment.db")

	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max-retries", 3)
	v.SetDefault("ai.requests-per-minute", 0)
	v.SetDefault("ai.embedding-dimensions", 0)
	v.SetDefault("ai.fallback-dimensions", 4096)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.ollama.host", "http://localhost:11434")
	v.SetDefault("ai.ollama.model", "llama3.1")
	v.SetDefault("ai.ollama.embedding-model", "")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.embedding-model", "text-embedding-004")
	v.SetDefault("ai.gemini.output-dimensionality", 0)

	v.SetDefault("jobs.csv", "data/job_description.csv")

	v.SetDefault("cvs.dir", "data/CVs1")
	v.SetDefault("cvs.s3.bucket", "")
	v.SetDefault("cvs.s3.prefix", "")
	v.SetDefault("cvs.s3.endpoint", "")
	v.SetDefault("cvs.s3.region", "auto")
	v.SetDefault("cvs.s3.access-key", "")
	v.SetDefault("cvs.s3.secret-key", "")
	v.SetDefault("cvs.s3.secret-key-file", "")

	v.SetDefault("shortlist.threshold", 70)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.password-file", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.timeout", "30s")

	v.SetDefault("notify.slots", []string{
		"Monday, 10:00 AM",
		"Tuesday, 2:00 PM",
		"Wednesday, 11:30 AM",
		"Thursday, 4:00 PM",
		"Friday, 1:00 PM",
	})
	v.SetDefault("notify.meeting", "Google Meet")
	v.SetDefault("notify.duration", "45 minutes")
	v.SetDefault("notify.interval", "0s")

	v.SetDefault("events.amqp-url", "")
	v.SetDefault("events.exchange", "recruitment")

	v.SetDefault("lock.redis-address", "")
	v.SetDefault("lock.redis-password", "")
	v.SetDefault("lock.key", "cv-matcher:pipeline")
	v.SetDefault("lock.ttl", "30m")
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func initConfig() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(replacer())
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults and environment are enough when no file is given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

// getConfig decodes the merged settings. Durations are parsed from strings
// and lists may be given as one string separated by semicolons.
func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	config := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(";"),
		),
		WeaklyTypedInput: true,
		Result:           config,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, err
	}

	return config, nil
}
