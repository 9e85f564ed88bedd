package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/ai/gemini"
	"github.com/spigell/cv-matcher/internal/ai/ollama"
	"github.com/spigell/cv-matcher/internal/events"
	"github.com/spigell/cv-matcher/internal/ingest"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matching"
	"github.com/spigell/cv-matcher/internal/notify"
	"github.com/spigell/cv-matcher/internal/runlock"
	"github.com/spigell/cv-matcher/internal/secrets"
	"github.com/spigell/cv-matcher/internal/shortlist"
	"github.com/spigell/cv-matcher/internal/store"
	"github.com/spigell/cv-matcher/internal/summarize"
)

// env is what every command needs: a logger, the decoded config and a
// migrated store. close releases everything opened on demand.
type env struct {
	ctx    context.Context
	logger *zap.Logger
	config *Config
	store  *store.Store

	call    *ai.CallOptions
	closers []func() error
}

// setup builds the logger, decodes the config and opens the migrated store.
// Failures are fatal.
func setup(name string) (*env, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-matcher", zap.String("version", version), zap.String("command", name))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	st, err := store.Open(store.Config{
		Driver: config.Database.Driver,
		DSN:    config.Database.DSN,
		Debug:  viper.GetBool("debug"),
	}, logger)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("migrating the database", zap.Error(err))
	}

	e := &env{ctx: ctx, logger: logger, config: config, store: st}
	e.closers = append(e.closers, st.Close)

	return e, func() {
		e.close()
		cancel()
	}
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("closing resources", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

// callOptions are shared by chat and embedding clients, so one limiter
// throttles both.
func (e *env) callOptions() ai.CallOptions {
	if e.call == nil {
		e.call = &ai.CallOptions{
			Timeout:    e.config.AI.Timeout,
			MaxRetries: e.config.AI.MaxRetries,
			Limiter:    ai.NewLimiter(e.config.AI.RequestsPerMinute),
		}
	}
	return *e.call
}

func (e *env) provider() string {
	return strings.ToLower(strings.TrimSpace(e.config.AI.Provider))
}

func (e *env) geminiConfig() (gemini.Config, error) {
	cfg := e.config.AI
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return gemini.Config{}, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	return gemini.Config{
		APIKey:               apiKey,
		Model:                cfg.Gemini.Model,
		EmbeddingModel:       cfg.Gemini.EmbeddingModel,
		OutputDimensionality: cfg.Gemini.OutputDimensionality,
		MaxLogLength:         cfg.MaxLogLength,
		Call:                 e.callOptions(),
	}, nil
}

func (e *env) ollamaConfig() ollama.Config {
	cfg := e.config.AI
	return ollama.Config{
		Host:           cfg.Ollama.Host,
		Model:          cfg.Ollama.Model,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
		MaxLogLength:   cfg.MaxLogLength,
		Call:           e.callOptions(),
	}
}

func (e *env) generator() (ai.Generator, error) {
	switch e.provider() {
	case "", ai.ProviderOllama:
		return ollama.NewGenerator(e.ollamaConfig(), e.logger)
	case ai.ProviderGemini:
		cfg, err := e.geminiConfig()
		if err != nil {
			return nil, err
		}
		return gemini.NewGenerator(e.ctx, cfg, e.logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", e.config.AI.Provider)
	}
}

func (e *env) embeddingModel() (ai.EmbeddingModel, error) {
	switch e.provider() {
	case "", ai.ProviderOllama:
		return ollama.NewEmbedder(e.ollamaConfig(), e.logger)
	case ai.ProviderGemini:
		cfg, err := e.geminiConfig()
		if err != nil {
			return nil, err
		}
		return gemini.NewEmbedder(e.ctx, cfg, e.logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", e.config.AI.Provider)
	}
}

func (e *env) summarizer() (*summarize.Summarizer, error) {
	generator, err := e.generator()
	if err != nil {
		return nil, fmt.Errorf("building a language model client: %w", err)
	}
	return summarize.New(generator, e.logger), nil
}

func (e *env) jobRunner() (*summarize.JobRunner, error) {
	summarizer, err := e.summarizer()
	if err != nil {
		return nil, err
	}
	return summarize.NewJobRunner(e.store, summarizer, e.logger), nil
}

func (e *env) matcher() (*matching.Matcher, error) {
	summarizer, err := e.summarizer()
	if err != nil {
		return nil, err
	}

	model, err := e.embeddingModel()
	if err != nil {
		return nil, fmt.Errorf("building an embedding client: %w", err)
	}

	embedder := matching.NewEmbedder(e.ctx, model, matching.EmbedderConfig{
		Dimensions:         e.config.AI.EmbeddingDimensions,
		FallbackDimensions: e.config.AI.FallbackDimensions,
	}, e.logger)

	e.logger.Info("embedding model ready",
		append(logger.CommonFields(e.provider(), model.Model()), zap.Int("dimensions", embedder.Dimensions()))...,
	)

	return matching.NewMatcher(e.store, summarizer, matching.NewScorer(embedder), e.logger), nil
}

// source returns the S3 bucket when one is configured, the directory otherwise.
// dir overrides both.
func (e *env) source(dir string) (ingest.Source, error) {
	if dir != "" {
		return ingest.DirSource{Dir: dir}, nil
	}

	s3cfg := e.config.CVs.S3
	if s3cfg.Bucket == "" {
		return ingest.DirSource{Dir: e.config.CVs.Dir}, nil
	}

	secretKey, err := secrets.LoadOptional(secrets.Source{
		Name:  "s3 secret key",
		Value: s3cfg.SecretKey,
		File:  s3cfg.SecretKeyFile,
	})
	if err != nil {
		return nil, err
	}

	return ingest.NewS3Source(e.ctx, ingest.S3Config{
		Bucket:    s3cfg.Bucket,
		Prefix:    s3cfg.Prefix,
		Endpoint:  s3cfg.Endpoint,
		Region:    s3cfg.Region,
		AccessKey: s3cfg.AccessKey,
		SecretKey: secretKey,
	})
}

func (e *env) publisher() shortlist.Publisher {
	cfg := e.config.Events
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}

	p, err := events.Dial(cfg.AMQPURL, cfg.Exchange, e.logger)
	if err != nil {
		e.logger.Warn("shortlist events are disabled", zap.Error(err))
		return events.Noop{}
	}
	e.closers = append(e.closers, p.Close)
	return p
}

func (e *env) shortlister() *shortlist.Shortlister {
	return shortlist.New(e.store, e.publisher(), e.logger)
}

func (e *env) notifier() (*notify.Notifier, error) {
	cfg := e.config.SMTP
	password, err := secrets.Load(secrets.Source{
		Name:  "smtp password",
		Value: cfg.Password,
		File:  cfg.PasswordFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set smtp.password-file or CV_MATCHER_SMTP_PASSWORD)", err)
	}

	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return notify.New(e.store, mailer, notify.Config{
		Slots:    e.config.Notify.Slots,
		Meeting:  e.config.Notify.Meeting,
		Duration: e.config.Notify.Duration,
		Interval: e.config.Notify.Interval,
	}, e.logger), nil
}

func (e *env) locker() (runlock.Locker, error) {
	cfg := e.config.Lock
	if cfg.RedisAddress == "" {
		return runlock.Noop{}, nil
	}

	locker, client, err := runlock.NewRedis(runlock.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		Key:      cfg.Key,
		TTL:      cfg.TTL,
	}, e.logger)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, client.Close)
	return locker, nil
}

// withLock runs fn while holding the pipeline lock.
func (e *env) withLock(fn func() error) error {
	locker, err := e.locker()
	if err != nil {
		return err
	}

	release, err := locker.Acquire(e.ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(e.ctx)); err != nil {
			e.logger.Warn("releasing pipeline lock failed", zap.Error(err))
		}
	}()

	return fn()
}
