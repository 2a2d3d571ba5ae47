package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neighborsos/internal/analytics"
	"neighborsos/internal/client"
	"neighborsos/internal/config"
	"neighborsos/internal/csrf"
	"neighborsos/internal/events"
	"neighborsos/internal/gate"
	"neighborsos/internal/geo"
	"neighborsos/internal/identity"
	"neighborsos/internal/mailer"
	"neighborsos/internal/models"
	"neighborsos/internal/ratelimit"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/repository/redis"
	"neighborsos/internal/search"
	"neighborsos/internal/service"
	"neighborsos/internal/util"
)

// Factory wires the whole dependency graph: clients, repositories,
// limiters, services. Postgres and Redis are mandatory (the gate and
// limiter fail without them); Kafka, ClickHouse, Elasticsearch, and
// SMTP are optional and degrade to no-ops when unconfigured.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	postgresClient   *client.PostgresClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Cross-cutting pieces
	resolver  identity.Resolver
	publisher events.Publisher
	sender    mailer.Sender
	sink      *analytics.Sink
	locator   *geo.Locator
	issuer    *csrf.Issuer

	// Limiters
	emailLimiter   *ratelimit.Limiter
	contactLimiter *ratelimit.Limiter
	claimLimiter   *ratelimit.Limiter

	// Repositories
	accessGrants *postgres.AccessGrantRepository
	admins       *postgres.AdminRepository
	signups      *postgres.EmailSignupRepository
	charityRepo  *postgres.CharityRepository
	needRepo     *postgres.NeedRepository
	familyRepo   *postgres.FamilyRepository
	storyRepo    *postgres.StoryRepository

	// Services
	accessService      *service.AccessService
	charityService     *service.CharityService
	marketplaceService *service.MarketplaceService

	accessGate *gate.Gate

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads config, initializes logging, and brings the whole
// graph up. Any failure on a mandatory dependency is fatal to startup.
func NewFactory() (*Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	f.initializeRepositories()
	f.initializeLimiters()
	f.initializeServices()

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.KafkaEnabled()),
		util.Bool("clickhouse_enabled", cfg.ClickhouseEnabled()),
		util.Bool("elasticsearch_enabled", cfg.ElasticsearchEnabled()),
		util.Bool("mail_enabled", cfg.MailEnabled()),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Mandatory: the gate reads grants from Postgres, the limiters
	// count in Redis.
	pg, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = pg
	if err := pg.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}

	rc, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = rc
	if err := rc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	// Optional: each falls back to a no-op when unconfigured, and a
	// failed init is only fatal in production.
	if f.config.KafkaEnabled() {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("kafka: %w", err)
			}
			util.Warn("Kafka producer initialization failed, proceeding without events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.ClickhouseEnabled() {
		if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("clickhouse: %w", err)
			}
			util.Warn("ClickHouse initialization failed, proceeding without analytics", util.ErrorField(err))
		} else {
			f.clickhouseClient = ch
			sink, err := analytics.NewSink(ctx, ch)
			if err != nil {
				if f.config.IsProduction() {
					return fmt.Errorf("analytics sink: %w", err)
				}
				util.Warn("Analytics sink initialization failed", util.ErrorField(err))
			} else {
				f.sink = sink
			}
		}
	}

	if f.config.ElasticsearchEnabled() {
		if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("elasticsearch: %w", err)
			}
			util.Warn("Elasticsearch initialization failed, proceeding with SQL search", util.ErrorField(err))
		} else {
			f.esClient = es
		}
	}

	f.resolver = identity.NewSupabaseResolver(f.config)
	f.locator = geo.NewLocator("")
	f.issuer = csrf.NewIssuer(f.config.Mail.APISecret+f.config.Auth.AnonKey, f.config.IsProduction())

	if f.kafkaProducer != nil {
		f.publisher = events.NewKafkaPublisher(f.kafkaProducer)
	} else {
		f.publisher = events.NopPublisher{}
	}

	if f.config.MailEnabled() {
		f.sender = mailer.NewSender(f.config)
	} else {
		f.sender = mailer.NopSender{}
	}

	return nil
}

func (f *Factory) initializeRepositories() {
	db := f.postgresClient.DB
	f.accessGrants = postgres.NewAccessGrantRepository(db)
	f.admins = postgres.NewAdminRepository(db)
	f.signups = postgres.NewEmailSignupRepository(db)
	f.charityRepo = postgres.NewCharityRepository(db)
	f.needRepo = postgres.NewNeedRepository(db)
	f.familyRepo = postgres.NewFamilyRepository(db)
	f.storyRepo = postgres.NewStoryRepository(db)
}

func (f *Factory) initializeLimiters() {
	cache := redis.NewRateLimitCache(f.redisClient)
	f.emailLimiter = ratelimit.NewEmailLimiter(cache)
	f.contactLimiter = ratelimit.NewContactLimiter(cache)
	f.claimLimiter = ratelimit.NewClaimLimiter(cache)
}

func (f *Factory) initializeServices() {
	f.accessService = service.NewAccessService(f.accessGrants, f.admins, f.signups)
	f.charityService = service.NewCharityService(f.charityRepo, f.storyRepo, f.publisher, f.sender)

	var index service.NeedIndexer
	if f.esClient != nil {
		index = search.NewNeedsIndex(f.esClient)
	}
	f.marketplaceService = service.NewMarketplaceService(
		f.needRepo,
		f.familyRepo,
		f.charityRepo,
		index,
		f.locator,
		f.publisher,
		f.sender,
	)

	var recorder gate.DenialRecorder = analytics.NopSink{}
	if f.sink != nil {
		recorder = f.sink
	}
	f.accessGate = gate.New(f.resolver, f.accessGrants, recorder)
}

// HealthCheck probes every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if err := f.postgresClient.HealthCheck(ctx); err != nil {
		healthErrors["postgres"] = err
	}
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		healthErrors["redis"] = err
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.postgresClient != nil {
			if err := f.postgresClient.Close(); err != nil {
				util.Error("Failed to close Postgres client", util.ErrorField(err))
			}
		}

		util.Sync()
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config                  { return f.config }
func (f *Factory) AccessGate() *gate.Gate                  { return f.accessGate }
func (f *Factory) Resolver() identity.Resolver             { return f.resolver }
func (f *Factory) Issuer() *csrf.Issuer                    { return f.issuer }
func (f *Factory) Sender() mailer.Sender                   { return f.sender }
func (f *Factory) Sink() *analytics.Sink                   { return f.sink }
func (f *Factory) EmailLimiter() *ratelimit.Limiter        { return f.emailLimiter }
func (f *Factory) ContactLimiter() *ratelimit.Limiter      { return f.contactLimiter }
func (f *Factory) ClaimLimiter() *ratelimit.Limiter        { return f.claimLimiter }
func (f *Factory) AccessService() *service.AccessService   { return f.accessService }
func (f *Factory) CharityService() *service.CharityService { return f.charityService }
func (f *Factory) MarketplaceService() *service.MarketplaceService {
	return f.marketplaceService
}
