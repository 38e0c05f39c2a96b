// Package bootstrap wires the application together.
package bootstrap

import (
	"voiceout_server/adapter/out/persistence"
	"voiceout_server/adapter/out/provider"
	"voiceout_server/config"
	"voiceout_server/core/agent/llm"
	"voiceout_server/core/port/out"
	"voiceout_server/core/service/classification"
	"voiceout_server/core/service/connection"
	syncsvc "voiceout_server/core/service/sync"
	"voiceout_server/infra/database"
	"voiceout_server/pkg/crypto"
	"voiceout_server/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Dependencies holds all wired components and their cleanup order.
type Dependencies struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Cipher *crypto.Cipher

	Connections out.ConnectionRepository
	Inquiries   out.InquiryRepository
	SyncLogs    out.SyncLogRepository
	Locker      out.SyncLocker

	Classifier        classification.Classifier
	SyncService       *syncsvc.Service
	ConnectionService *connection.Service
	IMAPBatch         *syncsvc.IMAPBatch

	cleanups []func()
}

func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg}

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	deps.Cipher = cipher

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	deps.DB = db
	deps.cleanups = append(deps.cleanups, func() { db.Close() })

	// Redis backs the sync lock only; the pipeline works without it.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, sync locking disabled")
	} else {
		deps.Redis = redisClient
		deps.cleanups = append(deps.cleanups, func() { redisClient.Close() })
		deps.Locker = persistence.NewSyncLock(redisClient)
	}

	deps.Connections = persistence.NewConnectionAdapter(db, cipher)
	deps.Inquiries = persistence.NewInquiryAdapter(db)
	deps.SyncLogs = persistence.NewSyncLogAdapter(db)

	deps.Classifier = newClassifier(cfg)

	providers := []out.EmailProviderPort{
		provider.NewGmailAdapter(provider.GmailConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}),
		provider.NewOutlookAdapter(provider.OutlookConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			TenantID:     cfg.MicrosoftTenantID,
		}, deps.Connections),
		provider.NewYahooAdapter(provider.YahooConfig{
			ClientID:     cfg.YahooClientID,
			ClientSecret: cfg.YahooClientSecret,
		}, deps.Connections),
	}

	deps.SyncService = syncsvc.NewService(
		deps.Connections, deps.Inquiries, deps.SyncLogs,
		providers, deps.Classifier, deps.Locker)
	deps.ConnectionService = connection.NewService(deps.Connections, deps.SyncLogs, deps.Inquiries)
	deps.IMAPBatch = syncsvc.NewIMAPBatch(deps.Connections, deps.Inquiries, provider.NewIMAPClient(), cfg.IMAPServer)

	return deps, nil
}

// newClassifier picks the LLM analyzer when an API key is configured and the
// keyword heuristic otherwise.
func newClassifier(cfg *config.Config) classification.Classifier {
	if cfg.OpenAIAPIKey == "" {
		logger.Info("No LLM API key configured, using heuristic classifier")
		return classification.NewHeuristicClassifier()
	}
	client := llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})
	return classification.NewLLMClassifier(client)
}

// Cleanup releases resources in reverse acquisition order.
func (d *Dependencies) Cleanup() {
	for i := len(d.cleanups) - 1; i >= 0; i-- {
		d.cleanups[i]()
	}
}
