package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hrayleung/Jin-sub003/config"
	"github.com/hrayleung/Jin-sub003/core/database"
	"github.com/hrayleung/Jin-sub003/genengine"
	"github.com/hrayleung/Jin-sub003/genengine/contextcache"
	"github.com/hrayleung/Jin-sub003/genengine/domain"
	"github.com/hrayleung/Jin-sub003/genengine/providers"
	"github.com/hrayleung/Jin-sub003/genengine/repository"
	"github.com/hrayleung/Jin-sub003/genengine/session"
	valkeyInfra "github.com/hrayleung/Jin-sub003/infrastructure/valkey"
	"github.com/hrayleung/Jin-sub003/pkg/utils"
)

var (
	engine          *genengine.Engine
	transcriptStore *repository.TranscriptGormStore
	cacheRegistry   domain.CacheRegistry
	valkeyClient    *valkeyInfra.Client
)

var rootCmd = &cobra.Command{
	Use:   "jin",
	Short: "Streaming generation engine for LLM chat conversations",
	Long: `Jin's generation engine: provider-streamed responses with ordered
content accumulation, per-conversation session tracking and provider-side
context cache negotiation.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cobra.OnInitialize(initApp)
}

func initApp() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(cfg.Paths.Storages, 0755); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	// Transcript persistence
	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}
	transcriptStore = repository.NewTranscriptGormStore(db)
	if err := transcriptStore.Init(ctx); err != nil {
		logrus.Fatalf("failed to init transcript store: %v", err)
	}

	// Cache registry: Valkey when configured, in-memory otherwise.
	cacheRegistry = newCacheRegistry(cfg)

	// Provider adapters
	router := providers.NewRouter()
	gemini := providers.NewGeminiProvider(cfg.APIKeys.Gemini)
	router.Register(domain.ProviderGemini, gemini)
	router.Register(domain.ProviderVertex, providers.NewVertexProvider(cfg.APIKeys.Vertex))
	router.Register(domain.ProviderOpenAI, providers.NewOpenAIProvider(cfg.APIKeys.OpenAI))

	negotiator := contextcache.NewNegotiator(cacheRegistry, gemini)

	sessions := session.NewStore()
	runner := session.NewRunner(sessions, transcriptStore)
	engine = genengine.NewEngine(router, negotiator, sessions, runner)
}

func newCacheRegistry(cfg *config.Config) domain.CacheRegistry {
	if !cfg.Database.ValkeyEnabled {
		return repository.NewMemoryCacheRegistry()
	}

	client, err := valkeyInfra.NewClient(valkeyInfra.Config{
		Address:   cfg.Database.ValkeyAddress,
		Password:  cfg.Database.ValkeyPassword,
		DB:        cfg.Database.ValkeyDB,
		KeyPrefix: cfg.Database.ValkeyKeyPrefix,
	})
	if err != nil {
		logrus.WithError(err).Warn("[CACHE] Valkey unavailable, falling back to in-memory registry")
		return repository.NewMemoryCacheRegistry()
	}
	valkeyClient = client

	logrus.WithField("address", cfg.Database.ValkeyAddress).Info("[CACHE] Using Valkey cache registry")
	return repository.NewValkeyCacheRegistry(client)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of external connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if valkeyClient != nil {
		valkeyClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
