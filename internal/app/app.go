// Package app wires the stores, the decision pipeline and the transports
// together for the server and the admin CLI.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-autoreply/internal/automation"
	"whatsapp-autoreply/internal/businesshours"
	"whatsapp-autoreply/internal/config"
	"whatsapp-autoreply/internal/conversation"
	"whatsapp-autoreply/internal/handoff"
	"whatsapp-autoreply/internal/kv"
	"whatsapp-autoreply/internal/pipeline"
	"whatsapp-autoreply/internal/safety"
	"whatsapp-autoreply/internal/store"
	"whatsapp-autoreply/internal/whatsapp"
	"whatsapp-autoreply/internal/ws"
)

type Application struct {
	Config *config.Config
	DB     *gorm.DB

	KV            kv.Store
	Configs       *store.DeviceConfigRepository
	Rules         *store.RuleRepository
	ActionLogs    *store.ActionLogRepository
	Messages      *store.MessageRepository
	Gate          *safety.Gate
	Conversations *conversation.Store
	Hours         *businesshours.Evaluator
	Handoff       *handoff.Coordinator
	Engine        *automation.Engine
	Processor     *pipeline.Processor
	Client        *whatsapp.Client
	Hub           *ws.Hub

	sched *cron.Cron
}

// New builds every component on top of an open, migrated database.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Application, error) {
	kvStore, err := NewKV(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	return newApplication(cfg, db, kvStore), nil
}

func newApplication(cfg *config.Config, db *gorm.DB, kvStore kv.Store) *Application {
	a := &Application{
		Config:     cfg,
		DB:         db,
		KV:         kvStore,
		Configs:    store.NewDeviceConfigRepository(db),
		Rules:      store.NewRuleRepository(db),
		ActionLogs: store.NewActionLogRepository(db),
		Messages:   store.NewMessageRepository(db),
		Gate:       safety.New(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.KnownBotJIDs),
		Client:     whatsapp.NewClient(cfg),
		Hub:        ws.NewHub(),
	}
	a.Conversations = conversation.NewStore(kvStore, cfg.ConversationTTL, cfg.HandoffTTL)
	a.Hours = businesshours.NewEvaluator(a.Configs)
	a.Handoff = handoff.NewCoordinator(a.Conversations, a.Configs, a.ActionLogs, a.Hub)
	a.Engine = automation.NewEngine(a.Rules)
	a.Processor = &pipeline.Processor{
		Configs:       a.Configs,
		Gate:          a.Gate,
		Conversations: a.Conversations,
		Hours:         a.Hours,
		Handoff:       a.Handoff,
		Rules:         a.Engine,
		Audit:         a.ActionLogs,
		LookupTimeout: cfg.LookupTimeout,
	}
	return a
}

// NewKV opens the conversation store selected by KV_BACKEND. Shared backends
// are wrapped so the process keeps working on local memory while they are down.
func NewKV(ctx context.Context, cfg *config.Config, db *gorm.DB) (kv.Store, error) {
	switch cfg.KVBackend {
	case "memory":
		zap.L().Warn("conversation state is process-local; do not run more than one instance")
		return kv.NewMemory(), nil
	case "sql", "":
		return kv.NewFailover(kv.NewSQL(db), kv.NewMemory(), cfg.KVTimeout), nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load aws config: %w", err)
		}
		table, err := kv.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.KVDynamoTable)
		if err != nil {
			return nil, err
		}
		f := kv.NewFailover(table, kv.NewMemory(), cfg.KVTimeout)
		if err := f.Probe(ctx); err != nil {
			zap.L().Warn("dynamodb table not reachable at startup", zap.String("table", cfg.KVDynamoTable), zap.Error(err))
		}
		return f, nil
	default:
		return nil, fmt.Errorf("app: unsupported KV_BACKEND %q", cfg.KVBackend)
	}
}

// Start launches the websocket hub and the housekeeping jobs. Both stop when
// ctx is cancelled or Stop is called.
func (a *Application) Start(ctx context.Context) error {
	go a.Hub.Run(ctx)
	return a.startJobs()
}

func (a *Application) Stop() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	a.Hub.Wait()
}

// Scheduler is nil until Start.
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}
