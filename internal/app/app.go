// Package app wires configuration into the dependency graph shared by the
// API server and the agent worker. All dependencies are passed explicitly;
// there are no package-level singletons.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/agent"
	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/client"
	"github.com/luminapay/invoice-lifecycle/internal/config"
	"github.com/luminapay/invoice-lifecycle/internal/decision"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
	"github.com/luminapay/invoice-lifecycle/internal/service"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// App is the assembled dependency graph.
type App struct {
	Cfg     *config.Config
	Log     zerolog.Logger
	Metrics *observability.Metrics

	Bus  bus.Bus
	pool *pgxpool.Pool

	Invoices *repository.InvoiceRepository
	Vendors  *repository.VendorRepository
	Budgets  *repository.BudgetRepository

	Extractor  client.DocumentExtractor
	Classifier client.BudgetClassifier
	Analyzer   client.ImpactAnalyzer
	Validator  client.AIValidator
	Alerts     client.AlertSender

	Choreographer *service.Choreographer
	Reviews       *service.ReviewService
	BudgetSvc     *service.BudgetService
}

// New builds the full graph. An empty database URL selects the in-memory
// store, an empty NATS URL the in-memory bus; both are meant for
// development and tests.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Cfg:     cfg,
		Log:     log,
		Metrics: observability.InitMetrics(prometheus.DefaultRegisterer),
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initBus(); err != nil {
		a.Close()
		return nil, err
	}
	a.initClients()

	a.Choreographer = service.NewChoreographer(a.Invoices, a.Bus, a.Metrics, log)
	a.Reviews = service.NewReviewService(a.Invoices, a.Budgets, a.Bus, a.Metrics, log)
	a.BudgetSvc = service.NewBudgetService(a.Budgets, log)

	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.Cfg.Database.URL == "" {
		a.Log.Warn().Msg("no database configured, using in-memory store")
		a.Invoices = repository.NewInvoiceRepository(store.NewMemory(store.TableNameInvoices))
		a.Vendors = repository.NewVendorRepository(store.NewMemory(store.TableNameVendors))
		a.Budgets = repository.NewBudgetRepository(store.NewMemory(store.TableNameBudgets))
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.Cfg.Database.URL)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = a.Cfg.Database.MaxConns
	poolCfg.MinConns = a.Cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	a.pool = pool

	invoices, err := store.NewPostgres(pool, store.TableNameInvoices, a.Log)
	if err != nil {
		return err
	}
	vendors, err := store.NewPostgres(pool, store.TableNameVendors, a.Log)
	if err != nil {
		return err
	}
	budgets, err := store.NewPostgres(pool, store.TableNameBudgets, a.Log)
	if err != nil {
		return err
	}

	a.Invoices = repository.NewInvoiceRepository(invoices)
	a.Vendors = repository.NewVendorRepository(vendors)
	a.Budgets = repository.NewBudgetRepository(budgets)
	return nil
}

func (a *App) initBus() error {
	if a.Cfg.NATS.URL == "" {
		a.Log.Warn().Msg("no NATS configured, using in-memory bus")
		mem := bus.NewMemoryBus()
		for sub, filter := range model.SubscriptionFilters() {
			mem.Provision(sub, filter)
		}
		a.Bus = mem
		return nil
	}

	js, err := bus.NewJetStreamBus(bus.JetStreamConfig{
		URL:           a.Cfg.NATS.URL,
		Stream:        a.Cfg.NATS.StreamName,
		Subscriptions: model.SubscriptionFilters(),
	}, a.Log)
	if err != nil {
		return err
	}
	a.Bus = js
	return nil
}

func (a *App) initClients() {
	a.Alerts = client.NewWebhookAlertSender(a.Cfg.Alerts.WebhookURL, a.Metrics, a.Log)

	if a.Cfg.Insights.BaseURL == "" {
		a.Log.Warn().Msg("no insights service configured, using static collaborators")
		a.Extractor = client.StaticExtractor{}
		a.Classifier = client.StaticClassifier{}
		a.Analyzer = client.StaticAnalyzer{}
		a.Validator = client.StaticValidator{}
		return
	}

	insights := client.NewInsightsClient(client.InsightsConfig{
		BaseURL:             a.Cfg.Insights.BaseURL,
		APIKey:              a.Cfg.Insights.APIKey,
		Timeout:             a.Cfg.Insights.Timeout,
		BreakerMaxRequests:  a.Cfg.Insights.BreakerMaxRequests,
		BreakerInterval:     a.Cfg.Insights.BreakerInterval,
		BreakerTimeout:      a.Cfg.Insights.BreakerTimeout,
		ConsecutiveFailures: a.Cfg.Insights.ConsecutiveFailures,
		Metrics:             a.Metrics,
	}, a.Log)
	a.Extractor = insights
	a.Classifier = insights
	a.Analyzer = insights
	a.Validator = insights
}

// Processors builds all stage processors against the graph.
func (a *App) Processors() []agent.Processor {
	evaluator := decision.NewImpactEvaluator(
		a.Invoices, a.Budgets, a.Classifier, a.Analyzer, a.Alerts, "budget-agent", a.Metrics, a.Log)

	return []agent.Processor{
		agent.NewIntakeProcessor(a.Invoices, a.Extractor, a.Metrics, a.Log),
		agent.NewValidationProcessor(a.Invoices, a.Vendors, a.Validator, a.Metrics, a.Log),
		agent.NewBudgetProcessor(a.Invoices, evaluator, a.Log),
		agent.NewApprovalProcessor(a.Invoices, a.Vendors, a.Budgets, a.Metrics, a.Log),
		agent.NewPaymentProcessor(a.Invoices, a.Metrics, a.Log),
		agent.NewSettlementProcessor(a.Invoices, a.Metrics, a.Log),
		agent.NewAnalyticsProcessor(a.Log),
	}
}

// Close releases the bus and database connections.
func (a *App) Close() {
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Log.Error().Err(err).Msg("bus close failed")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
