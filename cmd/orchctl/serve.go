package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/batch"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/config"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/debate"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/events"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/jobstore"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/judge"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/metrics"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/notify"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/orchestrator"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/research"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/tui"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/worker"
	"github.com/hochfrequenz/llm-merge-orchestrator/web/api"
)

// openRouterBaseURL and tavilyBaseURL are the upstream gateways this
// process talks to; unlike model IDs and timeouts they are not
// operator-configurable, since both providers only run one API version.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	tavilyBaseURL     = "https://api.tavily.com"
)

var (
	scheduleConfigPath string
	slackWebhookURL    string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the async worker, and the batch scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&scheduleConfigPath, "schedule", "", "path to a TOML recurring-batch-job config")
	serveCmd.Flags().StringVar(&slackWebhookURL, "slack-webhook", "", "Slack incoming webhook URL for job notifications, overrides SLACK_WEBHOOK_URL")
	rootCmd.AddCommand(serveCmd)
}

// service bundles every long-running collaborator the HTTP API, the async
// worker, and the batch scheduler share. serve and watch both build one and
// differ only in what they foreground: serve blocks on the HTTP listener,
// watch blocks on the terminal dashboard.
type service struct {
	cfg     *config.Config
	store   *jobstore.Store
	worker  *worker.Worker
	sched   *batch.Scheduler
	metrics *metrics.Registry
	bus     *events.Bus
	server  *api.Server
}

func buildService() (*service, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	secrets := config.LoadSecrets()

	loader := prompts.DefaultLoader()
	modelClient := modelclient.New(openRouterBaseURL, secrets.OpenRouterAPIKey)
	searchClient := research.NewSearchClient(tavilyBaseURL, secrets.TavilyAPIKey)

	registry := metrics.New()
	modelClient.Metrics = registry

	judgeSynth := judge.New(modelClient, loader, cfg.Models.JudgeModel, cfg.Timeouts.Judge())
	judgeSynth.Metrics = registry
	judgeSynth.MaxAnswerLength = cfg.Limits.MaxAnswerLengthForJudge
	debateEngine := debate.New(modelClient, loader, cfg.Models.JudgeModel, cfg.Timeouts.JudgeFeedback(), cfg.Timeouts.Debate(), cfg.Limits.MaxDebateRounds)
	debateEngine.Metrics = registry

	orch := orchestrator.New(modelClient, judgeSynth, debateEngine, loader, orchestrator.Options{
		PerModelTimeout:   cfg.Timeouts.PerModel(),
		MaxRetries:        cfg.Limits.MaxRetries,
		MinModelsForJudge: cfg.Limits.MinModelsForJudge,
		EnableEarlyJudge:  cfg.Features.EnableEarlyJudge,
		EnableDebate:      cfg.Features.EnableDebate,
		MaxPromptLength:   cfg.Limits.MaxPromptLength,
		DefaultJudgeModel: cfg.Models.JudgeModel,
	})

	pipeline := research.New(searchClient, modelClient, debateEngine, judgeSynth, loader, research.Options{
		MaxSearchResults: cfg.Limits.MaxSearchResults,
		SearchTimeout:    cfg.Timeouts.PerModel(),
		ResearchTimeout:  cfg.Timeouts.ResearchModel(),
		MaxRetries:       cfg.Limits.MaxRetries,
	})

	store := jobstore.New()
	bus := events.NewBus()

	if webhook := slackWebhookURL; webhook == "" {
		slackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	}
	frontendOrigin := cfg.Web.FrontendOrigin
	jobNotifier := &notify.JobNotifier{
		Notifier: buildNotifier(slackWebhookURL),
		DetailURL: func(jobID string) string {
			if frontendOrigin == "" {
				return ""
			}
			return frontendOrigin + "/jobs/" + jobID
		},
	}

	w := worker.New(store, pipeline, cfg.Models.QueryModels)
	w.Notifier = jobNotifier
	w.Publisher = bus
	w.Metrics = registry

	var sched *batch.Scheduler
	if scheduleConfigPath != "" {
		scheduleCfg, err := batch.LoadScheduleConfig(scheduleConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load schedule: %w", err)
		}
		sched, err = batch.NewScheduler(scheduleCfg.Jobs)
		if err != nil {
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	server := api.NewServer(api.Deps{
		Query:             orch,
		Image:             modelClient,
		Jobs:              store,
		Trigger:           w,
		Metrics:           registry,
		FrontendOrigin:    cfg.Web.FrontendOrigin,
		PerModelTimeout:   cfg.Timeouts.PerModel(),
		ImageTimeout:      cfg.Timeouts.PerModel(),
		MaxPromptLength:   cfg.Limits.MaxPromptLength,
		DefaultModelIDs:   cfg.Models.QueryModels,
		DefaultJudgeModel: cfg.Models.JudgeModel,
		DefaultImageModel: cfg.Models.ImageModel,
	})

	return &service{cfg: cfg, store: store, worker: w, sched: sched, metrics: registry, bus: bus, server: server}, nil
}

func buildNotifier(webhookURL string) notify.Notifier {
	if webhookURL == "" {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notify.NewSlackNotifier(webhookURL))
}

// start launches the worker, the event bus, and (if configured) the batch
// scheduler as background goroutines bound to ctx, but does not start the
// HTTP listener — callers foreground either the HTTP server (serve) or the
// TUI (watch).
func (s *service) start(ctx context.Context) {
	go s.bus.Run()
	go events.LogListener(ctx, s.bus)
	go s.worker.Start(ctx)

	if s.sched != nil {
		runner := &batch.Runner{Store: s.store, Trigger: s.worker.Trigger}
		go s.sched.Start(runner.Run)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := buildService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.start(ctx)

	addr := fmt.Sprintf("%s:%d", svc.cfg.Web.Host, svc.cfg.Web.Port)
	fmt.Printf("orchctl serve: listening on %s\n", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.server.ListenAndServe(addr) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func runWatchService(cmd *cobra.Command, args []string) error {
	svc, err := buildService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.start(ctx)

	addr := fmt.Sprintf("%s:%d", svc.cfg.Web.Host, svc.cfg.Web.Port)
	go func() { _ = svc.server.ListenAndServe(addr) }()

	model := tui.NewModel(svc.store)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
