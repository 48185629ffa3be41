package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiwf/engine/cmd/worker/coordinator"
	"github.com/aiwf/engine/cmd/worker/handlers"
	"github.com/aiwf/engine/cmd/worker/orchestrator"
	"github.com/aiwf/engine/common/bootstrap"
	"github.com/aiwf/engine/common/cache"
	"github.com/aiwf/engine/common/clients"
	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/queue"
	"github.com/aiwf/engine/common/repository"
)

// workflowCacheTTL bounds staleness for the worker's workflow reads.
// Definitions referenced by in-flight runs are immutable, so a short TTL
// just caps memory.
const workflowCacheTTL = 5 * time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "worker",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.InitSchema(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("worker starting")

	runRepo := repository.NewRunRepository(components.DB)
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	logRepo := repository.NewRunLogRepository(components.DB)
	docRepo := repository.NewDocumentRepository(components.DB)

	workflowCache := cache.NewMemoryCache()
	defer workflowCache.Close()
	workflows := repository.NewCachedWorkflowReader(workflowRepo, workflowCache, workflowCacheTTL)

	orch := orchestrator.New(runRepo, workflows, logRepo, components.Queue, components.Logger)
	coord := coordinator.New(runRepo, workflows, logRepo, components.Queue, components.Logger)
	runner := handlers.NewRunner(runRepo, logRepo, components.Queue, components.Logger,
		buildHandlers(components, docRepo, logRepo)...)

	errChan := subscribeQueues(ctx, components, orch, coord, runner)

	components.Logger.Info("worker started",
		"queues", []string{queue.QueueDefault, queue.QueueIngest, queue.QueueAI, queue.QueueActions})

	waitForShutdown(ctx, cancel, errChan, components)

	components.Logger.Info("worker shutting down gracefully")
}

// buildHandlers wires the twelve node handlers with their provider
// clients. A nil provider client leaves the handler in fallback mode, so
// missing credentials degrade output quality instead of failing runs.
func buildHandlers(components *bootstrap.Components, docRepo *repository.DocumentRepository, logRepo *repository.RunLogRepository) []handlers.Handler {
	cfg := components.Config

	var ai clients.AIClient
	if c := clients.NewOpenAIClient(cfg); c != nil {
		ai = c
	}
	var slackClient clients.SlackClient
	if c := clients.NewSlackClient(cfg); c != nil {
		slackClient = c
	}
	var sheetsClient clients.SheetsClient
	if c := clients.NewSheetsClient(cfg); c != nil {
		sheetsClient = c
	}
	var notionClient clients.NotionClient
	if c := clients.NewNotionClient(cfg); c != nil {
		notionClient = c
	}
	var twilioClient clients.TwilioClient
	if c := clients.NewTwilioClient(cfg); c != nil {
		twilioClient = c
	}
	var mailer clients.EmailClient
	if c := clients.NewSMTPMailer(cfg); c != nil {
		mailer = c
	}

	components.Logger.Info("provider clients configured",
		"openai", ai != nil,
		"slack", slackClient != nil,
		"sheets", sheetsClient != nil,
		"notion", notionClient != nil,
		"twilio", twilioClient != nil,
		"smtp", mailer != nil)

	return []handlers.Handler{
		handlers.NewPDFHandler(docRepo),
		handlers.NewURLHandler(docRepo, clients.NewHTTPFetcher(cfg)),
		handlers.NewWebhookHandler(docRepo),
		handlers.NewRAGHandler(ai, docRepo, logRepo),
		handlers.NewSummarizeHandler(ai, logRepo),
		handlers.NewClassifyHandler(ai, logRepo),
		handlers.NewTransformHandler(),
		handlers.NewSlackHandler(slackClient, logRepo),
		handlers.NewSheetsHandler(sheetsClient, logRepo),
		handlers.NewEmailHandler(mailer, logRepo),
		handlers.NewNotionHandler(notionClient, logRepo),
		handlers.NewTwilioHandler(twilioClient, logRepo),
	}
}

// subscribeQueues starts one consumer loop per queue. The default queue
// multiplexes the two control actors; node task queues go straight to the
// handler runner.
func subscribeQueues(ctx context.Context, components *bootstrap.Components, orch *orchestrator.Orchestrator, coord *coordinator.Coordinator, runner *handlers.Runner) chan error {
	concurrency := components.Config.Broker.Concurrency

	control := controlMux(components, orch, coord)

	subs := []struct {
		name    string
		handler queue.Handler
	}{
		{queue.QueueDefault, control},
		{queue.QueueIngest, runner.HandleDelivery},
		{queue.QueueAI, runner.HandleDelivery},
		{queue.QueueActions, runner.HandleDelivery},
	}

	errChan := make(chan error, len(subs))
	for _, sub := range subs {
		sub := sub
		go func() {
			components.Logger.Info("subscribing", "queue", sub.name, "concurrency", concurrency[sub.name])
			err := components.Queue.Subscribe(ctx, sub.name, concurrency[sub.name], sub.handler)
			if err != nil && err != context.Canceled {
				errChan <- fmt.Errorf("queue %s consumer error: %w", sub.name, err)
			}
		}()
	}
	return errChan
}

// controlMux routes default-queue messages by actor name.
func controlMux(components *bootstrap.Components, orch *orchestrator.Orchestrator, coord *coordinator.Coordinator) queue.Handler {
	return func(ctx context.Context, d queue.Delivery) error {
		actor := queue.PeekActor(d.Body)
		switch actor {
		case queue.ActorRunStart:
			return orch.HandleRunStart(ctx, d)
		case queue.ActorNodeCompleted:
			return coord.HandleNodeCompleted(ctx, d)
		default:
			components.Logger.Error("unknown control actor", "actor", actor)
			return nil
		}
	}
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errChan chan error, components *bootstrap.Components) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("component failed", "error", err)
		cancel()
		os.Exit(1)
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
}
