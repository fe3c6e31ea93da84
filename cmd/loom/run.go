package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomery/loom/internal/agent"
	"github.com/loomery/loom/internal/backend"
	"github.com/loomery/loom/internal/batcher"
	"github.com/loomery/loom/internal/config"
	"github.com/loomery/loom/internal/decompose"
	"github.com/loomery/loom/internal/learning"
	"github.com/loomery/loom/internal/orchestrator"
	"github.com/loomery/loom/pkg/models"
)

var (
	runRosterPath  string
	runParallelism int
	runNoPersist   bool
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Process one request through the pipeline",
	Long: `Decompose the request into subtasks, execute them against the
configured agents, and print each subtask's output.

Learned agent profiles are persisted between runs unless --no-persist
is given.

Examples:
  loom run "summarize the design tradeoffs of write-ahead logging"
  loom run --roster agents.yaml "implement a rate limiter in Go"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRosterPath, "roster", "", "Path to the agents roster YAML")
	runCmd.Flags().IntVar(&runParallelism, "parallelism", 0, "Max concurrent subtasks (0 = config default)")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "Do not load or save learned profiles")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress progress output")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, watcher, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	client, err := backend.NewClient(backend.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithBatcherConfig(batcher.Config{
			MaxBatchSize:       cfg.Batcher.MaxBatchSize,
			MaxWait:            cfg.Batcher.MaxWait,
			MaxBatchesInFlight: cfg.Batcher.MaxBatchesInFlight,
		}),
		orchestrator.WithDecomposerConfig(decompose.Config{
			PromptBudgetTokens: cfg.Decomposer.PromptBudgetTokens,
		}),
	}

	parallelism := cfg.Pipeline.Parallelism
	if runParallelism > 0 {
		parallelism = runParallelism
	}
	opts = append(opts, orchestrator.WithParallelism(parallelism))

	if cfg.Pipeline.DebugLog != "" {
		logger, err := orchestrator.NewDebugLogger(cfg.Pipeline.DebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		opts = append(opts, orchestrator.WithDebugLogger(logger))
	}

	var store *learning.ProfileStore
	if !runNoPersist {
		storePath := cfg.Pipeline.ProfileDB
		if storePath == "" {
			storePath = learning.DefaultStorePath()
		}
		store, err = learning.OpenStore(storePath)
		if err != nil {
			return fmt.Errorf("open profile store: %w", err)
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithStore(store))
	}

	orch, err := orchestrator.New(client, registry, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range orch.Events() {
			printEvent(ev)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	request := strings.Join(args, " ")
	result, err := orch.Process(ctx, request)
	closeErr := orch.Close()
	<-eventsDone
	if err != nil {
		return fmt.Errorf("process request: %w", err)
	}
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("!"), closeErr)
	}

	printResult(result)
	in, out := client.Tracker().Total()
	fmt.Printf("\nTokens used: %d in / %d out across %d API calls\n",
		in, out, client.Tracker().Calls())
	return nil
}

// buildRegistry loads the roster (flag, config, or built-in default) and
// starts a hot-reload watcher when a roster file is in play.
func buildRegistry(cfg *config.Config) (*agent.Registry, *config.RosterWatcher, error) {
	registry := agent.NewRegistry()

	rosterPath := runRosterPath
	if rosterPath == "" {
		rosterPath = cfg.Pipeline.RosterPath
	}
	if rosterPath == "" {
		for _, p := range config.DefaultRoster() {
			registry.Register(p)
		}
		return registry, nil, nil
	}

	profiles, err := config.LoadRoster(rosterPath)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range profiles {
		registry.Register(p)
	}

	watcher, err := config.WatchRoster(rosterPath,
		func(profiles []*models.AgentProfile) {
			applyRoster(registry, profiles)
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "%s roster reload: %v\n", color.YellowString("!"), err)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("watch roster: %w", err)
	}
	return registry, watcher, nil
}

// applyRoster merges a reloaded roster into the registry. New agents are
// registered; existing agents keep their learned state and only pick up
// capability changes.
func applyRoster(registry *agent.Registry, profiles []*models.AgentProfile) {
	for _, p := range profiles {
		if registry.Get(p.ID) == nil {
			registry.Register(p)
			continue
		}
		caps := p.Capabilities
		registry.Update(p.ID, func(existing *models.AgentProfile) {
			existing.Capabilities = caps
		})
	}
}

func printEvent(ev orchestrator.Event) {
	if runQuiet {
		return
	}
	switch ev.Type {
	case orchestrator.EventDecomposed:
		fmt.Printf("%s %s\n", color.CyanString("plan"), ev.Message)
	case orchestrator.EventSubtaskStarted:
		fmt.Printf("%s %s (%s) -> %s\n", color.CyanString("run "), ev.SubtaskID, ev.SubtaskType, ev.AgentID)
	case orchestrator.EventSubtaskCompleted:
		fmt.Printf("%s %s\n", color.GreenString("done"), ev.SubtaskID)
	case orchestrator.EventSubtaskFailed:
		fmt.Printf("%s %s: %v\n", color.RedString("fail"), ev.SubtaskID, ev.Error)
	case orchestrator.EventSubtaskBlocked:
		fmt.Printf("%s %s: %s\n", color.YellowString("skip"), ev.SubtaskID, ev.Message)
	}
}

func printResult(result *orchestrator.ProcessResult) {
	fmt.Printf("\n%s %d done, %d failed, %d blocked\n",
		color.New(color.Bold).Sprint("Result:"),
		result.Completed, result.Failed, result.Blocked)

	ordered := make([]*models.Subtask, len(result.Subtasks))
	copy(ordered, result.Subtasks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	for _, st := range ordered {
		output, ok := result.Outputs[st.ID]
		if !ok {
			continue
		}
		fmt.Printf("\n%s [%s via %s, %s]\n%s\n",
			color.New(color.Bold).Sprintf("-- subtask %d", st.Ordinal+1),
			st.Type, result.Assignments[st.ID],
			result.Latencies[st.ID].Round(time.Millisecond), output)
	}
}
