package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/browserpilot/browserpilot/internal/browser"
	"github.com/browserpilot/browserpilot/internal/config"
	"github.com/browserpilot/browserpilot/internal/llm"
	"github.com/browserpilot/browserpilot/internal/planner"
	"github.com/browserpilot/browserpilot/internal/task"
	"github.com/browserpilot/browserpilot/pkg/logger"
)

func main() {
	planPath := flag.String("plan", "", "path to a TaskPlan JSON file")
	taskText := flag.String("task", "", "natural-language task (planned via LLM)")
	startURL := flag.String("url", "", "optional start URL opened before the plan runs")
	configPath := flag.String("config", "", "path to browserpilot.yaml")
	backend := flag.String("backend", "", "browser backend: chromedp or playwright")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *verbose {
		cfg.Verbose = true
	}

	level := logger.INFO
	if cfg.Verbose {
		level = logger.DEBUG
	}
	lg := logger.New(level, "browserpilot")

	if *planPath == "" && *taskText == "" {
		text, err := promptTask()
		if err != nil {
			fmt.Fprintln(os.Stderr, "either -plan or -task is required")
			flag.Usage()
			os.Exit(2)
		}
		*taskText = text
	}

	ctx := context.Background()

	plan, err := loadPlan(ctx, *planPath, *taskText, cfg.Model)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}

	timing := cfg.TaskTiming()

	var b interface {
		task.Browser
		Close()
	}
	switch cfg.Backend {
	case config.BackendPlaywright:
		b, err = browser.NewPlaywright(cfg.Headless, timing, lg)
	default:
		b, err = browser.NewChromedp(cfg.Headless, timing, lg)
	}
	if err != nil {
		log.Fatalf("browser: %v", err)
	}
	defer b.Close()

	llmClient, err := llm.NewOpenAIClient(cfg.Model)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	state := task.NewStateManager()
	extractor := task.NewLLMExtractor(llmClient, nil, lg)
	handler := task.NewActionHandler(state, b, extractor, timing, lg)
	executor := task.NewExecutor(state, handler, timing, lg)

	unsubscribe := executor.Subscribe(progressPrinter())
	defer unsubscribe()

	var initial *task.PageContext
	if *startURL != "" {
		initial, err = b.Navigate(ctx, *startURL)
		if err != nil {
			log.Fatalf("start url: %v", err)
		}
	}

	runErr := executor.ExecuteTask(ctx, plan, initial)
	printReport(executor.GetState(), plan)

	if runErr != nil {
		os.Exit(1)
	}
}

// promptTask asks for a task on stdin when neither -plan nor -task was given.
func promptTask() (string, error) {
	fmt.Print("Task: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty task")
	}
	return line, nil
}

func loadPlan(ctx context.Context, planPath, taskText, model string) (*task.TaskPlan, error) {
	if planPath != "" {
		data, err := os.ReadFile(planPath)
		if err != nil {
			return nil, err
		}
		return planner.ParsePlan(data)
	}

	p, err := planner.NewOpenAIPlanner(model)
	if err != nil {
		return nil, err
	}
	plan, err := p.BuildPlan(ctx, taskText)
	if err != nil {
		return nil, err
	}

	fmt.Println("PLAN:")
	for i, a := range plan.Actions {
		fmt.Printf("  %d. [%s] %s: %s\n", i+1, a.Type, a.ID, a.Description)
	}
	return plan, nil
}

// progressPrinter prints each action status change exactly once.
func progressPrinter() task.Listener {
	last := make(map[string]task.ActionStatus)
	return func(s task.ExecutionState) {
		for id, status := range s.ActionStatuses {
			if last[id] != status {
				last[id] = status
				fmt.Printf("  -> %s: %s\n", id, status)
			}
		}
	}
}

func printReport(state task.ExecutionState, plan *task.TaskPlan) {
	fmt.Println("\n===== EXECUTION REPORT =====")
	for _, a := range plan.Actions {
		status, ok := state.ActionStatuses[a.ID]
		if !ok {
			status = task.StatusPending
		}
		fmt.Printf("%-10s %s (%s)\n", status, a.ID, a.Type)
		if result, ok := state.Results[a.ID]; ok && result != "" {
			fmt.Printf("           result: %s\n", result)
		}
	}

	// Fallback actions are not part of the plan but may carry results.
	planned := make(map[string]bool, len(plan.Actions))
	for _, a := range plan.Actions {
		planned[a.ID] = true
	}
	extra := make([]string, 0)
	for id := range state.Results {
		if !planned[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		fmt.Printf("%-10s %s\n", state.ActionStatuses[id], id)
		fmt.Printf("           result: %s\n", state.Results[id])
	}

	if state.Error != "" {
		fmt.Printf("\nFINAL STATUS: ERROR: %s\n", state.Error)
	} else {
		fmt.Println("\nFINAL STATUS: SUCCESS")
	}
}
