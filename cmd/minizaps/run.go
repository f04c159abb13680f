package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/logging"
	"github.com/soochol/minizaps/internal/repository"
	"github.com/soochol/minizaps/internal/services"
	"github.com/soochol/minizaps/internal/zaps"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// runCmd executes one workflow in-process against an in-memory store and
// prints its logs.
func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	payloadJSON := fs.String("payload", "{}", "trigger payload as a JSON object")
	maxRetries := fs.Int("max-retries", -1, "retry budget (default: engine.default_max_retries)")
	dir := fs.String("dir", "", "workflow definitions directory (overrides config)")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: minizaps run <workflow> [-payload JSON] [-max-retries N]")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.Logging.Format, "warn")
	if *dir != "" {
		cfg.Workflows.Dir = *dir
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(*payloadJSON), &payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store := repository.NewMemoryRunRepository()
	loader := definition.NewLoader(cfg.Workflows.Dir)
	runner := services.NewRunner(store, loader, connectors.NewDefaultRegistry(cfg.Engine.WebhookTimeout),
		services.WithRetryPolicy(cfg.Engine.Retry.Policy()),
	)
	svc := services.NewWorkflowService(ctx, store, loader, runner, cfg.Engine.DefaultMaxRetries)

	req := services.TriggerRequest{WorkflowName: fs.Arg(0), Payload: payload}
	if *maxRetries >= 0 {
		req.MaxRetries = maxRetries
	}
	rec, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	for _, line := range rec.Logs {
		fmt.Println(colorizeLog(line))
	}
	fmt.Printf("\n%s %s (run %s, %d retries)\n", bold("status:"), colorizeStatus(rec.Status), rec.ID, rec.RetryCount)
	if rec.Status != zaps.RunStatusSucceeded {
		return fmt.Errorf("workflow %s ended %s", rec.WorkflowName, rec.Status)
	}
	return nil
}

// reorderArgs moves flags ahead of positional arguments so
// "run notify -payload {}" parses like "run -payload {} notify".
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if !strings.Contains(a, "=") && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

func colorizeLog(line string) string {
	switch {
	case strings.Contains(line, "failed"):
		return red(line)
	case strings.Contains(line, "retry"), strings.Contains(line, "paused"), strings.Contains(line, "skipped"):
		return yellow(line)
	case strings.Contains(line, "succeeded"), strings.Contains(line, "completed"):
		return green(line)
	default:
		return line
	}
}

func colorizeStatus(s zaps.RunStatus) string {
	switch s {
	case zaps.RunStatusSucceeded:
		return green(string(s))
	case zaps.RunStatusFailed:
		return red(string(s))
	default:
		return yellow(string(s))
	}
}
