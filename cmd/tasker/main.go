package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/viant/tasker"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/server"
	"github.com/viant/tasker/service/event"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var showVersion bool
	root := flag.NewFlagSet("tasker", flag.ContinueOnError)
	root.SetOutput(stderr)
	root.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := root.Parse(args); err != nil {
		return 2
	}
	if showVersion {
		fmt.Fprintf(stdout, "tasker %s\n", server.Version)
		return 0
	}
	rest := root.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	switch rest[0] {
	case "serve":
		return runServe(rest[1:], stdout, stderr)
	case "run":
		return runRun(rest[1:], stdout, stderr)
	case "kinds":
		return runKinds(rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", rest[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: tasker [--version] <command> [flags]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  serve  start the HTTP API")
	fmt.Fprintln(w, "  run    run one pipeline in-process and print the final record")
	fmt.Fprintln(w, "  kinds  list registered pipelines per namespace")
}

func loadConfig(ctx context.Context, location string) (*tasker.Config, error) {
	if strings.TrimSpace(location) == "" {
		return tasker.DefaultConfig(), nil
	}
	return tasker.LoadConfig(ctx, location)
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configURL, addr string
	fs.StringVar(&configURL, "config", "", "config file (yaml, toml or json)")
	fs.StringVar(&addr, "addr", "", "listen address override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configURL)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	srv, err := tasker.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	if err = srv.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "start failed: %v\n", err)
		return 1
	}
	httpServer, err := srv.Server()
	if err != nil {
		fmt.Fprintf(stderr, "server init failed: %v\n", err)
		return 1
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()
	fmt.Fprintf(stdout, "tasker listening on %s\n", cfg.Server.Addr)

	code := 0
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "server failed: %v\n", err)
			code = 1
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "shutdown failed: %v\n", err)
		code = 1
	}
	return code
}

func runRun(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configURL, namespace, kind, request string
	var quiet bool
	fs.StringVar(&configURL, "config", "", "config file (yaml, toml or json)")
	fs.StringVar(&namespace, "ns", tasker.DefaultPipelineNamespace, "namespace")
	fs.StringVar(&kind, "kind", "", "pipeline kind")
	fs.StringVar(&request, "request", "{}", "request JSON object")
	fs.BoolVar(&quiet, "quiet", false, "do not print progress")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(kind) == "" {
		fmt.Fprintln(stderr, "run requires --kind")
		return 2
	}
	payload := task.Payload{}
	if err := json.Unmarshal([]byte(request), &payload); err != nil {
		fmt.Fprintf(stderr, "invalid --request: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := loadConfig(ctx, configURL)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return 1
	}
	var options []tasker.Option
	if !quiet {
		options = append(options, tasker.WithEventHandler(printUpdate(stderr)))
	}
	srv, err := tasker.New(ctx, cfg, options...)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()
	if err = srv.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "start failed: %v\n", err)
		return 1
	}
	record, err := srv.Submit(ctx, namespace, kind, payload)
	if err != nil {
		fmt.Fprintf(stderr, "submit failed: %v\n", err)
		return 1
	}
	orchestrator := srv.Orchestrator(namespace)
	go func() {
		<-ctx.Done()
		orchestrator.Cancel(context.Background(), record.ID)
	}()
	final, err := orchestrator.Wait(context.WithoutCancel(ctx), record.ID)
	if err != nil {
		fmt.Fprintf(stderr, "wait failed: %v\n", err)
		return 1
	}
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(final)
	if final.Status != task.StatusSucceeded {
		return 1
	}
	return 0
}

func runKinds(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kinds", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configURL string
	fs.StringVar(&configURL, "config", "", "config file (yaml, toml or json)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ctx := context.Background()
	cfg, err := loadConfig(ctx, configURL)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return 1
	}
	cfg.Events.Log = false
	cfg.Storage.Backend = tasker.BackendMemory
	srv, err := tasker.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	defer func() { _ = srv.Shutdown(ctx) }()
	for _, ns := range cfg.Namespaces {
		for _, kind := range srv.Pipelines(ns.Prefix).Kinds() {
			fmt.Fprintf(stdout, "%s/%s\n", ns.Prefix, kind)
		}
	}
	return 0
}

func printUpdate(w io.Writer) func(*event.Event[task.Update]) {
	return func(e *event.Event[task.Update]) {
		update := e.Data
		switch update.Type {
		case task.UpdateProgress:
			fmt.Fprintf(w, "[%s] %3.0f%% %s\n", update.ID, update.Progress*100, update.Message)
		case task.UpdateLog:
			fmt.Fprintf(w, "[%s] %s\n", update.ID, update.Message)
		default:
			fmt.Fprintf(w, "[%s] %s\n", update.ID, update.Status)
		}
	}
}
