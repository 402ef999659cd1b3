package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jitaccess/broker/pkg/config"
	"github.com/jitaccess/broker/pkg/jitbroker"
	"github.com/jitaccess/broker/pkg/observability"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/policyloader"
)

const version = "0.1.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable so tests can stub it out without starting a
// real process.
var startServer = runServer

// Run is the entrypoint, factored out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "serve", "server":
		startServer()
		return 0
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI colors, matched to the teacher's CLI banner style.
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sJIT Access Broker %s%s\n", colorBold+colorCyan, version, colorReset)
	fmt.Fprintf(w, "%sJoin now, approve once, expire always.%s\n", colorGray, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  broker <command> [flags]")
	fmt.Fprintln(w, "")
	printCommand(w, "serve", "Load the policy bundle and run the broker (default)")
	printCommand(w, "validate", "Decode a policy bundle and report diagnostics (--bundle)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", colorGreen, name, colorReset, desc)
}

// runValidateCmd decodes a policy bundle into a fresh tree and reports
// its diagnostics, without touching any running store. Exit code 1
// means the bundle failed to load; the failing diagnostic (if any) is
// printed to stderr.
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var bundlePath string
	cmd.StringVar(&bundlePath, "bundle", "./policy", "Policy bundle directory or file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	store := policy.NewStore()
	loader := policyloader.NewLoader(bundlePath, store)
	if err := loader.Load(); err != nil {
		if brokerErr, ok := err.(*jitbroker.Error); ok {
			fmt.Fprintf(stderr, "%s: %s\n", brokerErr.Kind, brokerErr.Error())
		} else {
			fmt.Fprintln(stderr, err.Error())
		}
		return 1
	}

	tree := store.Current()
	hash, err := tree.Hash()
	if err != nil {
		fmt.Fprintf(stderr, "computing policy hash: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%sbundle valid%s: %d environment(s), hash %s\n",
		colorGreen, colorReset, len(tree.Environments()), hash)
	return 0
}

// runServer loads configuration, boots the hot-reloading policy store
// and the observability provider, and serves /healthz and /readyz until
// signaled to stop. It deliberately stops there: the request-handling
// HTTP surface and the directory/signer/provisioner adapters it would
// drive are out of scope for the core (spec §1) and have no production
// implementation in this module.
func runServer() {
	fmt.Fprintf(os.Stdout, "%sJIT Access Broker starting...%s\n", colorBold+colorCyan, colorReset)

	cfg := config.Load()
	ctx := context.Background()
	logger := slog.Default()

	store := policy.NewStore()
	loader := policyloader.NewLoader(cfg.PolicyBundlePath, store)
	if err := loader.Load(); err != nil {
		log.Fatalf("loading policy bundle %s: %v", cfg.PolicyBundlePath, err)
	}
	logger.Info("policy bundle loaded",
		"path", cfg.PolicyBundlePath,
		"environments", len(store.Current().Environments()))

	provider, err := observability.New(ctx, &observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.LogLevel,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		SampleRate:     cfg.Observability.SampleRate,
		Enabled:        true,
		Insecure:       cfg.Observability.Insecure,
	})
	if err != nil {
		log.Fatalf("starting observability provider: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown", "error", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	healthMux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		// Load() above either populated the store or fataled the process,
		// so by the time the health server accepts connections the tree
		// is always current (possibly stale after a failed SIGHUP reload,
		// never empty).
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	healthServer := &http.Server{Addr: cfg.HealthAddr, Handler: healthMux}
	go func() {
		logger.Info("health server listening", "addr", cfg.HealthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info("reloading policy bundle", "path", cfg.PolicyBundlePath)
			if err := loader.Load(); err != nil {
				logger.Error("policy bundle reload failed, keeping last good tree", "error", err)
			} else {
				logger.Info("policy bundle reloaded", "environments", len(store.Current().Environments()))
			}
			continue
		}
		break
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown", "error", err)
	}
}
