// Command textflow runs one text-processing function from the command
// line and streams the answer to stdout.
//
// Usage:
//
//	textflow run --function translate --lang German "bonjour"
//	textflow run --function summarize < document.txt
//	textflow run --function ask --question "who wrote this?" < document.txt
//	textflow version
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BaSui01/textflow"
	"github.com/BaSui01/textflow/config"
	"github.com/BaSui01/textflow/types"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	function := fs.String("function", "explain", "Function: translate, explain, summarize, ask, optimize")
	model := fs.String("model", "", "Model override")
	lang := fs.String("lang", "", "Target language for translate")
	question := fs.String("question", "", "Question for ask")
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	engine, err := textflow.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Shutdown()

	options := map[string]string{}
	if *lang != "" {
		options["target_language"] = *lang
	}
	if *question != "" {
		options["question"] = *question
	}

	sub, err := engine.Dispatch(types.Request{
		SessionID:    engine.NewSessionID(),
		FunctionType: types.FunctionType(*function),
		ModelID:      *model,
		Text:         text,
		Options:      options,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dispatch failed: %v\n", err)
		os.Exit(1)
	}

	// Ctrl-C cancels the subscription; the terminal event still arrives.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			sub.Cancel()
		case <-ctx.Done():
		}
	}()
	defer stop()

	exitCode := 0
	for ev := range sub.Events() {
		switch ev.Kind {
		case types.EventDelta:
			fmt.Print(ev.Text)
		case types.EventComplete:
			fmt.Println()
		case types.EventCancelled:
			fmt.Fprintln(os.Stderr, "\ncancelled")
			exitCode = 130
		case types.EventError:
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", ev.Err)
			exitCode = 1
		}
	}

	engine.Shutdown()
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("textflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`textflow - streaming text-processing engine

Usage:
  textflow <command> [options]

Commands:
  run       Run one function and stream the answer to stdout
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>      Path to configuration file (YAML)
  --function <name>    translate, explain, summarize, ask, optimize
  --model <id>         Model override
  --lang <language>    Target language for translate
  --question <text>    Question for ask

Text is taken from the remaining arguments, or from stdin when absent.
Set TEXTFLOW_API_KEY to authenticate against the upstream API.`)
}
