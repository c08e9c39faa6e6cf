// Package main provides the qwen-tui CLI, a local-first coding
// assistant that drives Qwen-class models on Ollama, LM Studio, vLLM,
// or OpenRouter with tool execution under a permission engine.
//
// # Basic Usage
//
// Start an interactive session:
//
//	qwen-tui run
//
// Run a single prompt:
//
//	qwen-tui run "explain internal/backend/manager.go"
//
// Run a task autonomously:
//
//	qwen-tui run --task "add a --verbose flag to the CLI"
//
// List models across reachable backends:
//
//	qwen-tui models
//
// # Environment Variables
//
// Configuration values can be overridden via QWEN_TUI_* variables,
// e.g. QWEN_TUI_OLLAMA_HOST or QWEN_TUI_PARALLEL_TOOLS. The
// OPENROUTER_API_KEY variable is a well-known alias for
// openrouter.api_key.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
