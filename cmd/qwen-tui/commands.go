// commands.go contains the cobra command definitions. Each builder
// creates one command and wires it to its handler.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "qwen-tui",
		Short:         "Local-first coding assistant for Qwen-class models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		buildRunCmd(),
		buildModelsCmd(),
		buildSessionsCmd(),
		buildSchemaCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		task       string
		backendArg string
		model      string
		resumeID   string
		yolo       bool
		debug      bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Start a chat session or run a single prompt",
		Long: `Start the assistant.

With no arguments an interactive session starts. With a prompt
argument the assistant answers once and exits. With --task the
assistant plans and executes the task autonomously, asking for
permission before risky tool calls.`,
		Example: `  # Interactive session
  qwen-tui run

  # One-shot prompt
  qwen-tui run "what does internal/mcp/discovery.go do"

  # Autonomous task, preferring vLLM
  qwen-tui run --task "add tests for the glob tool" --backend vllm`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				configPath: configPath,
				task:       task,
				backend:    backendArg,
				model:      model,
				resumeID:   resumeID,
				yolo:       yolo,
				debug:      debug,
				jsonOut:    jsonOut,
			}
			return runRun(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default "+defaultConfigPath()+")")
	cmd.Flags().StringVar(&task, "task", "", "Run this task autonomously instead of chatting")
	cmd.Flags().StringVar(&backendArg, "backend", "", "Preferred backend type (ollama, lm_studio, vllm, openrouter)")
	cmd.Flags().StringVar(&model, "model", "", "Model to request from the backend")
	cmd.Flags().StringVar(&resumeID, "resume", "", "Resume a saved session by id")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Skip all permission prompts (logged and audited)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit events as JSON lines instead of formatted text")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func buildModelsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available on reachable backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSessionsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List saved conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.OutOrStdout())
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("qwen-tui %s (%s)\n", version, commit)
		},
	}
}

// defaultConfigPath is ~/.config/qwen-tui/config.yaml, honoring
// XDG_CONFIG_HOME.
func defaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "qwen-tui", "config.yaml")
}

// stateDir is ~/.local/share/qwen-tui, honoring XDG_DATA_HOME. It
// holds sessions and permission preferences.
func stateDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".qwen-tui"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "qwen-tui")
}
