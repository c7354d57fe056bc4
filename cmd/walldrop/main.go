// Command walldrop is the operator CLI: local stack workflows plus bulk
// ingestion, reconciliation and catalog export against the configured
// backends.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "walldrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walldrop",
		Short: "WallDrop operator CLI",
		Long: `walldrop runs bulk wallpaper ingestion, orphan reconciliation and catalog export against the
configured storage and catalog. The stack commands start the local postgres, redis and minio
dependencies declared in docker-compose.yml.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newStackCmd(),
		newTestCmd(),
		newRunCmd(),
		newTemplateCmd(),
		newIngestCmd(),
		newOrphansCmd(),
		newExportCmd(),
		newTokenCmd(),
	)
	return cmd
}

// composeAction is a docker compose verb plus the boolean flags that map to
// extra arguments.
type composeAction struct {
	verb  string
	short string
	flags []composeFlag
}

type composeFlag struct {
	name, shorthand, usage, arg string
	def                         bool
}

var composeActions = []composeAction{
	{verb: "up", short: "Start the local dependencies", flags: []composeFlag{
		{name: "detached", shorthand: "d", usage: "Run in the background", arg: "-d", def: true},
		{name: "wait", usage: "Wait for health checks to pass", arg: "--wait"},
	}},
	{verb: "down", short: "Stop the local dependencies", flags: []composeFlag{
		{name: "volumes", shorthand: "v", usage: "Remove the postgres and minio volumes", arg: "-v"},
	}},
	{verb: "logs", short: "Show dependency logs", flags: []composeFlag{
		{name: "follow", usage: "Stream logs continuously", arg: "-f"},
	}},
	{verb: "ps", short: "List dependency containers"},
}

func newStackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage the docker compose development dependencies",
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use")
	for _, action := range composeActions {
		cmd.AddCommand(newComposeCmd(action))
	}
	return cmd
}

func newComposeCmd(action composeAction) *cobra.Command {
	values := make([]bool, len(action.flags))
	cmd := &cobra.Command{
		Use:   action.verb + " [service...]",
		Short: action.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), "docker", composeArgs(action, values, args)...)
		},
	}
	for i, f := range action.flags {
		cmd.Flags().BoolVarP(&values[i], f.name, f.shorthand, f.def, f.usage)
	}
	return cmd
}

func composeArgs(action composeAction, values []bool, services []string) []string {
	args := []string{"compose", "-f", composeFile, action.verb}
	for i, f := range action.flags {
		if values[i] {
			args = append(args, f.arg)
		}
	}
	return append(args, services...)
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run the Go test suite (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable the race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the api or worker binary from source",
	}
	for name, path := range map[string]string{"api": "./cmd/api", "worker": "./cmd/worker"} {
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "go run " + path,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout, c.Stderr, c.Stdin = os.Stdout, os.Stderr, os.Stdin
	return c.Run()
}
