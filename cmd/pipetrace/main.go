package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipetrace",
		Short: "CI pipeline tracer exporting build traces to per-repository OTLP endpoints",
		Long: `pipetrace turns build lifecycle events into a trace per build:
a root span for the run, child spans for pipeline stages and build steps.
Closed spans are batched and exported over OTLP/HTTP, one partition per
repository, authenticated with the API key of the repository owner.

Environment variables (prefix PIPETRACE_):
  SERVER_ADDRESS           - ingest API listen address (default: :8080)
  SERVER_SHUTDOWN_TIMEOUT  - drain deadline on stop (default: 30s)
  SERVER_SHUTDOWN_SIGNALS  - signals that stop the server (default: SIGINT,SIGTERM)
  TRACING_BACKEND          - tenant, log or memory (default: tenant)
  CREDENTIALS_FILE         - YAML file with url and organizations[name, api_key]
  LOG_LEVEL, LOG_FORMAT    - logger level and json/text encoding
  LEGACY_ATTRIBUTES        - also emit deprecated attribute keys (default: true)
  BUILD_STEP_EXTENSIONS    - extra step types traced besides builders
  DASHBOARD_URL            - base URL of dashboard deep links`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCommand(),
		newTraceparentCommand(os.LookupEnv),
		newCheckConnectionCommand(),
	)
	return root
}
