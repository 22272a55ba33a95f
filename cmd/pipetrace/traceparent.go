package main

import (
	"encoding/json"

	"github.com/JailtonJunior94/pipetrace/pkg/traceparent"
	"github.com/spf13/cobra"
)

type traceIDs struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// newTraceparentCommand prints the ids carried by MERGIFY_TRACEPARENT. A
// missing or malformed token prints nothing and still succeeds, so build
// scripts can call it unconditionally.
func newTraceparentCommand(lookup func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   "traceparent",
		Short: "Print the trace and span id of " + traceparent.EnvTraceparent + " as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, ok := traceparent.FromEnv(lookup)
			if !ok {
				return nil
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(traceIDs{
				TraceID: sc.TraceID().String(),
				SpanID:  sc.SpanID().String(),
			})
		},
	}
}
