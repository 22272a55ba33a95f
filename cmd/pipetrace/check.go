package main

import (
	"fmt"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
	"github.com/JailtonJunior94/pipetrace/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newCheckConnectionCommand() *cobra.Command {
	var credentialsFile, url string

	cmd := &cobra.Command{
		Use:   "check-connection",
		Short: "Check that the API base URL answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := url
			if target == "" {
				target = config.DefaultBaseURL
				if credentialsFile != "" {
					c, err := config.LoadCredentials(credentialsFile)
					if err != nil {
						return err
					}
					target = c.URL
				}
			}
			if err := config.ValidateURL(target); err != nil {
				return err
			}

			if err := config.CheckConnection(cmd.Context(), httpclient.New(), target); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "connection to %s ok\n", target)
			return err
		},
	}

	cmd.Flags().StringVar(&credentialsFile, "credentials", "", "credentials YAML file to read the URL from")
	cmd.Flags().StringVar(&url, "url", "", "API base URL to check")
	return cmd
}
