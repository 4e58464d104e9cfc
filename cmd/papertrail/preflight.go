package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Probe the document service API",
	Long: `Fetch page 1 of the document listing and report what the API returned.

A failure here usually means a wrong base URL, a bad token, or a service
that is not reachable from this machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		client, err := a.apiClient()
		if err != nil {
			return err
		}

		note, err := client.Preflight(cmd.Context())
		if err != nil {
			a.logger.Error("preflight failed", "url", client.BaseURL(), "error", err)
			return err
		}
		fmt.Printf("preflight ok: %s (%s)\n", note, client.BaseURL())
		return nil
	},
}
