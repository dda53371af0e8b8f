package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the shared document once and merge it into the local store",
		Long:  "Fetch the shared document once and merge it into the local store.\nRefuses to run while frostlog serve holds the same database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), exclusiveAccess)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := withTimeout(cmd.Context(), rt.config.RemoteTimeout)
			defer cancel()
			outcome := rt.engine.PollOnce(ctx, true)
			printOutcome(outcome)
			if !outcome.Succeeded() {
				return fmt.Errorf("sync failed: %s", outcome.Kind)
			}
			return nil
		},
	}
}

func newPublishCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish pending local changes to the shared document",
		Long:  "Publish pending local changes to the shared document.\nRefuses to run while frostlog serve holds the same database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), exclusiveAccess)
			if err != nil {
				return err
			}
			defer rt.Close()

			pending := rt.workspace.Intents().Len()
			fmt.Println(mutedStyle.Render(fmt.Sprintf("%d pending changes", pending)))

			ctx, cancel := withTimeout(cmd.Context(), rt.config.RemoteTimeout)
			defer cancel()
			outcome := rt.engine.Publish(ctx)
			printOutcome(outcome)
			if !outcome.Succeeded() {
				return fmt.Errorf("publish failed: %s", outcome.Kind)
			}
			return nil
		},
	}
}
