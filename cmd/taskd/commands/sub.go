package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Run or list git repository subscriptions",
	}
	cmd.AddCommand(subRunCmd(), subListCmd())
	return cmd
}

func subRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Sync a Subscription immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)
			if err := a.dispatcher.RunSubscriptionNow(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Synced subscription %s\n", id)
			return nil
		},
	}
}

func subListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List git repository subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)

			subs, err := a.stores.Subscriptions.ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Println("No subscriptions configured.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tACTIVE\tSCHEDULE\tREPO\tSAVE DIR\n")
			for _, s := range subs {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n", shortID(s.ID), s.Name, s.Active, displayOr(s.CronExpr, "manual"), s.RepoURL, s.SaveDirectory)
			}
			return tw.Flush()
		},
	}
}
