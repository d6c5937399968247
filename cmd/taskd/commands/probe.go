package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run or list API probes",
	}
	cmd.AddCommand(probeRunCmd(), probeListCmd())
	return cmd
}

func probeRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run an API probe immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid probe id: %w", err)
			}
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)
			if err := a.dispatcher.RunProbeNow(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Ran probe %s\n", id)
			return nil
		},
	}
}

func probeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)

			probes, err := a.stores.Probes.ListProbes(cmd.Context())
			if err != nil {
				return err
			}
			if len(probes) == 0 {
				fmt.Println("No probes configured.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tACTIVE\tSCHEDULE\tMETHOD\tURL\n")
			for _, p := range probes {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n", shortID(p.ID), p.Name, p.Active, displayOr(p.CronExpr, "manual"), p.Method, p.URL)
			}
			return tw.Flush()
		},
	}
}
