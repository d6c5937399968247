package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run, stop, or list Tasks",
	}
	cmd.AddCommand(taskRunCmd(), taskStopCmd(), taskListCmd())
	return cmd
}

func taskRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a Task immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id: %w", err)
			}
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)
			if err := a.dispatcher.RunTaskNow(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Ran task %s\n", id)
			return nil
		},
	}
}

func taskStopCmd() *cobra.Command {
	var graceful bool
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running Task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id: %w", err)
			}
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)
			if err := a.dispatcher.StopTask(id, graceful); err != nil {
				return err
			}
			fmt.Printf("Stopped task %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&graceful, "graceful", true, "send SIGTERM and wait before SIGKILL")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List Tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer closeStore(a)

			tasks, err := a.stores.Tasks.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks configured.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tACTIVE\tSCHEDULE\tKIND\n")
			for _, t := range tasks {
				if t.IsPlaceholder {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", shortID(t.ID), t.Name, t.Active, displayOr(t.CronExpr, "manual"), t.ScriptKind)
			}
			return tw.Flush()
		},
	}
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func displayOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func closeStore(a *app) {
	if a.stores.Close != nil {
		a.stores.Close()
	}
}
