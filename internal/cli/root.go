package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/workdesk/internal/app"
	"github.com/nhle/workdesk/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command. Without a subcommand it starts
// the terminal UI, optionally at the given route.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "workdesk [route]",
		Short: "Workdesk terminal client",
		Long: `Terminal client for the Workdesk employee portal.

Opens the role dashboard, live notifications and attendance check-in.
A route such as /employee/attendance can be given to open it directly.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			route := ""
			if len(args) == 1 {
				route = args[0]
			}
			return runTUI(cmd.Context(), opts, route)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", model.DefaultConfigPath(), "path to config file")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewAttendanceCommand(opts))

	return cmd
}

// openRuntime loads the configuration and starts the client services.
func openRuntime(ctx context.Context, opts *RootOptions, appOpts ...app.Option) (*app.Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	appOpts = append([]app.Option{app.WithConfigPath(opts.ConfigPath)}, appOpts...)
	return app.Open(ctx, cfg, appOpts...)
}

func runTUI(ctx context.Context, opts *RootOptions, route string) (err error) {
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing: %w", cerr)
		}
	}()

	p := tea.NewProgram(app.New(rt, route), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
