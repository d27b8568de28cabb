// Package cli wires the task-manager commands: the API server, schema
// migration and a terminal client for the REST API.
package cli

import (
	"github.com/spf13/cobra"

	"task-manager/internal/client"
	"task-manager/internal/config"
	"task-manager/internal/logger"
)

// RootOptions holds global flags and the configuration they resolve to.
type RootOptions struct {
	ConfigPath  string
	APIURL      string
	SessionFile string

	cfg *config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "task-manager",
		Short: "Multi-user task tracker",
		Long:  "Runs the task-manager API server and talks to it as a signed-in user.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.APIURL != "" {
				cfg.Client.APIURL = opts.APIURL
			}
			if opts.SessionFile != "" {
				cfg.Client.SessionFile = opts.SessionFile
			}
			opts.cfg = cfg

			logger.SetOutput(cmd.ErrOrStderr())
			logger.Init("task-manager", cfg.Log.Level, cfg.Log.Format)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "API base URL (overrides API_URL)")
	cmd.PersistentFlags().StringVar(&opts.SessionFile, "session", "", "session file (overrides SESSION_FILE)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSignupCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewBotCommand(opts))

	return cmd
}

// newClient builds an API client whose session lives in the session file.
func (o *RootOptions) newClient() (*client.Client, error) {
	path, err := o.cfg.Client.SessionPath()
	if err != nil {
		return nil, err
	}
	session, err := client.OpenSession(path)
	if err != nil {
		return nil, err
	}
	return client.New(o.cfg.Client.APIURL, session, o.cfg.Client.Timeout), nil
}
