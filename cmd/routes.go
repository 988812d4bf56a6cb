package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"switchyard/internal/api"
	"switchyard/internal/client"
	"switchyard/internal/config"
	"switchyard/internal/server"
)

// DefaultRequestTimeout bounds admin API calls made by the CLI.
const DefaultRequestTimeout = 60 * time.Second

type clientOptions struct {
	endpoint string
	timeout  time.Duration
}

func (o *clientOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.endpoint, "endpoint", config.DefaultAdminAddress, "Admin API address of the running switchyard")
	fs.DurationVar(&o.timeout, "timeout", DefaultRequestTimeout, "Request timeout")
}

func (o *clientOptions) client() *client.Client {
	return client.New(o.endpoint, o.timeout)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newRoutesCmd lists the routes of a running context.
func newRoutesCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes of a running switchyard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := opts.client().Routes(commandContext(cmd))
			if err != nil {
				return err
			}
			renderRoutes(cmd.OutOrStdout(), routes)
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

// newRouteCmd groups the operations on a single route.
func newRouteCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Start, stop, suspend or resume a route of a running switchyard",
	}
	opts.register(cmd.PersistentFlags())

	for _, action := range []struct{ name, short string }{
		{server.ActionStart, "Start a route"},
		{server.ActionStop, "Gracefully stop a route"},
		{server.ActionSuspend, "Suspend a route, or stop it if it cannot be suspended"},
		{server.ActionResume, "Resume a suspended route"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name + " <route-id>",
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				info, err := opts.client().RouteAction(commandContext(cmd), args[0], action.name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Route %s is %s\n", info.ID, colorStatus(info.Status))
				return nil
			},
		})
	}
	return cmd
}

func renderRoutes(w io.Writer, routes []api.RouteInfo) {
	if len(routes) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No routes found"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "FROM", "STATUS", "ORDER", "AUTO", "SUPERVISED", "INFLIGHT", "UPTIME", "LAST ERROR"})
	for _, r := range routes {
		lastErr := ""
		if r.LastError != nil {
			lastErr = fmt.Sprintf("%s: %s", r.LastError.Phase, r.LastError.Message)
		}
		t.AppendRow(table.Row{
			r.ID,
			r.EndpointURI,
			colorStatus(r.Status),
			r.StartupOrder,
			r.AutoStartup,
			r.Supervised,
			r.Inflight,
			r.Uptime.Truncate(time.Second),
			lastErr,
		})
	}
	t.Render()
}

func colorStatus(s api.ServiceStatus) string {
	switch s {
	case api.StatusStarted:
		return text.FgGreen.Sprint(s)
	case api.StatusSuspended, api.StatusSuspending:
		return text.FgYellow.Sprint(s)
	case api.StatusStopped, api.StatusStopping:
		return text.FgRed.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}
