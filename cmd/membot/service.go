package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/membot/internal/config"
	"github.com/flemzord/membot/pkg/app"
)

const serviceName = "membot"

// program runs membot under the OS service manager.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.RunContext(ctx, p.params)
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// newService describes membot to the service manager. The unit runs
// "membot service run" with the resolved absolute config path.
func newService(flags *globalFlags) (service.Service, error) {
	params := flags.params()
	cfgPath, err := config.Find(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(cfgPath); err == nil {
		cfgPath = abs
	}
	params.ConfigPath = cfgPath

	args := []string{"service", "run", "--config", cfgPath}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: "membot",
		Description: "Discord bot with long-term conversational memory",
		Arguments:   args,
		Option: service.KeyValue{
			"Restart":     "on-failure",
			"UserService": true,
		},
	}
	return service.New(&program{params: params}, cfg)
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage membot as a system service",
	}

	for _, action := range []struct{ name, short string }{
		{"install", "Install the service for the current user"},
		{"uninstall", "Remove the service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the running service"},
		{"restart", "Restart the service"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(flags)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action.name); err != nil {
					return fmt.Errorf("service %s: %w", action.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action.name)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(flags)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status, err))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(flags)
			if err != nil {
				return err
			}
			if !service.Interactive() {
				slog.Info("running under the service manager", "platform", service.Platform())
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusText(status service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed"
	}
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
