package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/config"
)

// initAnswers are the choices the wizard collects.
type initAnswers struct {
	Backend     string
	DBPath      string
	BotID       string
	BaseURL     string
	Model       string
	VisionModel string
	APIKeyEnv   string
	Gateway     bool
	Bind        string
	TokenEnv    string
	Retention   bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Backend:   "sqlite",
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
		Gateway:   true,
		Bind:      "127.0.0.1:8080",
		TokenEnv:  "MEMBOT_ADMIN_TOKEN",
		Retention: true,
	}
}

// fileConfig mirrors membot.yaml with the field order the wizard writes.
type fileConfig struct {
	Version  string         `yaml:"version"`
	LogLevel string         `yaml:"log_level"`
	Bot      fileBot        `yaml:"bot,omitempty"`
	Modules  map[string]any `yaml:"modules"`
}

type fileBot struct {
	ID string `yaml:"id,omitempty"`
}

// renderConfig turns the answers into membot.yaml. Secrets are referenced
// through environment variables, never written to the file.
func renderConfig(a initAnswers) ([]byte, error) {
	cfg := fileConfig{
		Version:  "1",
		LogLevel: "info",
		Bot:      fileBot{ID: a.BotID},
		Modules:  map[string]any{},
	}

	switch a.Backend {
	case "sqlite":
		mod := map[string]any{}
		if a.DBPath != "" {
			mod["path"] = a.DBPath
		}
		cfg.Modules["memory.sqlite"] = mod
	case "ephemeral":
		cfg.Modules["memory.ephemeral"] = map[string]any{}
	case "none":
	default:
		return nil, fmt.Errorf("unknown memory backend %q", a.Backend)
	}

	if a.Model != "" {
		provider := map[string]any{
			"base_url":    a.BaseURL,
			"api_key_env": a.APIKeyEnv,
			"model":       a.Model,
		}
		if a.VisionModel != "" {
			provider["vision_model"] = a.VisionModel
		}
		cfg.Modules["provider.openai_compatible"] = provider
	}

	if a.Gateway {
		gw := map[string]any{"bind": a.Bind}
		if a.TokenEnv != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + a.TokenEnv + ":-}"}
		}
		cfg.Modules["gateway.http"] = gw
	}
	if a.Retention {
		cfg.Modules["scheduler.cron"] = map[string]any{}
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	header := "# membot configuration. Runtime settings (persona, memory limits)\n" +
		"# live in settings.json and can be edited through the gateway.\n"
	return append([]byte(header), out...), nil
}

func initCmd() *cobra.Command {
	var (
		output   string
		defaults bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a membot.yaml interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = config.SearchPaths()[0]
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			if !defaults {
				if err := runWizard(&answers); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
						return nil
					}
					return err
				}
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", output)
			if answers.Model != "" {
				fmt.Fprintf(out, "Set %s before starting membot.\n", answers.APIKeyEnv)
			}
			if answers.Gateway && answers.TokenEnv != "" {
				fmt.Fprintf(out, "Set %s to protect the admin API.\n", answers.TokenEnv)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the file (default: first search path)")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func runWizard(a *initAnswers) error {
	notEmpty := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Memory backend").
				Options(
					huh.NewOption("SQLite (persistent)", "sqlite"),
					huh.NewOption("In-memory (lost on restart)", "ephemeral"),
					huh.NewOption("None", "none"),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("Discord bot user ID").
				Description("Excluded from mentioned users. Optional.").
				Value(&a.BotID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model API base URL").
				Value(&a.BaseURL).
				Validate(notEmpty("base URL")),
			huh.NewInput().
				Title("Model").
				Value(&a.Model).
				Validate(notEmpty("model")),
			huh.NewInput().
				Title("Vision model").
				Description("Describes image attachments. Leave empty to skip images.").
				Value(&a.VisionModel),
			huh.NewInput().
				Title("API key environment variable").
				Value(&a.APIKeyEnv).
				Validate(notEmpty("environment variable")),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the admin gateway?").
				Value(&a.Gateway),
			huh.NewInput().
				Title("Gateway bind address").
				Value(&a.Bind),
			huh.NewInput().
				Title("Admin token environment variable").
				Value(&a.TokenEnv),
			huh.NewConfirm().
				Title("Schedule the retention sweep?").
				Value(&a.Retention),
		),
	).Run()
}
