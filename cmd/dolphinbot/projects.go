package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/config"
	"dolphinbot/internal/openproject"
)

var (
	projectsFrom int
	projectsTo   int
	projectsRate int
	projectsURL  string
	projectsKey  string
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Find project ids by probing the OpenProject API",
	Long: `OpenProject has no project listing for API keys, so this probes
/api/v3/projects/<id> for every id in [--from, --to] and prints the
projects the key can see. Use the printed ID as openproject.project_id.`,
	Args: cobra.NoArgs,
	RunE: runProjects,
}

func init() {
	projectsCmd.Flags().IntVar(&projectsFrom, "from", 0, "First project id to probe")
	projectsCmd.Flags().IntVar(&projectsTo, "to", 50, "Last project id to probe")
	projectsCmd.Flags().IntVar(&projectsRate, "rate", openproject.DefaultProbeRate, "Probes per second")
	projectsCmd.Flags().StringVar(&projectsURL, "url", "", "OpenProject base URL (default: openproject.base_url)")
	projectsCmd.Flags().StringVar(&projectsKey, "api-key", "", "API key (default: openproject.api_key or $"+config.EnvAPIKey+")")
}

func runProjects(cmd *cobra.Command, args []string) error {
	base, key := projectsURL, projectsKey
	if base == "" || key == "" {
		// Only the openproject section matters here; skip full validation.
		cfg, err := config.NewManager(cfgPath).Parse()
		if err != nil && (base == "" || key == "") {
			return fmt.Errorf("load %s: %w", cfgPath, err)
		}
		if cfg != nil {
			if base == "" {
				base = cfg.OpenProject.BaseURL
			}
			if key == "" {
				key = cfg.OpenProject.APIKey
			}
		}
	}
	if strings.TrimSpace(base) == "" {
		return errors.New("openproject base url is required (--url or openproject.base_url)")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("api key is required (--api-key, openproject.api_key or $" + config.EnvAPIKey + ")")
	}
	if projectsTo < projectsFrom {
		return fmt.Errorf("--to (%d) is below --from (%d)", projectsTo, projectsFrom)
	}

	out := cmd.OutOrStdout()
	c := openproject.NewClient(activity.NewProject(base, ""), key, projectsRate)
	n, err := c.Discover(cmd.Context(), projectsFrom, projectsTo, func(p openproject.ProjectInfo) {
		fmt.Fprintln(out, p.String())
	})
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(out, "no projects visible between %d and %d\n", projectsFrom, projectsTo)
	}
	return nil
}
