package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kindling-sh/marathon/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current root group and outstanding deployments",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer b.Close()

	ctx := context.Background()
	root, ok, err := b.Roots.Root(ctx)
	if err != nil {
		return fmt.Errorf("load root: %w", err)
	}

	header("Root group")
	if !ok {
		warn("no root group has been stored yet")
	} else {
		specs := root.AllRunSpecs()
		if len(specs) == 0 {
			warn("root group is empty")
		}
		for id, spec := range specs {
			success(fmt.Sprintf("%s (%s) instances=%d", id, spec.Kind, spec.Instances))
		}
	}

	plans, err := b.Plans.All(ctx)
	if err != nil {
		return fmt.Errorf("load deployment plans: %w", err)
	}
	header("In-flight deployments")
	if len(plans) == 0 {
		success("none")
	}
	for _, p := range plans {
		warn(fmt.Sprintf("%s touches %v", p.Id, p.AffectedRunSpecIds))
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
