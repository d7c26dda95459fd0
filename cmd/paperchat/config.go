package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/paperchat/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect repository configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults and PAPERCHAT_* environment
overrides are applied. API keys are never printed.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	cfg.VectorStore.Qdrant.APIKey = ""

	if humanOutput {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			exitWithError(ExitError, "encoding config: %v", err)
		}
		fmt.Print(string(data))
	} else {
		outputJSON(cfg)
	}
	return nil
}

// ConfigPathResult is the response for config path.
type ConfigPathResult struct {
	Repository   string `json:"repository"`
	Config       string `json:"config"`
	Papers       string `json:"papers"`
	Database     string `json:"database"`
	Index        string `json:"index"`
	Exports      string `json:"exports"`
	GlobalConfig string `json:"global_config"`
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show where paperchat keeps its files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot := mustFindRepository()
		result := ConfigPathResult{
			Repository:   repoRoot,
			Config:       config.ConfigPath(repoRoot),
			Papers:       config.PapersPath(repoRoot),
			Database:     config.DBPath(repoRoot),
			Index:        config.IndexPath(repoRoot),
			Exports:      config.ExportsPath(repoRoot),
			GlobalConfig: config.GlobalConfigPath(),
		}
		if humanOutput {
			fmt.Printf("Repository:    %s\n", result.Repository)
			fmt.Printf("Config:        %s\n", result.Config)
			fmt.Printf("Papers:        %s\n", result.Papers)
			fmt.Printf("Database:      %s\n", result.Database)
			fmt.Printf("Index:         %s\n", result.Index)
			fmt.Printf("Exports:       %s\n", result.Exports)
			fmt.Printf("Global config: %s\n", result.GlobalConfig)
		} else {
			outputJSON(result)
		}
		return nil
	},
}
