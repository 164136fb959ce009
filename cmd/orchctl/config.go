package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/config"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	rootCmd.AddCommand(configCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE:  runConfigShow,
	}
	configCmd.AddCommand(showCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("query models:   %v\n", cfg.Models.QueryModels)
	fmt.Printf("judge model:    %s\n", cfg.Models.JudgeModel)
	fmt.Printf("per-model timeout: %s\n", cfg.Timeouts.PerModel())
	fmt.Printf("judge timeout:     %s\n", cfg.Timeouts.Judge())
	fmt.Printf("debate timeout:    %s\n", cfg.Timeouts.Debate())
	fmt.Printf("max prompt length: %d\n", cfg.Limits.MaxPromptLength)
	fmt.Printf("max debate rounds: %d\n", cfg.Limits.MaxDebateRounds)
	fmt.Printf("early judge:       %t\n", cfg.Features.EnableEarlyJudge)
	fmt.Printf("debate enabled:    %t\n", cfg.Features.EnableDebate)
	fmt.Printf("listen address:    %s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("frontend origin:   %s\n", cfg.Web.FrontendOrigin)

	secrets := config.LoadSecrets()
	fmt.Printf("OPENROUTER_API_KEY set: %t\n", secrets.OpenRouterAPIKey != "")
	fmt.Printf("TAVILY_API_KEY set:     %t\n", secrets.TavilyAPIKey != "")

	return nil
}
