package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryMode     string
	queryModels   []string
	queryJudge    string
)

func init() {
	queryCmd := &cobra.Command{
		Use:   "query [prompt]",
		Short: "Send a one-shot query to the merge orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringVar(&queryMode, "mode", "", "prompt mode: general, coding, system-design, creative")
	queryCmd.Flags().StringSliceVar(&queryModels, "models", nil, "comma-separated model IDs, overrides the server default")
	queryCmd.Flags().StringVar(&queryJudge, "judge-model", "", "judge model override")
	rootCmd.AddCommand(queryCmd)
}

type queryRequestDTO struct {
	Prompt             string   `json:"prompt"`
	Mode               string   `json:"mode,omitempty"`
	ModelIDs           []string `json:"modelIds,omitempty"`
	JudgeModelOverride string   `json:"judgeModelOverride,omitempty"`
}

type queryResponseDTO struct {
	MergedAnswer   string `json:"mergedAnswer"`
	TotalLatencyMs int64  `json:"totalLatencyMs"`
	RequestID      string `json:"requestId"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	client := newHTTPClient(apiURL)

	req := queryRequestDTO{
		Prompt:             strings.Join(args, " "),
		Mode:               queryMode,
		ModelIDs:           queryModels,
		JudgeModelOverride: queryJudge,
	}

	var resp queryResponseDTO
	if err := client.postJSON("/api/v1/query", req, &resp); err != nil {
		return err
	}

	fmt.Println(resp.MergedAnswer)
	fmt.Printf("\n(request %s, %dms)\n", resp.RequestID, resp.TotalLatencyMs)
	return nil
}
