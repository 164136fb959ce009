package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	researchModels     []string
	researchJudge      string
	researchPollWait   bool
	researchPollPeriod = 2 * time.Second
)

func init() {
	researchCmd := &cobra.Command{
		Use:   "research",
		Short: "Submit and poll deep-research jobs",
	}
	rootCmd.AddCommand(researchCmd)

	submitCmd := &cobra.Command{
		Use:   "submit [query]",
		Short: "Submit a deep-research job",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResearchSubmit,
	}
	submitCmd.Flags().StringSliceVar(&researchModels, "models", nil, "comma-separated model IDs, overrides the server default")
	submitCmd.Flags().StringVar(&researchJudge, "judge-model", "", "judge model override")
	submitCmd.Flags().BoolVar(&researchPollWait, "wait", false, "poll until the job reaches a terminal state")
	researchCmd.AddCommand(submitCmd)

	pollCmd := &cobra.Command{
		Use:   "poll [jobId]",
		Short: "Poll a deep-research job's status",
		Args:  cobra.ExactArgs(1),
		RunE:  runResearchPoll,
	}
	researchCmd.AddCommand(pollCmd)
}

type submitResearchRequestDTO struct {
	Query              string   `json:"query"`
	ModelIDs           []string `json:"modelIds,omitempty"`
	JudgeModelOverride string   `json:"judgeModelOverride,omitempty"`
}

type submitResearchResponseDTO struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type jobResultDTO struct {
	Summary   string   `json:"summary"`
	Citations []string `json:"citations"`
}

type jobErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jobDTO struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Progress int           `json:"progress"`
	Query    string        `json:"query"`
	Result   *jobResultDTO `json:"result,omitempty"`
	Error    *jobErrorDTO  `json:"error,omitempty"`
}

func runResearchSubmit(cmd *cobra.Command, args []string) error {
	client := newHTTPClient(apiURL)

	req := submitResearchRequestDTO{
		Query:              strings.Join(args, " "),
		ModelIDs:           researchModels,
		JudgeModelOverride: researchJudge,
	}

	var resp submitResearchResponseDTO
	if err := client.postJSON("/api/v1/deep-research", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Submitted job %s (%s)\n", resp.JobID, resp.Status)

	if !researchPollWait {
		return nil
	}
	return pollUntilTerminal(client, resp.JobID)
}

func runResearchPoll(cmd *cobra.Command, args []string) error {
	client := newHTTPClient(apiURL)
	return printJobStatus(client, args[0])
}

func pollUntilTerminal(client *httpClient, jobID string) error {
	for {
		job, err := fetchJob(client, jobID)
		if err != nil {
			return err
		}
		printJob(job)
		if job.Status == "completed" || job.Status == "failed" {
			return nil
		}
		time.Sleep(researchPollPeriod)
	}
}

func printJobStatus(client *httpClient, jobID string) error {
	job, err := fetchJob(client, jobID)
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func fetchJob(client *httpClient, jobID string) (*jobDTO, error) {
	var job jobDTO
	if err := client.getJSON("/api/v1/deep-research/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func printJob(job *jobDTO) {
	fmt.Printf("job %s: %s (%d%%)\n", job.ID, job.Status, job.Progress)
	if job.Error != nil {
		fmt.Printf("  error [%s]: %s\n", job.Error.Code, job.Error.Message)
	}
	if job.Result != nil {
		fmt.Printf("  %s\n", job.Result.Summary)
	}
}
