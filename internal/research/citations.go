package research

import (
	"regexp"
	"strconv"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// citationPatterns lists every way a model tends to write a source
// reference; N is captured as group 1 in every pattern.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[Source (\d+)\]`),
	regexp.MustCompile(`\[(\d+)\]`),
	regexp.MustCompile(`\(Source (\d+)\)`),
	regexp.MustCompile(`Source (\d+)`),
}

// ExtractCitations scans text for source references and resolves them
// against results (1-based, so "[Source 1]" maps to results[0]). Out-of-
// range indices are ignored.
func ExtractCitations(text string, results []domain.ResearchResult) []string {
	var urls []string
	for _, pattern := range citationPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if n < 1 || n > len(results) {
				continue
			}
			urls = append(urls, results[n-1].URL)
		}
	}
	return urls
}

// AggregateCitations extracts citations from the judge's final answer and
// every per-model answer, includes every result URL (they were consumed
// regardless of whether the model cited them), and deduplicates while
// preserving first-seen order.
func AggregateCitations(finalAnswer string, perModelAnswers []domain.ModelCallResult, results []domain.ResearchResult) []string {
	seen := make(map[string]bool)
	var ordered []string

	add := func(urls []string) {
		for _, u := range urls {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			ordered = append(ordered, u)
		}
	}

	add(ExtractCitations(finalAnswer, results))
	for _, a := range perModelAnswers {
		add(ExtractCitations(a.Answer, results))
	}

	resultURLs := make([]string, len(results))
	for i, r := range results {
		resultURLs[i] = r.URL
	}
	add(resultURLs)

	return ordered
}
