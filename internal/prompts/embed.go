// Package prompts provides externalized, overridable prompt templates for
// every stage of the merge pipeline: per-mode query system prompts, judge
// system prompts, and debate feedback/refinement prompts.
package prompts

import "embed"

//go:embed templates/system/*.md templates/judge/*.md templates/debate/*.md templates/research/*.md
var embeddedFS embed.FS
