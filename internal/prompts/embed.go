// Package prompts provides the agent instruction templates with override support.
package prompts

import "embed"

//go:embed checklist/*.md
var embeddedFS embed.FS
