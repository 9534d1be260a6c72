// Package agent embeds the default redland-forge build-agent script.
//
// The agent itself is an out-of-scope external collaborator (spec.md §1):
// the executor treats it as an opaque executable whose combined
// stdout+stderr is a line stream with known phase markers. This package
// only supplies a convenient default; any script honoring the agent
// contract in spec.md §6 may be substituted via configuration.
//
// Embedding a default script this way is grounded on
// tim-coutinho-agentops/cli/embedded/embed.go, the only example in the
// pack that ships a go:embed default alongside user-overridable behavior.
package agent

import _ "embed"

//go:embed agent.sh
var DefaultScript []byte

// DefaultScriptName is the filename the default script is uploaded under.
const DefaultScriptName = "redland-forge-agent.sh"
