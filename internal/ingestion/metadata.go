package ingestion

import (
	"path/filepath"
	"strings"
)

// knownAgents is the set of agent labels that can be inferred from a
// memory file's directory layout.
var knownAgents = map[string]string{
	"axis":     "axis",
	"oria":     "oria",
	"sentinel": "sentinel",
	"m":        "sentinel",
	"selah":    "oria",
}

// InferAgent inspects a memory file path and returns the agent label it
// belongs to. The convention is memories/<agent>/<file>, so the parent
// directory names the agent. Explicit CLI flags take precedence over the
// inferred value; "axis" is the fallback when no directory matches.
func InferAgent(path string) string {
	dir := filepath.Dir(filepath.Clean(path))
	for dir != "." && dir != string(filepath.Separator) {
		base := strings.ToLower(filepath.Base(dir))
		if agent, ok := knownAgents[base]; ok {
			return agent
		}
		dir = filepath.Dir(dir)
	}
	return "axis"
}

// Expand resolves a list of path arguments into concrete Sources. Each
// argument may be a file or a glob pattern; non-text files are skipped.
// When agent is empty the agent is inferred per file from its path.
func Expand(args []string, agent, tags string) ([]Source, error) {
	var sources []Source
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = []string{arg}
		}
		for _, path := range matches {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".txt", ".md", ".log":
			default:
				continue
			}
			src := Source{Path: path, Agent: agent, Tags: tags}
			if src.Agent == "" {
				src.Agent = InferAgent(path)
			}
			sources = append(sources, src)
		}
	}
	return sources, nil
}
