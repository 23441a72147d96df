package proctree

import (
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// KnownAgents maps executable or package names to agent types.
var KnownAgents = map[string]string{
	"claude":       "claude",
	"claude-code":  "claude",
	"codex":        "codex",
	"gemini":       "gemini",
	"gemini-cli":   "gemini",
	"aider":        "aider",
	"opencode":     "opencode",
	"cursor-agent": "cursor",
}

// interpreters run agents distributed as scripts; the agent name is then
// the script path in the next argument.
var interpreters = map[string]bool{
	"node":    true,
	"bun":     true,
	"deno":    true,
	"python":  true,
	"python3": true,
}

// Detect inspects the descendants of root. The shallowest known agent wins.
// An agent is busy when it is running on a CPU or has spawned children of
// its own. Without an agent the tree is busy when the
// shell has any foreground children; IsBusy is nil when root is not found.
func Detect(procs []Proc, root int) process.Detection {
	children := make(map[int][]Proc)
	found := false
	for _, p := range procs {
		if p.PID == root {
			found = true
			continue
		}
		children[p.PPID] = append(children[p.PPID], p)
	}
	if !found {
		return process.Detection{}
	}

	// Breadth-first so that the agent closest to the shell is reported.
	queue := append([]Proc(nil), children[root]...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if agent, name := matchAgent(p); agent != "" {
			busy := subtreeBusy(children, p)
			return process.Detection{
				Detected:    true,
				AgentType:   agent,
				ProcessName: name,
				IsBusy:      &busy,
			}
		}
		queue = append(queue, children[p.PID]...)
	}

	busy := len(children[root]) > 0
	return process.Detection{IsBusy: &busy}
}

func matchAgent(p Proc) (agent, name string) {
	candidates := []string{p.Comm}
	if len(p.Cmdline) > 0 {
		exe := filepath.Base(p.Cmdline[0])
		candidates = append(candidates, exe)
		if interpreters[exe] || strings.HasPrefix(exe, "python") {
			for _, arg := range p.Cmdline[1:] {
				if strings.HasPrefix(arg, "-") {
					continue
				}
				candidates = append(candidates, filepath.Base(arg))
				// npm installs run as .../node_modules/@scope/<package>/cli.js.
				candidates = append(candidates, strings.Split(arg, "/")...)
				break
			}
		}
	}

	for _, c := range candidates {
		c = strings.TrimSuffix(c, filepath.Ext(c))
		if agent, ok := KnownAgents[c]; ok {
			return agent, c
		}
	}
	return "", ""
}

func subtreeBusy(children map[int][]Proc, p Proc) bool {
	return p.State == "R" || len(children[p.PID]) > 0
}
