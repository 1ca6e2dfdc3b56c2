package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hochfrequenz/checklist-orch/internal/config"
)

// launch describes one agent process before it is started
type launch struct {
	workDir   string
	sessionID string
	prompt    string
	model     string
}

// buildCommand creates the command for the configured runtime
func (a *AgentInvoker) buildCommand(ctx context.Context, l launch) (*exec.Cmd, error) {
	switch a.cfg.Runtime() {
	case config.RuntimeOpenCode:
		return a.buildOpenCodeCommand(ctx, l)
	default:
		return a.buildClaudeCodeCommand(ctx, l)
	}
}

// claudeCodeArgs returns the arguments passed to claude, without the prompt
func (a *AgentInvoker) claudeCodeArgs(l launch) []string {
	args := []string{
		"--print",                        // Non-interactive mode
		"--verbose",                      // Required for stream-json output
		"--dangerously-skip-permissions", // Skip permission prompts
		"--output-format", "stream-json",
		"--session-id", l.sessionID,
		"--model", l.model,
	}
	if mcpConfig := a.mcpConfigJSON(); mcpConfig != "" {
		args = append(args, "--mcp-config", mcpConfig)
	}
	return args
}

func (a *AgentInvoker) buildClaudeCodeCommand(ctx context.Context, l launch) (*exec.Cmd, error) {
	args := append(a.claudeCodeArgs(l), "-p", l.prompt)

	cmd := exec.CommandContext(ctx, a.cfg.AgentBinary(), args...)
	cmd.Dir = l.workDir
	cmd.Env = os.Environ()
	return cmd, nil
}

// opencode manages its own session IDs, so none is passed
func (a *AgentInvoker) buildOpenCodeCommand(ctx context.Context, l launch) (*exec.Cmd, error) {
	configPath, err := a.writeOpenCodeConfig(l.workDir)
	if err != nil {
		return nil, fmt.Errorf("writing opencode config: %w", err)
	}

	args := []string{"run", "-m", l.model, l.prompt}

	cmd := exec.CommandContext(ctx, a.cfg.AgentBinary(), args...)
	cmd.Dir = l.workDir
	cmd.Env = append(os.Environ(), "OPENCODE_CONFIG="+configPath)
	return cmd, nil
}

// loadMCPServers reads mcpServers from <agent resources>/.mcp.json, if present
func (a *AgentInvoker) loadMCPServers() map[string]any {
	data, err := os.ReadFile(filepath.Join(a.cfg.AgentResourcesDir(), ".mcp.json"))
	if err != nil {
		return nil
	}
	var projectConfig struct {
		MCPServers map[string]any `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &projectConfig); err != nil {
		a.logger.Warn("ignoring malformed .mcp.json", "dir", a.cfg.AgentResourcesDir(), "error", err)
		return nil
	}
	return projectConfig.MCPServers
}

// mcpConfigJSON returns the MCP servers of the agent resources in claude's
// --mcp-config format, or "" when none are configured.
func (a *AgentInvoker) mcpConfigJSON() string {
	servers := a.loadMCPServers()
	if len(servers) == 0 {
		return ""
	}
	data, err := json.Marshal(map[string]any{"mcpServers": servers})
	if err != nil {
		return ""
	}
	return string(data)
}

// toOpenCodeServer converts a claude-style MCP server entry to opencode's format
func toOpenCodeServer(raw any) (map[string]any, bool) {
	configMap, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	server := map[string]any{
		"type":    "local",
		"enabled": true,
	}

	var command []string
	switch c := configMap["command"].(type) {
	case string:
		command = []string{c}
	case []any:
		for _, v := range c {
			if s, ok := v.(string); ok {
				command = append(command, s)
			}
		}
	}
	if args, ok := configMap["args"].([]any); ok {
		for _, v := range args {
			if s, ok := v.(string); ok {
				command = append(command, s)
			}
		}
	}
	server["command"] = command

	if env, ok := configMap["env"].(map[string]any); ok {
		environment := make(map[string]string, len(env))
		for k, v := range env {
			if s, ok := v.(string); ok {
				environment[k] = s
			}
		}
		server["environment"] = environment
	}
	return server, true
}

// writeOpenCodeConfig writes the permission and MCP config used by opencode
// into the item's working directory and returns its path.
func (a *AgentInvoker) writeOpenCodeConfig(workDir string) (string, error) {
	cfg := map[string]any{
		"$schema": "https://opencode.ai/config.json",
		"permission": map[string]string{
			"edit":               "allow",
			"bash":               "allow",
			"webfetch":           "allow",
			"external_directory": "allow",
		},
	}

	mcp := make(map[string]any)
	for name, raw := range a.loadMCPServers() {
		if server, ok := toOpenCodeServer(raw); ok {
			mcp[name] = server
		}
	}
	if len(mcp) > 0 {
		cfg["mcp"] = mcp
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(workDir, ".opencode.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
