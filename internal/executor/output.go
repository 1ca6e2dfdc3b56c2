package executor

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

const (
	maxOutputLines = 2000
	maxLineBytes   = 1024 * 1024
)

// outputSink receives the agent's stdout and stderr, splits them into lines,
// mirrors every line to the log file, and keeps the most recent lines in memory.
type outputSink struct {
	mu      sync.Mutex
	log     io.Writer
	partial []byte
	lines   []string
	total   int
	usage   Usage
}

func newOutputSink(log io.Writer) *outputSink {
	return &outputSink{log: log}
}

func (s *outputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partial = append(s.partial, p...)
	for {
		idx := bytes.IndexByte(s.partial, '\n')
		if idx < 0 {
			break
		}
		s.addLine(string(bytes.TrimRight(s.partial[:idx], "\r")))
		s.partial = s.partial[idx+1:]
	}
	if len(s.partial) > maxLineBytes {
		s.addLine(string(s.partial))
		s.partial = nil
	}
	return len(p), nil
}

// addLine must be called with s.mu held
func (s *outputSink) addLine(line string) {
	if s.log != nil {
		io.WriteString(s.log, line+"\n")
	}
	s.parseUsage(line)
	s.total++
	s.lines = append(s.lines, line)
	if len(s.lines) >= 2*maxOutputLines {
		s.lines = append(s.lines[:0:0], s.lines[len(s.lines)-maxOutputLines:]...)
	}
}

// retained must be called with s.mu held
func (s *outputSink) retained() []string {
	if len(s.lines) > maxOutputLines {
		return s.lines[len(s.lines)-maxOutputLines:]
	}
	return s.lines
}

// Close flushes a trailing line without newline
func (s *outputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.partial) > 0 {
		s.addLine(string(s.partial))
		s.partial = nil
	}
	return nil
}

// Lines returns a copy of the retained lines
func (s *outputSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.retained()...)
}

// String returns the retained output
func (s *outputSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.retained()
	out := strings.Join(kept, "\n")
	if s.total > len(kept) {
		return "[... earlier output truncated ...]\n" + out
	}
	return out
}

func (s *outputSink) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// resultMessage is the final stream-json message emitted by claude
type resultMessage struct {
	Type  string `json:"type"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	CostUSD      float64 `json:"cost_usd"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// parseUsage must be called with s.mu held
func (s *outputSink) parseUsage(line string) {
	if !strings.HasPrefix(line, "{") {
		return
	}
	var msg resultMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type != "result" {
		return
	}
	s.usage.InputTokens = msg.Usage.InputTokens
	s.usage.OutputTokens = msg.Usage.OutputTokens
	s.usage.CostUSD = msg.CostUSD
	if s.usage.CostUSD == 0 {
		s.usage.CostUSD = msg.TotalCostUSD
	}
}

// extractErrorFromOutput scans the last lines for an error reported by the
// agent runtime (opencode or claude JSON error lines) and returns a
// human-readable message, or "" if none is found.
func extractErrorFromOutput(lines []string) string {
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-20; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}

		// opencode: {"type":"error","error":{"name":...,"data":{"message":...}}}
		var openCodeErr struct {
			Type  string `json:"type"`
			Error struct {
				Name string `json:"name"`
				Data struct {
					Message string `json:"message"`
				} `json:"data"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &openCodeErr); err == nil && openCodeErr.Type == "error" {
			msg := openCodeErr.Error.Data.Message
			if msg == "" {
				msg = openCodeErr.Error.Name
			}
			if strings.Contains(msg, "CreditsError") || strings.Contains(msg, "No payment method") {
				return "opencode billing error: no payment method configured"
			}
			if strings.Contains(msg, "Unauthorized") {
				return "opencode authentication error: " + msg
			}
			if msg != "" {
				return msg
			}
		}

		// claude: {"type":"error","error":"..."} or a result with is_error
		var claudeErr struct {
			Type    string `json:"type"`
			Subtype string `json:"subtype"`
			Error   string `json:"error"`
			IsError bool   `json:"is_error"`
			Result  string `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &claudeErr); err == nil {
			if claudeErr.Type == "error" && claudeErr.Error != "" {
				return claudeErr.Error
			}
			if claudeErr.Type == "result" && claudeErr.IsError {
				if claudeErr.Result != "" {
					return claudeErr.Result
				}
				return claudeErr.Subtype
			}
		}
	}
	return ""
}
