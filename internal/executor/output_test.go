package executor

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestExtractErrorFromOutput(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"no json", []string{"plain", "text"}, ""},
		{
			"opencode billing",
			[]string{`{"type":"error","error":{"name":"APIError","data":{"message":"CreditsError: No payment method"}}}`},
			"opencode billing error: no payment method configured",
		},
		{
			"opencode name only",
			[]string{`{"type":"error","error":{"name":"ProviderInitError"}}`},
			"ProviderInitError",
		},
		{"claude error", []string{`{"type":"error","error":"rate limited"}`}, "rate limited"},
		{
			"claude result error",
			[]string{`{"type":"result","subtype":"error_max_turns","is_error":true}`},
			"error_max_turns",
		},
		{
			"latest error wins",
			[]string{`{"type":"error","error":"old"}`, "noise", `{"type":"error","error":"new"}`},
			"new",
		},
		{"non error json", []string{`{"type":"assistant","message":"hi"}`}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractErrorFromOutput(tt.lines); got != tt.want {
				t.Errorf("extractErrorFromOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutputSink(t *testing.T) {
	var log bytes.Buffer
	sink := newOutputSink(&log)

	fmt.Fprint(sink, "first li")
	fmt.Fprint(sink, "ne\r\nsecond\n")
	fmt.Fprint(sink, `{"type":"result","usage":{"input_tokens":10,"output_tokens":20},"total_cost_usd":0.5}`+"\n")
	fmt.Fprint(sink, "tail")
	sink.Close()

	lines := sink.Lines()
	if len(lines) != 4 || lines[0] != "first line" || lines[1] != "second" || lines[3] != "tail" {
		t.Errorf("Lines() = %q", lines)
	}
	if !strings.HasPrefix(log.String(), "first line\nsecond\n") {
		t.Errorf("log = %q", log.String())
	}
	usage := sink.Usage()
	if usage.InputTokens != 10 || usage.OutputTokens != 20 || usage.CostUSD != 0.5 {
		t.Errorf("Usage() = %+v", usage)
	}
}

func TestOutputSink_Bounded(t *testing.T) {
	sink := newOutputSink(nil)
	for i := 0; i < maxOutputLines+10; i++ {
		fmt.Fprintf(sink, "line %d\n", i)
	}

	lines := sink.Lines()
	if len(lines) != maxOutputLines {
		t.Fatalf("len(Lines()) = %d, want %d", len(lines), maxOutputLines)
	}
	if lines[0] != "line 10" {
		t.Errorf("oldest retained line = %q, want line 10", lines[0])
	}
	if !strings.HasPrefix(sink.String(), "[... earlier output truncated ...]") {
		t.Error("String() should mark truncated output")
	}
}
