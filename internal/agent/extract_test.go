package agent

import (
	"testing"
)

var knownTools = map[string]bool{
	"Read": true, "Write": true, "Bash": true, "Grep": true,
}

func TestExtractExplicitForm(t *testing.T) {
	text := `I'll read the file.
<function_call>Read({"file_path": "main.go", "limit": 10})</function_call>`

	calls := ExtractToolCalls(text, knownTools)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "Read" {
		t.Errorf("name = %q", calls[0].Name)
	}
	if calls[0].Arguments["file_path"] != "main.go" {
		t.Errorf("file_path = %v", calls[0].Arguments["file_path"])
	}
	if calls[0].Arguments["limit"] != float64(10) {
		t.Errorf("limit = %v (%T)", calls[0].Arguments["limit"], calls[0].Arguments["limit"])
	}
}

func TestExtractBareFormKnownOnly(t *testing.T) {
	text := `Bash(command="ls -la") and also Print(x) which is not a tool`

	calls := ExtractToolCalls(text, knownTools)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "Bash" {
		t.Errorf("name = %q", calls[0].Name)
	}
	if calls[0].Arguments["command"] != "ls -la" {
		t.Errorf("command = %v", calls[0].Arguments["command"])
	}
}

func TestExtractExplicitWins(t *testing.T) {
	text := `<function_call>Read(file_path=a.go)</function_call> and Write(file_path=b.go, content=x)`

	calls := ExtractToolCalls(text, knownTools)
	if len(calls) != 1 || calls[0].Name != "Read" {
		t.Fatalf("explicit recognizer should win, got %v", calls)
	}
}

func TestExtractNoCalls(t *testing.T) {
	if calls := ExtractToolCalls("just prose, no invocations", knownTools); calls != nil {
		t.Errorf("got %v, want nil", calls)
	}
}

func TestExtractMultipleBareCalls(t *testing.T) {
	text := `Read(file_path=a.go) then Grep(pattern=TODO, path=src)`
	calls := ExtractToolCalls(text, knownTools)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].Name != "Read" || calls[1].Name != "Grep" {
		t.Errorf("order = %s, %s", calls[0].Name, calls[1].Name)
	}
}

func TestParseArgumentsCoercion(t *testing.T) {
	args := ParseArguments(`path=src, recursive=true, max_depth=3, ratio=0.7, name="quoted, value"`)

	if args["path"] != "src" {
		t.Errorf("path = %v", args["path"])
	}
	if args["recursive"] != true {
		t.Errorf("recursive = %v (%T)", args["recursive"], args["recursive"])
	}
	if args["max_depth"] != 3 {
		t.Errorf("max_depth = %v (%T)", args["max_depth"], args["max_depth"])
	}
	if args["ratio"] != 0.7 {
		t.Errorf("ratio = %v (%T)", args["ratio"], args["ratio"])
	}
	if args["name"] != "quoted, value" {
		t.Errorf("name = %v", args["name"])
	}
}

func TestParseArgumentsJSON(t *testing.T) {
	args := ParseArguments(`{"command": "echo hi", "timeout": 5}`)
	if args["command"] != "echo hi" {
		t.Errorf("command = %v", args["command"])
	}
}

func TestParseArgumentsEmpty(t *testing.T) {
	args := ParseArguments("   ")
	if len(args) != 0 {
		t.Errorf("args = %v, want empty", args)
	}
}
