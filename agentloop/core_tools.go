package agentloop

import (
	"context"
	"encoding/json"

	"github.com/martinemde/patchloop/unifiedllm"
)

// Read-only tool names.
const (
	ToolListDir     = "ls"
	ToolPwd         = "pwd"
	ToolReadFile    = "cat"
	ToolSearchDir   = "search-files-text"
	ToolFindFile    = "find-file"
	ToolSearchLines = "search-lines"
	ToolCountLines  = "count-lines"
)

// Write tool names.
const (
	ToolExec    = "exec"
	ToolAppend  = "append-text"
	ToolReplace = "replace-text"
	ToolCreate  = "create"
	ToolDiff    = "get-diff"
)

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// softError renders an error for a result payload, "" for nil.
func softError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RegisterReadOnlyTools registers the inspection tools bound to env.
func RegisterReadOnlyTools(reg *ToolRegistry, env ReadOnlyEnvironment) {
	reg.Register(RegisteredTool{
		Definition: definition(ToolListDir, "List the entries of a directory.",
			objectSchema(map[string]interface{}{"dir_path": stringProp("Directory to list, relative to the project root.")}, "dir_path")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			dir, _ := GetStringArg(args, "dir_path")
			files, err := env.ListDir(dir)
			return ToolOutput{Value: map[string]interface{}{"files": files, "error": softError(err)}, OK: err == nil}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolPwd, "Get the project root directory.", objectSchema(map[string]interface{}{})),
		Executor: func(context.Context, json.RawMessage) (ToolOutput, error) {
			return ToolOutput{Value: map[string]string{"path": env.WorkingDirectory()}, OK: true}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolReadFile, "Read the full content of a file.",
			objectSchema(map[string]interface{}{"file_path": stringProp("Path of the file to read.")}, "file_path")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolOutput{}, err
			}
			content, err := env.ReadFile(path)
			return ToolOutput{Value: map[string]interface{}{"content": content, "error": softError(err)}, OK: err == nil}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolSearchDir, "Find files under a directory whose content contains a search term. Test files are skipped.",
			objectSchema(map[string]interface{}{
				"dir_path":    stringProp("Directory to search in."),
				"search_term": stringProp("Text to search for."),
			}, "dir_path", "search_term")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			term, err := requireString(args, "search_term")
			if err != nil {
				return ToolOutput{}, err
			}
			dir, _ := GetStringArg(args, "dir_path")
			files, err := env.SearchDir(dir, term)
			return ToolOutput{Value: map[string]interface{}{"files": files, "error": softError(err)}, OK: err == nil}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolFindFile, "Find a file by name anywhere under the project root.",
			objectSchema(map[string]interface{}{"file_name": stringProp("Exact file name to look for.")}, "file_name")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			name, err := requireString(args, "file_name")
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := env.FindFile(name)
			if err != nil {
				return ToolOutput{Value: map[string]interface{}{"path": nil}}, nil
			}
			return ToolOutput{Value: map[string]interface{}{"path": path}, OK: true}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolSearchLines, "List the lines of a file that contain a search term.",
			objectSchema(map[string]interface{}{
				"file_path":   stringProp("File to search."),
				"search_term": stringProp("Text to search for."),
			}, "file_path", "search_term")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolOutput{}, err
			}
			term, err := requireString(args, "search_term")
			if err != nil {
				return ToolOutput{}, err
			}
			lines, err := env.SearchLines(path, term)
			return ToolOutput{Value: map[string]interface{}{"lines": lines, "error": softError(err)}, OK: err == nil}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolCountLines, "Count the lines of a file.",
			objectSchema(map[string]interface{}{"file_path": stringProp("File to count.")}, "file_path")),
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolOutput{}, err
			}
			n, err := env.CountLines(path)
			return ToolOutput{Value: map[string]int{"lines": n}, OK: err == nil}, nil
		},
	})
}

// RegisterWriteTools registers the mutating tools bound to env. Read-only
// tools are not included; call RegisterReadOnlyTools as well for a full set.
func RegisterWriteTools(reg *ToolRegistry, env WriteEnvironment) {
	reg.Register(RegisteredTool{
		Definition: definition(ToolExec, "Run a shell command in the project root.",
			objectSchema(map[string]interface{}{"command": stringProp("The command to execute.")}, "command")),
		Mutating: true,
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			command, err := requireString(args, "command")
			if err != nil {
				return ToolOutput{}, err
			}
			before, fpErr := env.Fingerprint()
			res, err := env.Exec(ctx, command, "")
			if err != nil {
				return ToolOutput{}, err
			}
			// a command that ran cleanly but touched nothing is not an edit
			changed := res.Success()
			if fpErr == nil {
				if after, err := env.Fingerprint(); err == nil && after == before {
					changed = false
				}
			}
			return ToolOutput{Value: map[string]interface{}{"success": res.Success(), "output": res.Output()}, OK: changed}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolAppend, "Append text to the end of a file, creating it if needed.",
			objectSchema(map[string]interface{}{
				"file_path": stringProp("File to modify."),
				"text":      stringProp("Text to append."),
			}, "file_path", "text")),
		Mutating: true,
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolOutput{}, err
			}
			text, err := requireString(args, "text")
			if err != nil {
				return ToolOutput{}, err
			}
			res := env.AppendText(path, text)
			return ToolOutput{Value: res, OK: res.Success && text != ""}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolReplace, "Replace the first occurrence of old_str with new_str in a file. Change exactly one line per call.",
			objectSchema(map[string]interface{}{
				"file_path": stringProp("File to modify."),
				"old_str":   stringProp("Exact text to replace."),
				"new_str":   stringProp("Replacement text."),
			}, "file_path", "old_str", "new_str")),
		Mutating: true,
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, _ := GetStringArg(args, "file_path")
			oldStr, _ := GetStringArg(args, "old_str")
			newStr, _ := GetStringArg(args, "new_str")
			res := env.ReplaceText(path, oldStr, newStr)
			changed := res.Success && res.Error == "" && path != "" && oldStr != newStr
			return ToolOutput{Value: res, OK: changed}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolCreate, "Create a file or a folder.",
			objectSchema(map[string]interface{}{
				"path": stringProp("Path of the new file or folder."),
				"type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(KindFile), string(KindFolder)},
					"description": "What to create.",
				},
				"content": stringProp("Initial content when creating a file."),
			}, "path", "type")),
		Mutating: true,
		Executor: func(_ context.Context, raw json.RawMessage) (ToolOutput, error) {
			args, err := ParseToolArguments(raw)
			if err != nil {
				return ToolOutput{}, err
			}
			path, err := requireString(args, "path")
			if err != nil {
				return ToolOutput{}, err
			}
			kind, _ := GetStringArg(args, "type")
			content, _ := GetStringArg(args, "content")
			res := env.Create(path, EntryKind(kind), content)
			return ToolOutput{Value: res, OK: res.Success}, nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: definition(ToolDiff, "Show the git diff of the project with per-file line counts. Use it at the start and end of a task.", objectSchema(map[string]interface{}{})),
		Executor: func(ctx context.Context, _ json.RawMessage) (ToolOutput, error) {
			summary, err := env.Diff(ctx)
			if err != nil {
				return ToolOutput{Value: map[string]interface{}{"success": false, "diff": "", "error": err.Error()}}, nil
			}
			return ToolOutput{Value: map[string]interface{}{"success": true, "diff": summary.Raw, "files": summary.Files}, OK: true}, nil
		},
	})
}

func definition(name, description string, params map[string]interface{}) unifiedllm.ToolDefinition {
	return unifiedllm.ToolDefinition{Name: name, Description: description, Parameters: params}
}
