package llm

import "fmt"

// SystemPrompt instructs the model to answer only in file blocks the
// patch parser understands.
const SystemPrompt = "You are an expert pair programmer. You modify files based on the user's instruction " +
	"and the attached project context.\n" +
	"Follow these rules strictly:\n" +
	"1. Only include files that need to be created, edited, or deleted.\n" +
	"2. For a rewritten file, include the complete new content; assume it replaces the file verbatim.\n" +
	"3. For a small, localized edit you may return a unified diff instead of the whole file. " +
	"Use a ```diff fence and standard @@ -start,count +start,count @@ hunk headers.\n" +
	"4. Only make edits relevant to the instruction; do not make unrelated improvements.\n" +
	"5. Keep comments concise. Do not add comments explaining every change.\n" +
	"6. No text outside the blocks described below.\n\n" +
	"To create or rewrite a file:\n" +
	"<file_path:relative/path/to/file.go>\n" +
	"```go\n" +
	"// the full, complete content of the file goes here\n" +
	"```\n\n" +
	"To edit part of a file:\n" +
	"<file_path:relative/path/to/file.go>\n" +
	"```diff\n" +
	"@@ -10,3 +10,4 @@\n" +
	" unchanged context line\n" +
	"-removed line\n" +
	"+replacement line\n" +
	"+another added line\n" +
	"```\n\n" +
	"To delete a file:\n" +
	"<delete_file:relative/path/to/file.go>\n"

// PlanSystemPrompt asks for a numbered plan instead of code.
const PlanSystemPrompt = "You are an expert software architect and senior developer. Create a high-level, " +
	"step-by-step plan to accomplish the user's goal. Focus on the necessary file modifications and creations. " +
	"Do not write code or implementation details. Each step must be a single, clear, actionable instruction " +
	"for a programmer to execute. The plan must be a numbered list."

// UserPrompt pairs the rendered context document with a task instruction.
func UserPrompt(contextDoc, instruction string) string {
	if contextDoc == "" {
		return fmt.Sprintf("My task is: %s", instruction)
	}
	return fmt.Sprintf("%s\n\n---\n\nMy task is: %s", contextDoc, instruction)
}

// PlanPrompt pairs the project outline with the session goal.
func PlanPrompt(outline, goal string) string {
	return fmt.Sprintf("Based on my goal and the project structure below, create your plan.\n\n"+
		"## Project Structure:\n```\n%s\n```\n\n## Goal:\n%s", outline, goal)
}

// RetryInstruction folds rejection feedback into the original step
// instruction for another attempt.
func RetryInstruction(original string, feedback []string) string {
	if len(feedback) == 0 {
		return original
	}
	out := "My previous attempt was not correct."
	for _, f := range feedback {
		out += fmt.Sprintf("\nFeedback: %s", f)
	}
	return fmt.Sprintf("%s\n\n---\n\nMy original instruction was: %s", out, original)
}
