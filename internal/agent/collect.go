package agent

import "strings"

// CollectResult drains an invocation's event stream into a RunResult.
// It returns when the stream is closed, which happens after the completed
// event or after Dispose.
func CollectResult(inv *Invocation) RunResult {
	var result RunResult
	var logLines []string

	for ev := range inv.Events {
		switch ev.Kind {
		case EventLog:
			logLines = append(logLines, ev.Text)
		case EventFileWrite:
			result.FilesWritten = append(result.FilesWritten, ev.Path)
		case EventCompleted:
			result.ExitCode = ev.ExitCode
		}
	}

	result.Log = strings.Join(logLines, "\n")
	return result
}
