package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"testpilot/internal/logging"
)

// selfLaunchSignatures indicate a test command that would itself launch
// another editor instance, which tends to hang headless runs.
var selfLaunchSignatures = []string{
	"--extensionDevelopmentPath",
	"--extensionTestsPath",
	"vscode-test",
	"@vscode/test-electron",
	"@vscode/test-cli",
	"wdio",
	"code --",
	"code.exe",
}

// WarnIfSelfLaunch inspects the command text (and, for an npm test-style
// invocation, the project manifest's test script) for editor self-launch
// signatures. Detection logs a non-blocking warning; execution proceeds
// unchanged either way. Returns whether a signature was found.
func WarnIfSelfLaunch(command, dir string, log *logging.SessionLogger) bool {
	if log == nil {
		log = logging.NewNop()
	}

	inspected := command
	if isNpmTestInvocation(command) {
		if script := readManifestTestScript(dir); script != "" {
			inspected += "\n" + script
		}
	}

	for _, sig := range selfLaunchSignatures {
		if strings.Contains(inspected, sig) {
			log.Warn("test command may launch another editor instance",
				zap.String("signature", sig), zap.String("command", command))
			return true
		}
	}
	return false
}

func isNpmTestInvocation(command string) bool {
	fields := strings.Fields(command)
	for i, f := range fields {
		switch f {
		case "npm", "pnpm", "yarn", "bun":
			if i+1 < len(fields) && (fields[i+1] == "test" || fields[i+1] == "t") {
				return true
			}
			if i+2 < len(fields) && fields[i+1] == "run" && fields[i+2] == "test" {
				return true
			}
		}
	}
	return false
}

// readManifestTestScript returns the package.json test script, or "".
func readManifestTestScript(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.Scripts["test"]
}
