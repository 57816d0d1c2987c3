//go:build windows

package ocr

import "os/exec"

// isolate relies on TerminateProcess, which cannot be ignored by the engine.
func isolate(cmd *exec.Cmd) {
	cmd.Cancel = func() error { return cmd.Process.Kill() }
}
