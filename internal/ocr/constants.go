package ocr

import "time"

// EngineTimeout bounds one engine run, measured from process launch.
const EngineTimeout = 30 * time.Second

const (
	// waitDelay bounds how long Wait keeps draining pipes after the engine is killed.
	waitDelay = 2 * time.Second
	// probeTimeout bounds each "<python> --version" probe during resolution.
	probeTimeout = 5 * time.Second

	selfTestFlag = "--test"

	engineDir    = "python-ocr"
	engineScript = "ocr_service.py"
	engineBinary = "ocr_service"
	resourcesDir = "resources"

	// stderrLogLimit caps stderr carried in error metadata.
	stderrLogLimit = 4096
)

// pythonCandidates are probed in order when no virtualenv is present.
var pythonCandidates = []string{"python3", "python", "py"}
