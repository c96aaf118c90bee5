package runner

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/sre-norns/vellum/pkg/nativelayer"
	"github.com/sre-norns/vellum/pkg/redqueue"
)

const (
	LabelOS   = "worker.os"
	LabelArch = "worker.arch"

	LabelBuildVersion      = "worker.version"
	LabelBuildVersionMajor = LabelBuildVersion + ".major"
	LabelGoVersion         = "worker.go.version"
)

type WorkerConfig struct {
	Queue  redqueue.SchedulerOptions `embed:"" prefix:"queue."`
	Chrome nativelayer.ChromeOptions `embed:"" prefix:"chrome."`

	Concurrency int           `help:"Number of render jobs processed in parallel" default:"2"`
	Timeout     time.Duration `help:"Maximum duration alloted for each render job" default:"1m"`
	Name        string        `help:"Custom name for this worker" env:"WORKER_NAME"`
}

// GetRuntimeLabels describes the process the worker runs in.
func GetRuntimeLabels() map[string]string {
	labels := map[string]string{
		LabelOS:        runtime.GOOS,
		LabelArch:      runtime.GOARCH,
		LabelGoVersion: strings.TrimPrefix(runtime.Version(), "go"),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return labels
	}

	version := strings.Trim(bi.Main.Version, "()")
	labels[LabelBuildVersion] = version
	if semver.IsValid(version) {
		labels[LabelBuildVersionMajor] = semver.Major(version)
	}

	return labels
}
