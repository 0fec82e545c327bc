package resources

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/shell"
)

// GPUSampler shells out to nvidia-smi, exactly as the original
// platform_detector.py's _detect_gpu did, via the Shell Executor so the
// call gets the same timeout/cancellation discipline as every other
// subprocess. When nvidia-smi is unavailable this degrades to "not
// available" rather than erroring.
type GPUSampler struct {
	executor *shell.Executor
}

func NewGPUSampler(executor *shell.Executor) *GPUSampler {
	return &GPUSampler{executor: executor}
}

// Sample runs `nvidia-smi --query-gpu=... --format=csv,noheader,nounits`
// with CUDA_VISIBLE_DEVICES cleared (so the query always sees every
// physical device) and a bounded timeout. Returns nil, nil when no GPU
// driver binding is present — this is the documented graceful
// degradation, not an error.
func (g *GPUSampler) Sample(ctx context.Context) (*models.GPUSample, error) {
	spec := shell.Spec{
		Cmd: []string{
			"nvidia-smi",
			"--query-gpu=name,memory.total,memory.free,utilization.gpu,driver_version",
			"--format=csv,noheader,nounits",
		},
		Env:     append(cleanEnv(), "CUDA_VISIBLE_DEVICES="),
		Timeout: 10 * time.Second,
	}

	result, err := g.executor.RunSync(ctx, spec)
	if err != nil || result.Status != shell.StatusCompleted {
		return nil, nil
	}

	line := strings.TrimSpace(strings.SplitN(result.CapturedStdout, "\n", 2)[0])
	if line == "" {
		return nil, nil
	}
	fields := strings.Split(line, ",")
	if len(fields) < 5 {
		return nil, nil
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	memTotal, _ := strconv.ParseFloat(fields[1], 64)
	memFree, _ := strconv.ParseFloat(fields[2], 64)
	util, _ := strconv.ParseFloat(fields[3], 64)

	return &models.GPUSample{
		Name:          fields[0],
		MemTotalMB:    memTotal,
		MemFreeMB:     memFree,
		UtilPercent:   util,
		DriverVersion: fields[4],
	}, nil
}

func cleanEnv() []string {
	// A minimal, deterministic PATH so nvidia-smi resolves regardless of
	// the caller's shell environment; callers that need the full
	// environment should merge it in before calling Sample.
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}
