package fix

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"m2p/config"
)

// marpJob is a single marp CLI invocation.
type marpJob struct {
	output string
	args   []string
}

// renderIntermediates invokes the external marp CLI to produce both
// intermediate renderings of the markdown source: the HTML reference and the
// raw editable PPTX. The invocations are independent, so they run
// concurrently, bounded by the configured worker count.
func renderIntermediates(ctx context.Context, cfg *config.MarpConfig, src, htmlOut, pptxOut string, log *zap.Logger) error {
	jobs := []marpJob{
		{output: htmlOut, args: []string{src, "--html", "--output", htmlOut}},
		{output: pptxOut, args: []string{src, "--pptx", "--pptx-editable", "--output", pptxOut}},
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	results := make([]error, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job marpJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = runMarp(ctx, cfg, job, log)
		}(i, job)
	}
	wg.Wait()

	return multierr.Combine(results...)
}

// runMarp executes one marp invocation under the configured timeout.
func runMarp(ctx context.Context, cfg *config.MarpConfig, job marpJob, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Binary, job.args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug("Running marp", zap.String("binary", cfg.Binary), zap.Strings("args", job.args))
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("marp failed for %s: %w (%s)", job.output, err, bytes.TrimSpace(stderr.Bytes()))
	}
	log.Debug("Marp finished", zap.String("output", job.output), zap.Duration("elapsed", time.Since(start)))
	return nil
}
