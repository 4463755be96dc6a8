// Package runner inspects every file of a bundle and assembles the
// per-file reports into one aggregate, in bundle order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/olegiv/drfeedback-go/internal/bundle"
	"github.com/olegiv/drfeedback-go/internal/inspector"
	"github.com/olegiv/drfeedback-go/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Policy decides what a failed file does to the rest of the run.
type Policy string

const (
	// PolicyIsolate records the failure on the file and keeps going.
	PolicyIsolate Policy = "isolate"
	// PolicyAbort stops scheduling files after the first failure and
	// returns the error with the partial aggregate.
	PolicyAbort Policy = "abort"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyIsolate, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q (must be isolate or abort)", s)
	}
}

// ErrNotInspected marks files that were never started because the run was
// cancelled or aborted.
var ErrNotInspected = errors.New("file was not inspected")

// Options configures a Runner. Zero values select the default registry,
// GOMAXPROCS workers, isolation and a discarding logger.
type Options struct {
	Registry    *inspector.Registry
	Deps        inspector.Deps
	Concurrency int
	Policy      Policy
	Logger      *logging.SecureLogger
}

// Runner applies the registered inspectors to bundles.
type Runner struct {
	registry    *inspector.Registry
	deps        inspector.Deps
	concurrency int
	policy      Policy
	log         *logging.SecureLogger
}

// New creates a runner.
func New(opts Options) *Runner {
	r := &Runner{
		registry:    opts.Registry,
		deps:        opts.Deps,
		concurrency: opts.Concurrency,
		policy:      opts.Policy,
		log:         opts.Logger,
	}
	if r.registry == nil {
		r.registry = inspector.DefaultRegistry()
	}
	if r.concurrency <= 0 {
		r.concurrency = runtime.GOMAXPROCS(0)
	}
	if r.policy == "" {
		r.policy = PolicyIsolate
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	return r
}

// Run inspects every file in b. The aggregate is always returned, also
// alongside an error: with PolicyAbort the first failed file's error, or
// the context error when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, b *bundle.Bundle) (*AggregateReport, error) {
	start := time.Now()
	files := b.Files()
	log := r.log.With("report_id", b.ID())

	log.Info().Int("files", len(files)).Int("concurrency", r.concurrency).
		Str("policy", string(r.policy)).Msg("Starting bundle inspection")

	// Each goroutine owns results[i]; no lock needed.
	results := make([]FileResult, len(files))
	started := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(r.concurrency, len(files))))

	for i, f := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			started[i] = true

			res := r.inspectFile(gctx, f)
			results[i] = res

			if res.Failed() {
				log.Warn().Str("file", res.Filename).Str("kind", res.Kind.String()).
					Err(res.Err).Msg("File inspection failed")
				if r.policy == PolicyAbort {
					return fmt.Errorf("inspection of %s failed: %w", res.Filename, res.Err)
				}
				return nil
			}

			info, warn, errs := res.Report.Counts()
			log.Debug().Str("file", res.Filename).Str("kind", res.Kind.String()).
				Int("info", info).Int("warn", warn).Int("error", errs).Msg("File inspected")
			return nil
		})
	}
	runErr := g.Wait()

	for i, f := range files {
		if !started[i] {
			results[i] = notInspected(f.Name)
		}
	}

	agg := &AggregateReport{
		ID:        b.ID(),
		CreatedAt: start,
		Duration:  time.Since(start),
		Results:   results,
	}

	info, warn, errs := agg.Counts()
	log.Info().Int("info", info).Int("warn", warn).Int("error", errs).
		Int("failed_files", len(agg.Failed())).Dur("elapsed", agg.Duration).
		Msg("Bundle inspection complete")

	if runErr != nil {
		return agg, runErr
	}
	return agg, nil
}

// inspectFile resolves and runs the inspector for one file. Every failure
// leaves at least one error finding on the report.
func (r *Runner) inspectFile(ctx context.Context, f bundle.File) (res FileResult) {
	res = FileResult{Filename: f.Name, Report: inspector.NewReport()}

	spec, err := r.registry.Resolve(f.Name)
	if err != nil {
		res.Format = inspector.DetectFormat(f.Data)
		res.Err = err
		res.Report.AddError(fmt.Sprintf("No inspector is registered for file %s", f.Name))
		return res
	}
	res.Kind = spec.Kind

	content := inspector.NewContent(f.Data, spec.Detection)
	res.Format = content.Format

	insp, err := inspector.New(spec.Kind, r.deps)
	if err != nil {
		res.Err = err
		res.Report.AddError(fmt.Sprintf("Could not create %s inspector", spec.Kind))
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res.Err = &inspector.InspectionError{
				Kind:   spec.Kind,
				Reason: inspector.ReasonPanic,
				Err:    fmt.Errorf("%v", p),
			}
			res.Report.AddError(fmt.Sprintf("%s inspector crashed while reading %s", spec.Kind, f.Name))
		}
	}()

	if err := insp.Inspect(ctx, res.Report, content); err != nil {
		res.Err = err
		if len(res.Report.Error()) == 0 {
			res.Report.AddError(fmt.Sprintf("%s inspector could not complete: %v", spec.Kind, err))
		}
	}
	return res
}

func notInspected(name string) FileResult {
	rep := inspector.NewReport()
	rep.AddError(fmt.Sprintf("File %s was not inspected because the run stopped early", name))
	return FileResult{Filename: name, Report: rep, Err: ErrNotInspected}
}
