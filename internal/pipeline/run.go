package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/raster"
	"github.com/gridscout/gridscout/internal/store"
)

// Result is the output of a full pipeline run.
type Result struct {
	Run     *store.Run
	Census  *census.Summary
	Regions *RegionsResult
	Score   *ScoreResult
}

// Run executes every phase in order, recording run and phase state in the
// store. An already imported census is reused; pass force to re-download.
func (p *Pipeline) Run(ctx context.Context, force bool) (*Result, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateRunStatus(ctx, run.ID, store.RunStatusRunning); err != nil {
		return nil, err
	}
	zap.L().Info("pipeline run started", zap.String("run", run.ID))

	res := &Result{Run: run}

	err = p.phase(ctx, run.ID, "census", func(ctx context.Context) (map[string]int64, error) {
		n, err := p.store.CountRecords(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 && !force {
			zap.L().Info("census already imported", zap.Int("cells", n))
			return map[string]int64{"cells": int64(n), "reused": 1}, nil
		}
		summary, err := p.ImportCensus(ctx)
		if err != nil {
			return nil, err
		}
		res.Census = summary
		return map[string]int64{"rows": int64(summary.Rows), "skipped": int64(summary.Skipped)}, nil
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	err = p.phase(ctx, run.ID, "regions", func(ctx context.Context) (map[string]int64, error) {
		rr, err := p.BuildRegions(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.store.SaveRegions(ctx, run.ID, rr.Regions); err != nil {
			return nil, err
		}
		res.Regions = rr
		return map[string]int64{"regions": int64(len(rr.Regions))}, nil
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	err = p.phase(ctx, run.ID, "score", func(ctx context.Context) (map[string]int64, error) {
		sr, err := p.ScoreRegions(ctx, res.Regions)
		if err != nil {
			return nil, err
		}
		if err := p.store.SavePOIs(ctx, run.ID, sr.POIs); err != nil {
			return nil, err
		}
		res.Score = sr
		set, _, _ := raster.MaskStats(sr.Suitable)
		return map[string]int64{
			"pois":           int64(len(sr.POIs)),
			"suitable_cells": int64(set),
		}, nil
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	set, _, _ := raster.MaskStats(res.Score.Suitable)
	var population float64
	for _, r := range res.Regions.Regions {
		population += r.Population
	}
	result := &store.RunResult{
		Regions:         len(res.Regions.Regions),
		POIs:            len(res.Score.POIs),
		SuitableCells:   set,
		TotalPopulation: population,
	}
	if err := p.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		return nil, err
	}
	run.Result = result
	run.Status = store.RunStatusComplete

	zap.L().Info("pipeline run complete",
		zap.String("run", run.ID),
		zap.Int("regions", result.Regions),
		zap.Int("pois", result.POIs),
		zap.Int("suitable_cells", result.SuitableCells))
	return res, nil
}

// phase wraps one step with phase bookkeeping.
func (p *Pipeline) phase(ctx context.Context, runID, name string, fn func(context.Context) (map[string]int64, error)) error {
	ph, err := p.store.CreatePhase(ctx, runID, name)
	if err != nil {
		return err
	}

	stats, err := fn(ctx)
	if err != nil {
		if cerr := p.store.CompletePhase(ctx, ph.ID, &store.PhaseResult{
			Status: store.PhaseStatusFailed,
			Error:  err.Error(),
		}); cerr != nil {
			zap.L().Warn("failed to record phase failure", zap.Error(cerr))
		}
		return eris.Wrapf(err, "pipeline: phase %s", name)
	}

	return p.store.CompletePhase(ctx, ph.ID, &store.PhaseResult{
		Status: store.PhaseStatusComplete,
		Stats:  stats,
	})
}

// fail marks the run failed and passes the original error through.
func (p *Pipeline) fail(ctx context.Context, runID string, err error) error {
	if serr := p.store.UpdateRunStatus(ctx, runID, store.RunStatusFailed); serr != nil {
		zap.L().Warn("failed to mark run failed", zap.Error(serr))
	}
	return err
}
