package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/api"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
)

// Manager runs crawls in the background for the status server. It
// implements api.Runner.
type Manager struct {
	app  *App
	base context.Context

	mu   sync.Mutex
	runs map[string]*managedRun
	wg   sync.WaitGroup
}

type managedRun struct {
	status api.RunStatus
	cancel context.CancelFunc
}

// NewManager creates a Manager. Runs derive their context from base, so
// canceling base cancels every run.
func NewManager(base context.Context, app *App) *Manager {
	return &Manager{
		app:  app,
		base: base,
		runs: make(map[string]*managedRun),
	}
}

// Start validates req and launches the run. Validation failures are returned
// synchronously; everything after that is reported through Status.
func (m *Manager) Start(_ context.Context, req api.RunRequest) (string, error) {
	pl, err := m.app.prepare(RunOptions{
		Outlet:          req.Outlet,
		Window:          dates.Window{Start: req.StartYear, End: req.EndYear},
		Workers:         req.Workers,
		DefaultCategory: req.DefaultCategory,
	})
	if err != nil {
		return "", err
	}

	runID := pl.runID.String()
	ctx, cancel := context.WithCancel(m.base)
	m.mu.Lock()
	m.runs[runID] = &managedRun{
		status: api.RunStatus{RunID: runID, Outlet: pl.profile.ID, State: api.RunRunning},
		cancel: cancel,
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		result, runErr := m.app.execute(ctx, pl)
		m.finish(runID, result, runErr)
	}()

	m.app.logger.Info("run accepted", zap.String("run_id", runID), zap.String("outlet", pl.profile.ID))
	return runID, nil
}

func (m *Manager) finish(runID string, result RunResult, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return
	}
	status := run.status
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		status.State = api.RunFailed
		status.Error = runErr.Error()
	case result.Summary.Canceled || runErr != nil:
		status.State = api.RunCanceled
	default:
		status.State = api.RunSucceeded
	}
	if !result.Summary.StartedAt.IsZero() {
		summary := result.Summary
		status.Summary = &summary
	}
	status.Years = result.Years
	status.Reports = result.Reports
	run.status = status
}

// Status returns the current state of a run.
func (m *Manager) Status(runID string) (api.RunStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return api.RunStatus{}, false
	}
	return run.status, true
}

// Cancel requests cancellation of a run. It reports false for unknown runs.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	run, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
