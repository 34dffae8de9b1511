// internal/sync/engine.go
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"rfms-invoicing/internal/rfms"
	"rfms-invoicing/internal/workorder"
	"rfms-invoicing/pkg/models"
)

// Caller is the dispatcher surface the engine needs. Satisfied by
// *rfms.Dispatcher; tests substitute a fake.
type Caller interface {
	Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error)
}

// Notifier pushes "new jobs synced" to a crew's registered devices.
// Optional — nil disables.
type Notifier interface {
	NotifyCrew(ctx context.Context, crewCode string, created int)
}

// Reporter mails a pass summary to the back office. Optional — nil disables.
type Reporter interface {
	SendSyncReport(report *models.SyncReport)
}

// Engine orchestrates one sync pass: list the crew's jobs for a week, fetch
// each order's detail, map, and upsert. Concurrent passes for the same
// (crew, week) are coalesced into one execution; different keys run freely.
type Engine struct {
	rfmsAPI  Caller
	store    *workorder.Store
	notifier Notifier
	reporter Reporter

	flights singleflight.Group
}

func NewEngine(rfmsAPI Caller, store *workorder.Store, notifier Notifier, reporter Reporter) *Engine {
	return &Engine{
		rfmsAPI:  rfmsAPI,
		store:    store,
		notifier: notifier,
		reporter: reporter,
	}
}

// SyncCrewWeek pulls the crew's scheduled jobs for the week starting at
// weekStart and reconciles them into local storage. The report enumerates
// created/updated/unchanged/skipped/failed with reasons; a non-nil error is
// returned only for pass-level failures (the pass could not list jobs or
// authenticate at all), in which case the report status is "aborted".
func (e *Engine) SyncCrewWeek(ctx context.Context, crewCode string, weekStart time.Time) (*models.SyncReport, error) {
	week := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("%s|%s", crewCode, week.Format("2006-01-02"))

	type passOutcome struct {
		report *models.SyncReport
		err    error
	}

	v, _, shared := e.flights.Do(key, func() (interface{}, error) {
		report, err := e.runPass(ctx, crewCode, week)
		return passOutcome{report: report, err: err}, nil
	})
	outcome := v.(passOutcome)
	if shared {
		log.Printf("🔄 [SYNC] Coalesced duplicate pass for %s", key)
	}
	return outcome.report, outcome.err
}

func (e *Engine) runPass(ctx context.Context, crewCode string, week time.Time) (*models.SyncReport, error) {
	report := &models.SyncReport{
		CrewCode:  crewCode,
		WeekStart: week,
		StartedAt: time.Now(),
	}
	log.Printf("🔄 [SYNC] Starting pass for crew %s, week of %s", crewCode, week.Format("2006-01-02"))

	jobs, err := e.fetchJobs(ctx, crewCode, week)
	if err != nil {
		// Failing to even list jobs is a pass-level failure, reported
		// differently from per-record ones.
		report.Status = models.SyncStatusAborted
		report.AbortReason = err.Error()
		report.FinishedAt = time.Now()
		log.Printf("❌ [SYNC] Pass aborted for crew %s: %v", crewCode, err)
		return report, err
	}
	log.Printf("📥 [SYNC] Retrieved %d jobs for crew %s", len(jobs), crewCode)

	cancelled := false
	for _, job := range jobs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if abortErr := e.processJob(ctx, job, report); abortErr != nil {
			if errors.Is(abortErr, context.Canceled) || errors.Is(abortErr, context.DeadlineExceeded) {
				cancelled = true
				break
			}
			// Credentials went bad mid-pass — nothing further can succeed.
			report.Status = models.SyncStatusAborted
			report.AbortReason = abortErr.Error()
			report.FinishedAt = time.Now()
			return report, abortErr
		}
	}

	report.FinishedAt = time.Now()
	if cancelled {
		// Already-upserted orders stay committed; the caller just must not
		// mistake this for a complete pass.
		report.Status = models.SyncStatusCancelled
		log.Printf("🛑 [SYNC] Pass cancelled for crew %s after %d of %d jobs", crewCode, report.Processed()+report.Skipped+report.Failed, len(jobs))
		return report, nil
	}

	report.Status = models.SyncStatusCompleted
	if err := e.store.SetSyncMark(ctx, "last_sync:"+crewCode+":"+week.Format("2006-01-02"), report.FinishedAt); err != nil {
		log.Printf("⚠️ [SYNC] Failed to record sync mark: %v", err)
	}
	log.Printf("✅ [SYNC] Pass completed for crew %s: %d created, %d updated, %d unchanged, %d skipped, %d failed",
		crewCode, report.Created, report.Updated, report.Unchanged, report.Skipped, report.Failed)

	if e.notifier != nil && report.Created > 0 {
		e.notifier.NotifyCrew(ctx, crewCode, report.Created)
	}
	if e.reporter != nil {
		e.reporter.SendSyncReport(report)
	}
	return report, nil
}

// processJob handles one remote job. A returned error aborts the whole pass;
// per-record problems are recorded on the report instead.
func (e *Engine) processJob(ctx context.Context, job rfms.RemoteJob, report *models.SyncReport) error {
	// Job listings are summaries — the order detail call carries the lines.
	orderRaw, err := e.rfmsAPI.Call(ctx, http.MethodGet, "/v2/order/"+url.PathEscape(job.DocNumber), nil)
	if err != nil {
		var authErr *rfms.AuthError
		if errors.As(err, &authErr) {
			return authErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		report.Failed++
		report.Issues = append(report.Issues, models.RecordIssue{
			DocNumber: job.DocNumber, JobID: job.JobID, Reason: err.Error(),
		})
		log.Printf("⚠️ [SYNC] Order detail fetch failed for %s: %v", job.DocNumber, err)
		return nil
	}

	wo, err := rfms.MapWorkOrder(job, orderRaw)
	if err != nil {
		// One bad record never aborts the batch.
		report.Skipped++
		report.Issues = append(report.Issues, models.RecordIssue{
			DocNumber: job.DocNumber, JobID: job.JobID, Reason: err.Error(),
		})
		log.Printf("⚠️ [SYNC] Skipped record: %v", err)
		return nil
	}

	result, err := e.store.Upsert(ctx, wo)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		report.Failed++
		report.Issues = append(report.Issues, models.RecordIssue{
			DocNumber: wo.DocNumber, JobID: job.JobID, Reason: err.Error(),
		})
		log.Printf("⚠️ [SYNC] Upsert failed for %s: %v", wo.DocNumber, err)
		return nil
	}

	switch result {
	case workorder.UpsertCreated:
		report.Created++
	case workorder.UpsertUpdated:
		report.Updated++
	case workorder.UpsertUnchanged:
		report.Unchanged++
	}
	return nil
}

// fetchJobs pages through the schedule listing for one crew and week.
func (e *Engine) fetchJobs(ctx context.Context, crewCode string, week time.Time) ([]rfms.RemoteJob, error) {
	const maxPages = 50 // guard against a remote paging bug looping forever

	weekEnd := week.AddDate(0, 0, 7)
	var jobs []rfms.RemoteJob

	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/v2/schedule/jobs?crew=%s&startDate=%s&endDate=%s&page=%d",
			url.QueryEscape(crewCode), week.Format("2006-01-02"), weekEnd.Format("2006-01-02"), page)

		raw, err := e.rfmsAPI.Call(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("list jobs page %d: %w", page, err)
		}

		var pageResult rfms.JobsPage
		if err := json.Unmarshal(raw, &pageResult); err != nil {
			return nil, fmt.Errorf("list jobs page %d: invalid payload: %w", page, err)
		}
		jobs = append(jobs, pageResult.Jobs...)
		if !pageResult.HasMore {
			return jobs, nil
		}
	}
	return nil, fmt.Errorf("list jobs: pagination did not terminate within %d pages", maxPages)
}
