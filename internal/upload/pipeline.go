// internal/upload/pipeline.go
package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"rfms-invoicing/pkg/models"
)

// Caller is the dispatcher surface the pipeline needs; satisfied by
// *rfms.Dispatcher.
type Caller interface {
	Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error)
}

// PhotoFetcher reads a staged invoice photo; satisfied by *utils.PhotoR2Client.
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, key string) ([]byte, string, error)
}

// FileRef names one staged photo to push to RFMS.
type FileRef struct {
	Key      string `json:"key"`
	FileName string `json:"file_name"`
}

// attachmentRequest is the RFMS attachment endpoint body — one file per call.
type attachmentRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
}

// Pipeline pushes an invoice's photos to RFMS as order attachments. Each file
// is an independent task on a small worker pool; one file's failure never
// blocks its siblings, and the caller gets a per-file report to drive manual
// retries.
type Pipeline struct {
	rfmsAPI     Caller
	photos      PhotoFetcher
	concurrency int
	maxBytes    int
}

func NewPipeline(rfmsAPI Caller, photos PhotoFetcher, concurrency, maxAttachmentMB int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxAttachmentMB <= 0 {
		maxAttachmentMB = 10
	}
	return &Pipeline{
		rfmsAPI:     rfmsAPI,
		photos:      photos,
		concurrency: concurrency,
		maxBytes:    maxAttachmentMB << 20,
	}
}

// Upload runs the batch for one invoice against a single RFMS order. Results
// come back in input order. Cancellation marks the remaining tasks cancelled
// rather than returning a partial report as if complete.
func (p *Pipeline) Upload(ctx context.Context, invoiceID uuid.UUID, docNumber string, files []FileRef) (*models.UploadReport, error) {
	if docNumber == "" {
		return nil, fmt.Errorf("doc number is required")
	}

	report := &models.UploadReport{
		InvoiceID: invoiceID.String(),
		DocNumber: docNumber,
		Files:     make([]models.FileResult, len(files)),
	}
	if len(files) == 0 {
		return report, nil
	}

	log.Printf("📤 [UPLOAD] Starting batch of %d file(s) for invoice %s → order %s", len(files), invoiceID, docNumber)

	type task struct {
		idx  int
		file FileRef
	}
	tasks := make(chan task)

	var wg sync.WaitGroup
	for w := 0; w < p.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				report.Files[t.idx] = p.uploadOne(ctx, docNumber, t.file)
			}
		}()
	}

	for i, f := range files {
		tasks <- task{idx: i, file: f}
	}
	close(tasks)
	wg.Wait()

	for _, fr := range report.Files {
		switch fr.Outcome {
		case models.UploadOutcomeSucceeded:
			report.Succeeded++
		case models.UploadOutcomeFailed:
			report.Failed++
		case models.UploadOutcomeCancelled:
			report.Cancelled = true
		}
	}

	if report.Cancelled {
		log.Printf("🛑 [UPLOAD] Batch cancelled for invoice %s: %d succeeded, %d failed before cancellation",
			invoiceID, report.Succeeded, report.Failed)
	} else {
		log.Printf("✅ [UPLOAD] Batch finished for invoice %s: %d succeeded, %d failed",
			invoiceID, report.Succeeded, report.Failed)
	}
	return report, nil
}

func (p *Pipeline) uploadOne(ctx context.Context, docNumber string, file FileRef) models.FileResult {
	result := models.FileResult{FileName: file.FileName, Key: file.Key}

	if ctx.Err() != nil {
		result.Outcome = models.UploadOutcomeCancelled
		result.Reason = ctx.Err().Error()
		return result
	}

	content, contentType, err := p.photos.FetchPhoto(ctx, file.Key)
	if err != nil {
		result.Outcome = models.UploadOutcomeFailed
		result.Reason = fmt.Sprintf("fetch from photo store: %v", err)
		log.Printf("⚠️ [UPLOAD] %s: %s", file.FileName, result.Reason)
		return result
	}

	if len(content) > p.maxBytes {
		result.Outcome = models.UploadOutcomeFailed
		result.Reason = fmt.Sprintf("file is %d bytes, limit is %d", len(content), p.maxBytes)
		log.Printf("⚠️ [UPLOAD] %s: %s", file.FileName, result.Reason)
		return result
	}

	body := attachmentRequest{
		FileName:    file.FileName,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(content),
	}
	// The RFMS endpoint accepts exactly one attachment per call.
	_, err = p.rfmsAPI.Call(ctx, http.MethodPost, "/v2/order/"+url.PathEscape(docNumber)+"/attachments", body)
	if err != nil {
		if ctx.Err() != nil {
			result.Outcome = models.UploadOutcomeCancelled
			result.Reason = ctx.Err().Error()
			return result
		}
		result.Outcome = models.UploadOutcomeFailed
		result.Reason = err.Error()
		log.Printf("⚠️ [UPLOAD] %s: push to RFMS failed: %v", file.FileName, err)
		return result
	}

	result.Outcome = models.UploadOutcomeSucceeded
	return result
}
