// internal/transport/http/photos.go
package http

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"rfms-invoicing/internal/upload"
)

var allowedPhotoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".heic": true, ".pdf": true,
}

// UploadInvoicePhotos handles multipart photo intake for an invoice. Files are
// staged in R2 under the invoice's prefix; the attachment pipeline pushes them
// to RFMS later, when the invoice is finalized.
func (h *Handler) UploadInvoicePhotos(c *fiber.Ctx) error {
	invoiceID, err := uuid.Parse(c.Params("invoice_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid invoice_id"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "multipart form required"})
	}
	files := form.File["photos"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "at least one file under field 'photos' is required"})
	}

	ctx := c.Context()
	type staged struct {
		FileName string `json:"file_name"`
		Key      string `json:"key"`
		URL      string `json:"url"`
	}
	results := make([]staged, 0, len(files))

	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedPhotoExts[ext] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("unsupported file extension: %s", ext),
			})
		}

		f, err := fh.Open()
		if err != nil {
			log.Printf("❌ [PHOTOS] Failed to open %s: %v", fh.Filename, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
		}

		log.Printf("📤 [PHOTOS] Staging %s (%d bytes) for invoice %s", fh.Filename, fh.Size, invoiceID)
		key, url, err := h.photos.UploadInvoicePhoto(ctx, invoiceID, f, fh.Filename)
		f.Close()
		if err != nil {
			log.Printf("❌ [PHOTOS] Upload of %s failed: %v", fh.Filename, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to stage photo"})
		}
		results = append(results, staged{FileName: fh.Filename, Key: key, URL: url})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invoice_id": invoiceID,
		"count":      len(results),
		"photos":     results,
	})
}

type attachmentBatchRequest struct {
	DocNumber string           `json:"doc_number"`
	Files     []upload.FileRef `json:"files"`
}

// PushAttachments runs the attachment batch for one invoice against its RFMS
// order and returns the per-file report.
func (h *Handler) PushAttachments(c *fiber.Ctx) error {
	invoiceID, err := uuid.Parse(c.Params("invoice_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid invoice_id"})
	}

	var req attachmentBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.DocNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "doc_number required"})
	}
	for _, f := range req.Files {
		if f.Key == "" || f.FileName == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "every file needs key and file_name"})
		}
	}

	report, err := h.pipeline.Upload(c.Context(), invoiceID, req.DocNumber, req.Files)
	if err != nil {
		log.Printf("❌ [ATTACHMENTS] Batch for invoice %s failed to start: %v", invoiceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusOK
	if report.Failed > 0 || report.Cancelled {
		// Partial success still returns the full report; 207 tells the client
		// to inspect per-file outcomes.
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(report)
}
