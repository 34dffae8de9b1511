// internal/email/sender.go
package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"gopkg.in/gomail.v2"

	"rfms-invoicing/internal/config"
	"rfms-invoicing/internal/email/templates"
	"rfms-invoicing/pkg/models"
)

type Sender struct {
	cfg *config.Config
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("📧 [SEND] To: %s | Subject: %s", to, subject)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)

	// Exponential backoff: 1s, 2s, 4s → max 3 retries
	for attempt := 0; attempt < 3; attempt++ {
		if err := dialer.DialAndSend(m); err != nil {
			delay := time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s
			log.Printf("❌ [ATTEMPT %d] Failed to send email to %s: %v → retrying in %v", attempt+1, to, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("email send cancelled: %w", ctx.Err())
			}
			continue
		}
		log.Printf("✅ [SUCCESS] Email sent to %s (Subject: %s)", to, subject)
		return nil
	}

	log.Printf("💥 [FAILED] All retries exhausted for %s", to)
	return fmt.Errorf("failed to send email to %s after 3 attempts", to)
}

// SendSyncReport mails a pass summary to the configured back-office address.
// Fire-and-forget: it renders synchronously, delivers in the background, and
// never affects the sync outcome. No-op when SYNC_REPORT_EMAIL is unset.
func (s *Sender) SendSyncReport(report *models.SyncReport) {
	if s.cfg.ReportEmail == "" {
		return
	}

	data := templates.SyncReportData{
		CrewCode:  report.CrewCode,
		WeekStart: report.WeekStart.Format("2006-01-02"),
		Status:    string(report.Status),
		Created:   report.Created,
		Updated:   report.Updated,
		Unchanged: report.Unchanged,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
	}
	for _, issue := range report.Issues {
		doc := issue.DocNumber
		if doc == "" {
			doc = "job " + issue.JobID
		}
		data.Issues = append(data.Issues, templates.SyncReportIssue{DocNumber: doc, Reason: issue.Reason})
	}

	body, err := templates.RenderSyncReportEmail(data)
	if err != nil {
		log.Printf("❌ [ERROR] sync report: render failed for crew %s: %v", report.CrewCode, err)
		return
	}

	subject := fmt.Sprintf("Sync report — crew %s, week of %s (%d synced, %d skipped, %d failed)",
		report.CrewCode, data.WeekStart, report.Processed(), report.Skipped, report.Failed)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if sendErr := s.Send(ctx, s.cfg.ReportEmail, subject, body); sendErr != nil {
			log.Printf("⚠️ [ERROR] Background sync report email failed for crew %s: %v", report.CrewCode, sendErr)
		}
	}()
	log.Printf("📧 [QUEUED] Sync report queued for async delivery to %s", s.cfg.ReportEmail)
}
