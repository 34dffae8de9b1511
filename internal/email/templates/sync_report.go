package templates

import (
	_ "embed"
	"html/template"
	"strings"
	"time"
)

//go:embed sync_report.html
var syncReportHTML string

var syncReportTmpl = template.Must(template.New("sync_report").Parse(syncReportHTML))

// SyncReportIssue is one skipped/failed record shown in the summary.
type SyncReportIssue struct {
	DocNumber string
	Reason    string
}

// SyncReportData holds all fields for the sync summary email.
type SyncReportData struct {
	CrewCode  string
	WeekStart string
	Status    string
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Issues    []SyncReportIssue
	Year      int // Auto-set if 0
}

func RenderSyncReportEmail(data SyncReportData) (string, error) {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}

	var sb strings.Builder
	if err := syncReportTmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
