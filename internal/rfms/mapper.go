// internal/rfms/mapper.go
package rfms

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"rfms-invoicing/pkg/models"
)

// RemoteJob is one scheduling record from GET /v2/schedule/jobs. Listings are
// summaries — full line items come from the per-order detail call.
type RemoteJob struct {
	JobID     string `json:"jobId"`
	DocNumber string `json:"docNumber"`
	CrewCode  string `json:"crewCode"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// JobsPage is the result payload of one schedule/jobs page.
type JobsPage struct {
	Jobs    []RemoteJob `json:"jobs"`
	HasMore bool        `json:"hasMore"`
}

// remoteOrderDetail is the shape of GET /v2/order/<docNumber>. Lines is kept
// raw so the untouched payload can be stored for audit alongside the parsed
// representation.
type remoteOrderDetail struct {
	DocNumber string          `json:"docNumber"`
	Status    string          `json:"status"`
	Lines     json.RawMessage `json:"lines"`
}

// remoteOrderLine tolerates RFMS's habit of sending quantity/unitPrice as
// either JSON numbers or quoted strings depending on the backend module.
type remoteOrderLine struct {
	ProductCode string          `json:"productCode"`
	Description string          `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	UnitPrice   json.RawMessage `json:"unitPrice"`
}

// MapWorkOrder translates one remote job plus its order detail into a local
// WorkOrder with ordered lines. The document number is the required natural
// key — its absence fails this one record with *MalformedRecordError so the
// sync pass can skip it and move on. An unparseable schedule date does NOT
// fail the record: it is mapped with DateFlagged set and a nil date, leaving
// the policy decision to the caller.
func MapWorkOrder(job RemoteJob, orderRaw json.RawMessage) (*models.WorkOrder, error) {
	var detail remoteOrderDetail
	if err := json.Unmarshal(orderRaw, &detail); err != nil {
		return nil, &MalformedRecordError{DocNumber: job.DocNumber, Field: "order", Reason: "is not a valid order object"}
	}

	docNumber := strings.TrimSpace(job.DocNumber)
	if docNumber == "" {
		docNumber = strings.TrimSpace(detail.DocNumber)
	}
	if docNumber == "" {
		return nil, &MalformedRecordError{JobID: job.JobID, Field: "docNumber", Reason: "is required"}
	}

	crew := strings.TrimSpace(job.CrewCode)
	if crew == "" {
		return nil, &MalformedRecordError{DocNumber: docNumber, Field: "crewCode", Reason: "is required"}
	}

	wo := &models.WorkOrder{
		DocNumber: docNumber,
		CrewCode:  crew,
		Status:    models.WorkOrderStatusScheduled,
	}

	scheduled, err := ParseRemoteDate(job.StartDate)
	var dateErr *UnparseableDateError
	switch {
	case err == nil:
		wo.ScheduledDate = &scheduled
	case errors.As(err, &dateErr):
		// Mapped but flagged — never silently nulled.
		wo.DateFlagged = true
		wo.Status = models.WorkOrderStatusUnscheduled
	default:
		return nil, err
	}

	if strings.EqualFold(strings.TrimSpace(detail.Status), "invoiced") {
		wo.Status = models.WorkOrderStatusInvoiced
	}

	if len(detail.Lines) > 0 {
		var rawLines []remoteOrderLine
		if err := json.Unmarshal(detail.Lines, &rawLines); err != nil {
			return nil, &MalformedRecordError{DocNumber: docNumber, Field: "lines", Reason: "is not a valid array"}
		}
		for i, rl := range rawLines {
			qty, err := parseDecimalField(docNumber, fmt.Sprintf("lines[%d].quantity", i), rl.Quantity, true)
			if err != nil {
				return nil, err
			}
			price, err := parseDecimalField(docNumber, fmt.Sprintf("lines[%d].unitPrice", i), rl.UnitPrice, false)
			if err != nil {
				return nil, err
			}
			wo.Lines = append(wo.Lines, models.WorkOrderLine{
				Seq:         i + 1,
				ProductCode: strings.TrimSpace(rl.ProductCode),
				Description: strings.TrimSpace(rl.Description),
				Quantity:    qty,
				UnitPrice:   price,
			})
		}
		wo.RawLines = datatypes.JSON(detail.Lines)
	}

	wo.Fingerprint = fingerprint(wo)
	return wo, nil
}

// parseDecimalField parses a quantity or amount exactly — never through
// float64, so later invoice totals do not drift.
func parseDecimalField(docNumber, field string, raw json.RawMessage, required bool) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		if required {
			return decimal.Zero, &MalformedRecordError{DocNumber: docNumber, Field: field, Reason: "is required"}
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &MalformedRecordError{DocNumber: docNumber, Field: field, Reason: fmt.Sprintf("is not a valid decimal (%q)", s)}
	}
	return d, nil
}

// fingerprint hashes the mapped fields so an unchanged re-sync can be detected
// without comparing rows column by column.
func fingerprint(wo *models.WorkOrder) string {
	var b strings.Builder
	b.WriteString(wo.DocNumber)
	b.WriteByte('|')
	b.WriteString(wo.CrewCode)
	b.WriteByte('|')
	if wo.ScheduledDate != nil {
		b.WriteString(wo.ScheduledDate.Format("2006-01-02"))
	}
	b.WriteByte('|')
	b.WriteString(string(wo.Status))
	b.WriteByte('|')
	if wo.DateFlagged {
		b.WriteString("flagged")
	}
	for _, l := range wo.Lines {
		fmt.Fprintf(&b, "|%d;%s;%s;%s;%s", l.Seq, l.ProductCode, l.Description, l.Quantity.String(), l.UnitPrice.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
