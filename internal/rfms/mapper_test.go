// internal/rfms/mapper_test.go
package rfms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfms-invoicing/pkg/models"
)

func TestMapWorkOrder_FullOrder(t *testing.T) {
	job := RemoteJob{JobID: "J-1", DocNumber: "WO-1001", CrewCode: "CREW-A", StartDate: "20240115"}
	orderRaw := json.RawMessage(`{
		"docNumber": "WO-1001",
		"status": "scheduled",
		"lines": [
			{"productCode": "CPT-200", "description": "Carpet", "quantity": "12.5", "unitPrice": 4.995},
			{"productCode": "PAD-01", "description": "Padding", "quantity": 12.5}
		]
	}`)

	wo, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)

	assert.Equal(t, "WO-1001", wo.DocNumber)
	assert.Equal(t, "CREW-A", wo.CrewCode)
	assert.Equal(t, models.WorkOrderStatusScheduled, wo.Status)
	assert.False(t, wo.DateFlagged)
	require.NotNil(t, wo.ScheduledDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *wo.ScheduledDate)

	require.Len(t, wo.Lines, 2)
	assert.Equal(t, 1, wo.Lines[0].Seq)
	assert.Equal(t, "12.5", wo.Lines[0].Quantity.String())
	assert.Equal(t, "4.995", wo.Lines[0].UnitPrice.String())
	// missing unitPrice defaults to zero, never fails the record
	assert.True(t, wo.Lines[1].UnitPrice.IsZero())
	assert.NotEmpty(t, wo.Fingerprint)
}

func TestMapWorkOrder_QuantityExactness(t *testing.T) {
	// 0.1 + 0.2 style values must survive mapping without float drift.
	job := RemoteJob{DocNumber: "WO-1002", CrewCode: "CREW-A", StartDate: "2024-01-15"}
	orderRaw := json.RawMessage(`{"lines": [{"productCode": "X", "quantity": "0.30", "unitPrice": "19.99"}]}`)

	wo, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	require.Len(t, wo.Lines, 1)
	assert.Equal(t, "0.3", wo.Lines[0].Quantity.String())
	assert.Equal(t, "5.997", wo.Lines[0].LineTotal().String())
}

func TestMapWorkOrder_MissingDocNumber(t *testing.T) {
	job := RemoteJob{JobID: "J-9", CrewCode: "CREW-A", StartDate: "20240115"}

	_, err := MapWorkOrder(job, json.RawMessage(`{}`))
	require.Error(t, err)
	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "docNumber", malformed.Field)
	assert.Contains(t, err.Error(), "J-9")
}

func TestMapWorkOrder_DocNumberFallsBackToDetail(t *testing.T) {
	job := RemoteJob{JobID: "J-2", CrewCode: "CREW-B", StartDate: "20240115"}
	orderRaw := json.RawMessage(`{"docNumber": "WO-2002"}`)

	wo, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	assert.Equal(t, "WO-2002", wo.DocNumber)
}

func TestMapWorkOrder_UnparseableDateFlagsRecord(t *testing.T) {
	job := RemoteJob{DocNumber: "WO-3003", CrewCode: "CREW-A", StartDate: "sometime next week"}

	wo, err := MapWorkOrder(job, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, wo.DateFlagged)
	assert.Nil(t, wo.ScheduledDate)
	assert.Equal(t, models.WorkOrderStatusUnscheduled, wo.Status)
}

func TestMapWorkOrder_InvoicedStatus(t *testing.T) {
	job := RemoteJob{DocNumber: "WO-4004", CrewCode: "CREW-A", StartDate: "20240115"}
	orderRaw := json.RawMessage(`{"status": "Invoiced"}`)

	wo, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	assert.Equal(t, models.WorkOrderStatusInvoiced, wo.Status)
}

func TestMapWorkOrder_BadQuantityNamesField(t *testing.T) {
	job := RemoteJob{DocNumber: "WO-5005", CrewCode: "CREW-A", StartDate: "20240115"}
	orderRaw := json.RawMessage(`{"lines": [{"productCode": "X", "quantity": "a lot"}]}`)

	_, err := MapWorkOrder(job, orderRaw)
	require.Error(t, err)
	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "lines[0].quantity", malformed.Field)
}

func TestMapWorkOrder_FingerprintStableAndSensitive(t *testing.T) {
	job := RemoteJob{DocNumber: "WO-6006", CrewCode: "CREW-A", StartDate: "20240115"}
	orderRaw := json.RawMessage(`{"lines": [{"productCode": "X", "quantity": "1", "unitPrice": "2"}]}`)

	a, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	b, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	job.CrewCode = "CREW-B"
	c, err := MapWorkOrder(job, orderRaw)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}
