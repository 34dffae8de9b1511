package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WorkOrderStatus string

const (
	WorkOrderStatusScheduled   WorkOrderStatus = "scheduled"
	WorkOrderStatusUnscheduled WorkOrderStatus = "unscheduled"
	WorkOrderStatusInvoiced    WorkOrderStatus = "invoiced"
)

// WorkOrder is the local, durable copy of an RFMS order assigned to an
// installer crew. The RFMS document number is the natural key — re-sync of the
// same order updates in place, never duplicates.
type WorkOrder struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocNumber     string          `json:"doc_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	CrewCode      string          `json:"crew_code" gorm:"type:varchar(20);index;not null"`
	ScheduledDate *time.Time      `json:"scheduled_date,omitempty" gorm:"index"`
	Status        WorkOrderStatus `json:"status" gorm:"type:varchar(20);not null;default:'scheduled'"`
	// DateFlagged marks a record whose remote date matched none of the known
	// encodings; ScheduledDate is nil and the caller decides policy.
	DateFlagged bool `json:"date_flagged" gorm:"not null;default:false"`
	// RawLines keeps the untouched remote line payload for audit/debugging.
	RawLines datatypes.JSON `json:"raw_lines,omitempty" gorm:"type:jsonb"`
	// Fingerprint is a sha256 over the mapped fields; an unchanged re-sync is
	// detected here and skips the write entirely.
	Fingerprint string          `json:"-" gorm:"type:varchar(64);not null"`
	Lines       []WorkOrderLine `json:"lines,omitempty" gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkOrder) TableName() string {
	return "work_orders"
}

// BeforeCreate assigns the id in Go so non-Postgres test databases work too.
func (w *WorkOrder) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// WorkOrderLine belongs to exactly one WorkOrder and is replaced wholesale on
// every re-sync of its parent.
type WorkOrderLine struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkOrderID uuid.UUID       `json:"work_order_id" gorm:"type:uuid;not null;index"`
	Seq         int             `json:"seq" gorm:"not null"`
	ProductCode string          `json:"product_code" gorm:"type:varchar(50)"`
	Description string          `json:"description" gorm:"type:text"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(14,4);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(14,4);not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (WorkOrderLine) TableName() string {
	return "work_order_lines"
}

func (l *WorkOrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// LineTotal is quantity × unit price, exact.
func (l WorkOrderLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// CrewDevice maps an installer crew to a registered FCM device token, so the
// service can push "new jobs synced" to the crew's phones.
type CrewDevice struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CrewCode  string    `json:"crew_code" gorm:"type:varchar(20);index;not null"`
	Token     string    `json:"token" gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (CrewDevice) TableName() string {
	return "crew_devices"
}

func (d *CrewDevice) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
