// models/records.go
package models

import "time"

// DateLayout is how every date column is rendered in output datasets.
const DateLayout = "2006-01-02"

// Lodgement is a normalized bond lodgement record.
type Lodgement struct {
	DateLodged   time.Time
	Postcode     int
	DwellingType string
	NumBedrooms  int
	WeeklyRent   int
}

// Refund is a normalized bond refund record.
type Refund struct {
	DatePaid      time.Time
	Postcode      int
	DwellingType  string
	NumBedrooms   int
	AgentPayment  int
	TenantPayment int
	NumDaysHeld   int
}

// Holding is the number of bonds held for a postcode at the end of a reporting period.
type Holding struct {
	Postcode  int
	BondsHeld int
	Period    time.Time
}

// LodgementRow is the output shape of a normalized lodgement.
type LodgementRow struct {
	DateLodged   string `csv:"date_lodged" parquet:"date_lodged"`
	Postcode     int64  `csv:"postcode" parquet:"postcode"`
	DwellingType string `csv:"dwelling_type" parquet:"dwelling_type"`
	NumBedrooms  int64  `csv:"num_bedrooms" parquet:"num_bedrooms"`
	WeeklyRent   int64  `csv:"weekly_rent" parquet:"weekly_rent"`
}

// RefundRow is the output shape of a normalized refund.
type RefundRow struct {
	DatePaid      string `csv:"date_paid" parquet:"date_paid"`
	Postcode      int64  `csv:"postcode" parquet:"postcode"`
	DwellingType  string `csv:"dwelling_type" parquet:"dwelling_type"`
	NumBedrooms   int64  `csv:"num_bedrooms" parquet:"num_bedrooms"`
	AgentPayment  int64  `csv:"agent_payment" parquet:"agent_payment"`
	TenantPayment int64  `csv:"tenant_payment" parquet:"tenant_payment"`
	NumDaysHeld   int64  `csv:"num_days_held" parquet:"num_days_held"`
}
