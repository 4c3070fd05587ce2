// models/aggregates.go
package models

// AllPostcodes is the postcode value of rows aggregated over every postcode.
const AllPostcodes = 0

// Field order below is the output column order.

type HoldingRow struct {
	Postcode  int64  `csv:"postcode" parquet:"postcode"`
	BondsHeld int64  `csv:"bonds_held" parquet:"bonds_held"`
	Date      string `csv:"date" parquet:"date"`
}

type MedianRentRow struct {
	Date       string  `csv:"date" parquet:"date"`
	Postcode   int64   `csv:"postcode" parquet:"postcode"`
	MedianRent float64 `csv:"median_rent" parquet:"median_rent"`
	DataPoints int64   `csv:"data_points" parquet:"data_points"`
}

type BedroomMedianRentRow struct {
	Date        string  `csv:"date" parquet:"date"`
	Postcode    int64   `csv:"postcode" parquet:"postcode"`
	NumBedrooms int64   `csv:"num_bedrooms" parquet:"num_bedrooms"`
	MedianRent  float64 `csv:"median_rent" parquet:"median_rent"`
	DataPoints  int64   `csv:"data_points" parquet:"data_points"`
}

type RefundTotalRow struct {
	Postcode      int64 `csv:"postcode" parquet:"postcode"`
	TenantPayment int64 `csv:"tenant_payment" parquet:"tenant_payment"`
	AgentPayment  int64 `csv:"agent_payment" parquet:"agent_payment"`
}

type RefundPortionRow struct {
	Postcode  int64  `csv:"postcode" parquet:"postcode"`
	Recipient string `csv:"recipient" parquet:"recipient"`
	BinCount  int64  `csv:"bin_count" parquet:"bin_count"`
}

// Recipient labels of refund portion bins 0, 1 and 2.
const (
	RecipientTenant   = "Tenant"
	RecipientSplit    = "Split"
	RecipientLandlord = "Landlord"
)

// RecipientLabels is indexed by bin number.
var RecipientLabels = [3]string{RecipientTenant, RecipientSplit, RecipientLandlord}
