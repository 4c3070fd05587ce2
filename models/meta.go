// models/meta.go
package models

import "time"

// CacheEntry binds a remote document URL to its file in the content cache.
type CacheEntry struct {
	RemoteURL string `json:"remote_url"`
	LocalKey  string `json:"local_key"`
	Extension string `json:"extension"`
}

// DataSourceVersion tracks every ingested document: where it came from, where it
// is cached, which period it reports and how many of its rows survived.
type DataSourceVersion struct {
	ID             int64      `db:"id" json:"id"`
	Category       string     `db:"category" json:"category"` // "lodgements", "refunds", "holdings"
	SourceURL      string     `db:"source_url" json:"source_url"`
	LocalKey       string     `db:"local_key" json:"local_key"`
	Period         *time.Time `db:"period" json:"period,omitempty"` // only for documents dated from their header
	RowsRead       int        `db:"rows_read" json:"rows_read"`
	DataHash       string     `db:"data_hash" json:"data_hash,omitempty"` // SHA256 of the cached bytes
	LastIngestedAt time.Time  `db:"last_ingested_at" json:"last_ingested_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
