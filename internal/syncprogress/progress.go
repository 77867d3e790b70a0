package syncprogress

import "time"

// Sync statuses in lifecycle order. Terminal statuses are complete and error.
const (
	StatusConnecting = "connecting"
	StatusSyncing    = "syncing"
	StatusParsing    = "parsing"
	StatusEmbedding  = "embedding"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Progress is the full snapshot for one sync operation. Every emitted event
// carries the whole snapshot so consumers can replace their state wholesale.
type Progress struct {
	SyncID          string     `bson:"syncId" json:"sync_id"`
	TenantID        string     `bson:"tenantId" json:"tenant_id"`
	UserID          string     `bson:"userId" json:"user_id"`
	ConnectorType   string     `bson:"connectorType" json:"connector_type"`
	Status          string     `bson:"status" json:"status"`
	Stage           string     `bson:"stage" json:"stage"`
	TotalItems      int        `bson:"totalItems" json:"total_items"`
	ProcessedItems  int        `bson:"processedItems" json:"processed_items"`
	FailedItems     int        `bson:"failedItems" json:"failed_items"`
	CurrentItem     string     `bson:"currentItem,omitempty" json:"current_item,omitempty"`
	ErrorMessage    string     `bson:"errorMessage,omitempty" json:"error_message,omitempty"`
	PercentComplete float64    `bson:"percentComplete" json:"percent_complete"`
	StartedAt       *time.Time `bson:"startedAt,omitempty" json:"started_at,omitempty"`
	CompletedAt     *time.Time `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
}

// Terminal reports whether the status is one of the two end states.
func (p *Progress) Terminal() bool {
	return p.Status == StatusComplete || p.Status == StatusError
}

func (p *Progress) percent() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
}
