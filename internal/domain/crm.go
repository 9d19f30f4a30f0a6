package domain

// CustomerLevelTop 顶级客户等级，测量费强制免除
const CustomerLevelTop = "A"

const (
	// LeadStatusPendingAssignment 线索进入"待分配测量"
	LeadStatusPendingAssignment = "PENDING_ASSIGNMENT"
	// CustomerPipelineMeasuring 客户漏斗推进到"测量中"
	CustomerPipelineMeasuring = "MEASURING"
)

// Customer 客户（对应 customers 表，只读取测量流程关心的字段）
type Customer struct {
	CustomerID     string `db:"id"`
	TenantID       string `db:"tenant_id"`
	Name           string `db:"name"`
	Level          string `db:"level"`           // A/B/C/D
	SourceLeadID   string `db:"source_lead_id"`  // nullable
	PipelineStatus string `db:"pipeline_status"` // nullable
}

// IsTopTier 是否顶级客户
func (c *Customer) IsTopTier() bool {
	return c != nil && c.Level == CustomerLevelTop
}

// Lead 线索（对应 leads 表）
type Lead struct {
	LeadID     string `db:"id"`
	TenantID   string `db:"tenant_id"`
	CustomerID string `db:"customer_id"` // nullable
	Status     string `db:"status"`
}
