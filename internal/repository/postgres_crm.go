package repository

import (
	"context"
	"database/sql"
	"fmt"

	"slideboard-measure/internal/domain"
)

// 测量费记录类型 / 状态
const (
	FeeRecordTypePayment    = "PAYMENT"
	FeeRecordTypeExemption  = "EXEMPTION"
	FeeRecordStatusPaid     = "PAID"
	FeeRecordStatusApproved = "APPROVED"
)

// GetCustomer 读取客户（租户内）
func (t *postgresMeasureTx) GetCustomer(ctx context.Context, tenantID, customerID string) (*domain.Customer, error) {
	if tenantID == "" || customerID == "" {
		return nil, fmt.Errorf("customer not found: %w", sql.ErrNoRows)
	}

	var c domain.Customer
	var sourceLeadID, pipelineStatus sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT id::text, tenant_id::text, name, level, source_lead_id::text, pipeline_status
		FROM customers
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID,
	).Scan(&c.CustomerID, &c.TenantID, &c.Name, &c.Level, &sourceLeadID, &pipelineStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.SourceLeadID = sourceLeadID.String
	c.PipelineStatus = pipelineStatus.String
	return &c, nil
}

// GetLead 读取线索（租户内）
func (t *postgresMeasureTx) GetLead(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	if tenantID == "" || leadID == "" {
		return nil, fmt.Errorf("lead not found: %w", sql.ErrNoRows)
	}

	var l domain.Lead
	var customerID sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT id::text, tenant_id::text, customer_id::text, status
		FROM leads
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, leadID,
	).Scan(&l.LeadID, &l.TenantID, &customerID, &l.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("lead not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	l.CustomerID = customerID.String
	return &l, nil
}

// SetLeadStatus 更新线索状态
func (t *postgresMeasureTx) SetLeadStatus(ctx context.Context, tenantID, leadID, status string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE leads SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, leadID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set lead status: %w", err)
	}
	return nil
}

// SetCustomerPipelineStatus 推进客户漏斗状态
func (t *postgresMeasureTx) SetCustomerPipelineStatus(ctx context.Context, tenantID, customerID, status string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET pipeline_status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set customer pipeline status: %w", err)
	}
	return nil
}

func (t *postgresMeasureTx) hasFeeRecord(ctx context.Context, tenantID, leadID, recordType, status string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM measure_fee_records
			WHERE tenant_id = $1 AND lead_id = $2 AND record_type = $3 AND status = $4
		)`,
		tenantID, leadID, recordType, status,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query measure fee records: %w", err)
	}
	return exists, nil
}

// HasPaidMeasureFee 线索是否已收测量费
func (t *postgresMeasureTx) HasPaidMeasureFee(ctx context.Context, tenantID, leadID string) (bool, error) {
	return t.hasFeeRecord(ctx, tenantID, leadID, FeeRecordTypePayment, FeeRecordStatusPaid)
}

// HasApprovedExemption 线索是否已有批准的免测量费记录
func (t *postgresMeasureTx) HasApprovedExemption(ctx context.Context, tenantID, leadID string) (bool, error) {
	return t.hasFeeRecord(ctx, tenantID, leadID, FeeRecordTypeExemption, FeeRecordStatusApproved)
}
