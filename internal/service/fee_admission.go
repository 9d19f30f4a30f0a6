package service

import (
	"context"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

// FeeAdmission 测量费准入结果
type FeeAdmission struct {
	RequiresFee    bool   // 是否需要收取测量费
	ExemptApproved bool   // 免费申请是否已预先批准
	Message        string // 给前端展示的说明
}

// FeeAdmissionEvaluator 测量费准入
type FeeAdmissionEvaluator interface {
	Evaluate(ctx context.Context, tx repository.MeasureTx, tenantID, leadID string, exemptRequested bool) (*FeeAdmission, error)
}

// PolicyFeeAdmission 租户设置 + 测量费记录
// requiresFee = 租户要求收费 && 线索未付费；exemptApproved = 申请免费 && 已有批准的免费记录
type PolicyFeeAdmission struct {
	settings SettingsProvider
}

func NewPolicyFeeAdmission(settings SettingsProvider) *PolicyFeeAdmission {
	return &PolicyFeeAdmission{settings: settings}
}

func (p *PolicyFeeAdmission) Evaluate(ctx context.Context, tx repository.MeasureTx, tenantID, leadID string, exemptRequested bool) (*FeeAdmission, error) {
	required, err := settingBool(ctx, p.settings, tenantID, SettingFeeRequired, true)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	paid := false
	if required && leadID != "" {
		paid, err = tx.HasPaidMeasureFee(ctx, tenantID, leadID)
		if err != nil {
			return nil, classifyStoreError(err)
		}
	}

	exemptApproved := false
	if exemptRequested && leadID != "" {
		exemptApproved, err = tx.HasApprovedExemption(ctx, tenantID, leadID)
		if err != nil {
			return nil, classifyStoreError(err)
		}
	}

	a := &FeeAdmission{
		RequiresFee:    required && !paid,
		ExemptApproved: exemptApproved,
	}
	a.Message = admissionMessage(required, paid, exemptRequested, exemptApproved)
	return a, nil
}

func admissionMessage(required, paid, exemptRequested, exemptApproved bool) string {
	switch {
	case !required:
		return "租户未启用测量费"
	case paid:
		return "测量费已支付"
	case exemptRequested && exemptApproved:
		return "免费测量已批准"
	case exemptRequested:
		return "申请免费测量，需审批通过后派单"
	default:
		return "需先支付测量费才能派单"
	}
}

// PaymentGate 派单前置校验
type PaymentGate struct {
	admission FeeAdmissionEvaluator
}

func NewPaymentGate(admission FeeAdmissionEvaluator) *PaymentGate {
	return &PaymentGate{admission: admission}
}

// Check 通过条件：feeCheckStatus 为 NONE/APPROVED，且任务免费或准入判定无需收费
func (g *PaymentGate) Check(ctx context.Context, tx repository.MeasureTx, task *domain.MeasureTask) error {
	switch task.FeeCheckStatus {
	case domain.FeeCheckStatusNone, domain.FeeCheckStatusApproved, "":
	default:
		return domain.NewStateError(domain.ErrFeeNotCleared,
			"fee check status %s does not allow dispatch", task.FeeCheckStatus)
	}
	if task.IsFeeExempt {
		return nil
	}

	a, err := g.admission.Evaluate(ctx, tx, task.TenantID, task.LeadID, false)
	if err != nil {
		return err
	}
	if a.RequiresFee {
		return domain.NewStateError(domain.ErrFeeNotCleared, "measurement fee not paid for task %s", task.MeasureNo)
	}
	return nil
}
