package httpapi

import (
	"encoding/json"
	"time"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/service"
)

// taskView 测量任务响应结构（前端字段名）
type taskView struct {
	ID               string          `json:"id"`
	MeasureNo        string          `json:"measureNo"`
	LeadID           string          `json:"leadId"`
	CustomerID       string          `json:"customerId"`
	Status           string          `json:"status"`
	Type             string          `json:"type"`
	Round            int             `json:"round"`
	Variant          string          `json:"variant"`
	Version          string          `json:"version"`
	RejectCount      int             `json:"rejectCount"`
	RejectReason     string          `json:"rejectReason,omitempty"`
	IsFeeExempt      bool            `json:"isFeeExempt"`
	FeeCheckStatus   string          `json:"feeCheckStatus"`
	FeeApprovalID    string          `json:"feeApprovalId,omitempty"`
	ScheduledAt      *time.Time      `json:"scheduledAt,omitempty"`
	CheckInAt        *time.Time      `json:"checkInAt,omitempty"`
	CheckInInfo      json.RawMessage `json:"checkInInfo,omitempty"`
	LateMinutes      int             `json:"lateMinutes"`
	AssignedWorkerID string          `json:"assignedWorkerId,omitempty"`
	ParentID         string          `json:"parentId,omitempty"`
	Remark           string          `json:"remark,omitempty"`
	CreatedBy        string          `json:"createdBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

func toTaskView(t *domain.MeasureTask) *taskView {
	if t == nil {
		return nil
	}
	return &taskView{
		ID:               t.TaskID,
		MeasureNo:        t.MeasureNo,
		LeadID:           t.LeadID,
		CustomerID:       t.CustomerID,
		Status:           string(t.Status),
		Type:             string(t.Type),
		Round:            t.Round,
		Variant:          t.Variant,
		Version:          t.VersionDisplay(),
		RejectCount:      t.RejectCount,
		RejectReason:     t.RejectReason,
		IsFeeExempt:      t.IsFeeExempt,
		FeeCheckStatus:   string(t.FeeCheckStatus),
		FeeApprovalID:    t.FeeApprovalID,
		ScheduledAt:      t.ScheduledAt,
		CheckInAt:        t.CheckInAt,
		CheckInInfo:      t.CheckInInfo,
		LateMinutes:      t.LateMinutes,
		AssignedWorkerID: t.AssignedWorkerID,
		ParentID:         t.ParentID,
		Remark:           t.Remark,
		CreatedBy:        t.CreatedBy,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func toTaskViews(tasks []*domain.MeasureTask) []*taskView {
	out := make([]*taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskView(t))
	}
	return out
}

// itemPayload 测量明细，请求和响应共用
type itemPayload struct {
	ID           string          `json:"id,omitempty"`
	SortOrder    int             `json:"sortOrder"`
	RoomName     string          `json:"roomName"`
	WindowType   string          `json:"windowType"`
	Width        float64         `json:"width"`
	Height       float64         `json:"height"`
	InstallType  string          `json:"installType,omitempty"`
	BracketDist  *float64        `json:"bracketDist,omitempty"`
	WallMaterial string          `json:"wallMaterial,omitempty"`
	HasBox       bool            `json:"hasBox"`
	BoxDepth     *float64        `json:"boxDepth,omitempty"`
	IsElectric   bool            `json:"isElectric"`
	Remark       string          `json:"remark,omitempty"`
	SegmentData  json.RawMessage `json:"segmentData,omitempty"`
}

func (p itemPayload) toDomain() domain.MeasureItem {
	return domain.MeasureItem{
		ItemID:       p.ID,
		SortOrder:    p.SortOrder,
		RoomName:     p.RoomName,
		WindowType:   domain.WindowType(p.WindowType),
		Width:        p.Width,
		Height:       p.Height,
		InstallType:  domain.InstallType(p.InstallType),
		BracketDist:  p.BracketDist,
		WallMaterial: domain.WallMaterial(p.WallMaterial),
		HasBox:       p.HasBox,
		BoxDepth:     p.BoxDepth,
		IsElectric:   p.IsElectric,
		Remark:       p.Remark,
		SegmentData:  p.SegmentData,
	}
}

func toItemPayload(i domain.MeasureItem) itemPayload {
	return itemPayload{
		ID:           i.ItemID,
		SortOrder:    i.SortOrder,
		RoomName:     i.RoomName,
		WindowType:   string(i.WindowType),
		Width:        i.Width,
		Height:       i.Height,
		InstallType:  string(i.InstallType),
		BracketDist:  i.BracketDist,
		WallMaterial: string(i.WallMaterial),
		HasBox:       i.HasBox,
		BoxDepth:     i.BoxDepth,
		IsElectric:   i.IsElectric,
		Remark:       i.Remark,
		SegmentData:  i.SegmentData,
	}
}

type sheetView struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"taskId"`
	Status      string        `json:"status"`
	Round       int           `json:"round"`
	Variant     string        `json:"variant"`
	SitePhotos  []string      `json:"sitePhotos"`
	SketchMap   string        `json:"sketchMap,omitempty"`
	SubmittedBy string        `json:"submittedBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Items       []itemPayload `json:"items"`
}

func toSheetView(s *domain.MeasureSheet) *sheetView {
	if s == nil {
		return nil
	}
	v := &sheetView{
		ID:          s.SheetID,
		TaskID:      s.TaskID,
		Status:      string(s.Status),
		Round:       s.Round,
		Variant:     s.Variant,
		SitePhotos:  s.SitePhotos,
		SketchMap:   s.SketchMap,
		SubmittedBy: s.SubmittedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Items:       make([]itemPayload, 0, len(s.Items)),
	}
	if v.SitePhotos == nil {
		v.SitePhotos = []string{}
	}
	for _, it := range s.Items {
		v.Items = append(v.Items, toItemPayload(it))
	}
	return v
}

type rejectionView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Reason      string    `json:"reason"`
	FromStatus  string    `json:"fromStatus"`
	ToStatus    string    `json:"toStatus"`
	RejectCount int       `json:"rejectCount"`
	RejectedBy  string    `json:"rejectedBy"`
	RejectedAt  time.Time `json:"rejectedAt"`
}

type splitRecordView struct {
	ID             string    `json:"id"`
	OriginalTaskID string    `json:"originalTaskId"`
	NewTaskID      string    `json:"newTaskId"`
	Category       string    `json:"category"`
	Reason         string    `json:"reason"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

type auditLogView struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Action        string         `json:"action"`
	ChangedFields map[string]any `json:"changedFields,omitempty"`
	NewValues     map[string]any `json:"newValues,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type admissionView struct {
	RequiresFee    bool   `json:"requiresFee"`
	ExemptApproved bool   `json:"exemptApproved"`
	Message        string `json:"message"`
}

func toAdmissionView(a *service.FeeAdmission) *admissionView {
	if a == nil {
		return nil
	}
	return &admissionView{RequiresFee: a.RequiresFee, ExemptApproved: a.ExemptApproved, Message: a.Message}
}
