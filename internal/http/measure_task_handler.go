package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
	"slideboard-measure/internal/service"
)

const tasksPath = "/measure/api/v1/tasks"

// MeasureTaskHandler 测量任务 Handler
type MeasureTaskHandler struct {
	svc    service.MeasureTaskService
	logger *zap.Logger
}

// NewMeasureTaskHandler 创建测量任务 Handler
func NewMeasureTaskHandler(svc service.MeasureTaskService, logger *zap.Logger) *MeasureTaskHandler {
	return &MeasureTaskHandler{svc: svc, logger: logger}
}

// ServeHTTP 路由分发
// tasks | tasks/{id} | tasks/{id}/{action} | tasks/{id}/sheets/{sheetId}[/export]
func (h *MeasureTaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, tasksPath), "/")
	var parts []string
	if rest != "" {
		parts = strings.Split(rest, "/")
	}

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.ListTasks(w, r)
		case http.MethodPost:
			h.CreateTask(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetTask(w, r, parts[0])
	case 2:
		h.serveAction(w, r, parts[0], parts[1])
	case 3, 4:
		if parts[1] != "sheets" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if len(parts) == 3 {
			h.GetSheet(w, r, parts[0], parts[2])
			return
		}
		if parts[3] != "export" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ExportSheet(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *MeasureTaskHandler) serveAction(w http.ResponseWriter, r *http.Request, taskID, action string) {
	if taskID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method == http.MethodGet {
		switch action {
		case "sheets":
			h.ListSheets(w, r, taskID)
		case "rejections":
			h.ListRejections(w, r, taskID)
		case "splits":
			h.ListSplitRecords(w, r, taskID)
		case "audit-logs":
			h.ListAuditLogs(w, r, taskID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "dispatch":
		h.DispatchTask(w, r, taskID)
	case "accept":
		h.AcceptTask(w, r, taskID)
	case "check-in":
		h.CheckIn(w, r, taskID)
	case "submit":
		h.SubmitMeasureData(w, r, taskID)
	case "review":
		h.ReviewTask(w, r, taskID)
	case "reject":
		h.RejectTask(w, r, taskID)
	case "split":
		h.SplitTask(w, r, taskID)
	case "versions":
		h.CreateNewVersion(w, r, taskID)
	case "fee-approval":
		h.HandleFeeApprovalResult(w, r, taskID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ============================================
// 写操作
// ============================================

type createTaskPayload struct {
	CustomerID  string     `json:"customerId"`
	LeadID      string     `json:"leadId"`
	Type        string     `json:"type"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	IsFeeExempt bool       `json:"isFeeExempt"`
	Remark      string     `json:"remark"`
}

// CreateTask POST /measure/api/v1/tasks
func (h *MeasureTaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var p createTaskPayload
	if !h.decode(w, r, &p) {
		return
	}

	resp, err := h.svc.CreateTask(r.Context(), sessionFromReq(r), service.CreateTaskRequest{
		CustomerID:  p.CustomerID,
		LeadID:      p.LeadID,
		Type:        domain.MeasureType(p.Type),
		ScheduledAt: p.ScheduledAt,
		IsFeeExempt: p.IsFeeExempt,
		Remark:      p.Remark,
	})
	if err != nil {
		h.fail(w, r, "CreateTask", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"task":       toTaskView(resp.Task),
		"sheet":      toSheetView(resp.Sheet),
		"admission":  toAdmissionView(resp.Admission),
		"approvalId": resp.ApprovalID,
	}))
}

type dispatchPayload struct {
	WorkerID    string     `json:"workerId"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// DispatchTask POST tasks/{id}/dispatch
func (h *MeasureTaskHandler) DispatchTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var p dispatchPayload
	if !h.decode(w, r, &p) {
		return
	}
	task, err := h.svc.DispatchTask(r.Context(), sessionFromReq(r), service.DispatchTaskRequest{
		TaskID:      taskID,
		WorkerID:    p.WorkerID,
		ScheduledAt: p.ScheduledAt,
	})
	h.writeTask(w, r, "DispatchTask", task, err)
}

// AcceptTask POST tasks/{id}/accept
func (h *MeasureTaskHandler) AcceptTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.svc.AcceptTask(r.Context(), sessionFromReq(r), taskID)
	h.writeTask(w, r, "AcceptTask", task, err)
}

type checkInPayload struct {
	Location        service.GeoPoint  `json:"location"`
	Target          *service.GeoPoint `json:"target"`
	ToleranceMeters float64           `json:"toleranceMeters"`
	Strict          bool              `json:"strict"`
}

// CheckIn POST tasks/{id}/check-in
func (h *MeasureTaskHandler) CheckIn(w http.ResponseWriter, r *http.Request, taskID string) {
	var p checkInPayload
	if !h.decode(w, r, &p) {
		return
	}
	resp, err := h.svc.CheckIn(r.Context(), sessionFromReq(r), service.CheckInRequest{
		TaskID:          taskID,
		Location:        p.Location,
		Target:          p.Target,
		ToleranceMeters: p.ToleranceMeters,
		Strict:          p.Strict,
	})
	if err != nil {
		h.fail(w, r, "CheckIn", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"task":    toTaskView(resp.Task),
		"checkIn": resp.Result,
	}))
}

type submitPayload struct {
	SitePhotos []string      `json:"sitePhotos"`
	SketchMap  string        `json:"sketchMap"`
	Items      []itemPayload `json:"items"`
}

// SubmitMeasureData POST tasks/{id}/submit
func (h *MeasureTaskHandler) SubmitMeasureData(w http.ResponseWriter, r *http.Request, taskID string) {
	var p submitPayload
	if !h.decode(w, r, &p) {
		return
	}
	items := make([]domain.MeasureItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, it.toDomain())
	}

	resp, err := h.svc.SubmitMeasureData(r.Context(), sessionFromReq(r), service.SubmitMeasureDataRequest{
		TaskID:     taskID,
		SitePhotos: p.SitePhotos,
		SketchMap:  p.SketchMap,
		Items:      items,
	})
	if err != nil {
		h.fail(w, r, "SubmitMeasureData", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"task":  toTaskView(resp.Task),
		"sheet": toSheetView(resp.Sheet),
	}))
}

type reviewPayload struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// ReviewTask POST tasks/{id}/review
func (h *MeasureTaskHandler) ReviewTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var p reviewPayload
	if !h.decode(w, r, &p) {
		return
	}
	task, err := h.svc.ReviewTask(r.Context(), sessionFromReq(r), service.ReviewTaskRequest{
		TaskID:   taskID,
		Approved: p.Approved,
		Reason:   p.Reason,
	})
	h.writeTask(w, r, "ReviewTask", task, err)
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

// RejectTask POST tasks/{id}/reject
func (h *MeasureTaskHandler) RejectTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var p rejectPayload
	if !h.decode(w, r, &p) {
		return
	}
	task, err := h.svc.RejectTask(r.Context(), sessionFromReq(r), service.RejectTaskRequest{TaskID: taskID, Reason: p.Reason})
	h.writeTask(w, r, "RejectTask", task, err)
}

type splitPayload struct {
	Categories []string `json:"categories"`
	Reason     string   `json:"reason"`
}

// SplitTask POST tasks/{id}/split
func (h *MeasureTaskHandler) SplitTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var p splitPayload
	if !h.decode(w, r, &p) {
		return
	}
	resp, err := h.svc.SplitTask(r.Context(), sessionFromReq(r), service.SplitTaskRequest{
		TaskID:     taskID,
		Categories: p.Categories,
		Reason:     p.Reason,
	})
	if err != nil {
		h.fail(w, r, "SplitTask", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"original": toTaskView(resp.Original),
		"tasks":    toTaskViews(resp.Tasks),
	}))
}

type versionPayload struct {
	Mode string `json:"mode"`
}

// CreateNewVersion POST tasks/{id}/versions
func (h *MeasureTaskHandler) CreateNewVersion(w http.ResponseWriter, r *http.Request, taskID string) {
	var p versionPayload
	if !h.decode(w, r, &p) {
		return
	}
	resp, err := h.svc.CreateNewVersion(r.Context(), sessionFromReq(r), service.CreateNewVersionRequest{
		TaskID: taskID,
		Mode:   service.VersionMode(strings.ToUpper(p.Mode)),
	})
	if err != nil {
		h.fail(w, r, "CreateNewVersion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"task":  toTaskView(resp.Task),
		"sheet": toSheetView(resp.Sheet),
	}))
}

type feeApprovalPayload struct {
	ApprovalID string `json:"approvalId"`
	Approved   bool   `json:"approved"`
	Comment    string `json:"comment"`
}

// HandleFeeApprovalResult POST tasks/{id}/fee-approval（审批流回调）
func (h *MeasureTaskHandler) HandleFeeApprovalResult(w http.ResponseWriter, r *http.Request, taskID string) {
	var p feeApprovalPayload
	if !h.decode(w, r, &p) {
		return
	}
	task, err := h.svc.HandleFeeApprovalResult(r.Context(), sessionFromReq(r), service.FeeApprovalResultRequest{
		TaskID:     taskID,
		ApprovalID: p.ApprovalID,
		Approved:   p.Approved,
		Comment:    p.Comment,
	})
	h.writeTask(w, r, "HandleFeeApprovalResult", task, err)
}

// ============================================
// 查询
// ============================================

// ListTasks GET /measure/api/v1/tasks
func (h *MeasureTaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.svc.ListTasks(r.Context(), sessionFromReq(r), service.ListTasksRequest{
		Filters: repository.TaskFilters{
			Status:           strings.ToUpper(q.Get("status")),
			AssignedWorkerID: q.Get("assignedWorkerId"),
			CustomerID:       q.Get("customerId"),
			LeadID:           q.Get("leadId"),
			ParentID:         q.Get("parentId"),
		},
		Page:     parseInt(q.Get("page"), 1),
		PageSize: parseInt(q.Get("size"), 20),
	})
	if err != nil {
		h.fail(w, r, "ListTasks", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": toTaskViews(resp.Items),
		"total": resp.Total,
		"page":  resp.Page,
		"size":  resp.Size,
	}))
}

// GetTask GET tasks/{id}
func (h *MeasureTaskHandler) GetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.svc.GetTask(r.Context(), sessionFromReq(r), taskID)
	h.writeTask(w, r, "GetTask", task, err)
}

// ListSheets GET tasks/{id}/sheets
func (h *MeasureTaskHandler) ListSheets(w http.ResponseWriter, r *http.Request, taskID string) {
	sheets, err := h.svc.ListSheets(r.Context(), sessionFromReq(r), taskID)
	if err != nil {
		h.fail(w, r, "ListSheets", err)
		return
	}
	out := make([]*sheetView, 0, len(sheets))
	for _, s := range sheets {
		out = append(out, toSheetView(s))
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// GetSheet GET tasks/{id}/sheets/{sheetId}
func (h *MeasureTaskHandler) GetSheet(w http.ResponseWriter, r *http.Request, taskID, sheetID string) {
	sheet, err := h.svc.GetSheet(r.Context(), sessionFromReq(r), taskID, sheetID)
	if err != nil {
		h.fail(w, r, "GetSheet", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toSheetView(sheet)))
}

// ExportSheet GET tasks/{id}/sheets/{sheetId}/export
func (h *MeasureTaskHandler) ExportSheet(w http.ResponseWriter, r *http.Request, taskID, sheetID string) {
	session := sessionFromReq(r)
	task, err := h.svc.GetTask(r.Context(), session, taskID)
	if err != nil {
		h.fail(w, r, "ExportSheet", err)
		return
	}
	sheet, err := h.svc.GetSheet(r.Context(), session, taskID, sheetID)
	if err != nil {
		h.fail(w, r, "ExportSheet", err)
		return
	}

	data, err := GenerateMeasureSheetExport(task, sheet)
	if err != nil {
		h.logger.Error("Failed to generate measure sheet export",
			zap.String("task_id", taskID), zap.String("sheet_id", sheetID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	filename := fmt.Sprintf("%s-R%d-%s.xlsx", task.MeasureNo, sheet.Round, sheet.Variant)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ListRejections GET tasks/{id}/rejections
func (h *MeasureTaskHandler) ListRejections(w http.ResponseWriter, r *http.Request, taskID string) {
	entries, err := h.svc.ListRejections(r.Context(), sessionFromReq(r), taskID)
	if err != nil {
		h.fail(w, r, "ListRejections", err)
		return
	}
	out := make([]rejectionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, rejectionView{
			ID:          e.EntryID,
			Kind:        string(e.Kind),
			Reason:      e.Reason,
			FromStatus:  string(e.FromStatus),
			ToStatus:    string(e.ToStatus),
			RejectCount: e.RejectCount,
			RejectedBy:  e.RejectedBy,
			RejectedAt:  e.RejectedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// ListSplitRecords GET tasks/{id}/splits
func (h *MeasureTaskHandler) ListSplitRecords(w http.ResponseWriter, r *http.Request, taskID string) {
	records, err := h.svc.ListSplitRecords(r.Context(), sessionFromReq(r), taskID)
	if err != nil {
		h.fail(w, r, "ListSplitRecords", err)
		return
	}
	out := make([]splitRecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, splitRecordView{
			ID:             rec.RecordID,
			OriginalTaskID: rec.OriginalTaskID,
			NewTaskID:      rec.NewTaskID,
			Category:       rec.Category,
			Reason:         rec.Reason,
			CreatedBy:      rec.CreatedBy,
			CreatedAt:      rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// ListAuditLogs GET tasks/{id}/audit-logs
func (h *MeasureTaskHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request, taskID string) {
	logs, err := h.svc.ListAuditLogs(r.Context(), sessionFromReq(r), taskID)
	if err != nil {
		h.fail(w, r, "ListAuditLogs", err)
		return
	}
	out := make([]auditLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditLogView{
			ID:            l.LogID,
			UserID:        l.UserID,
			Action:        string(l.Action),
			ChangedFields: l.ChangedFields,
			NewValues:     l.NewValues,
			CreatedAt:     l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// ============================================
// 工具
// ============================================

func (h *MeasureTaskHandler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := readBodyJSON(r, maxBodyBytes, out); err != nil {
		writeJSON(w, http.StatusOK, FailErr(domain.NewValidationError("invalid request body: %v", err)))
		return false
	}
	return true
}

func (h *MeasureTaskHandler) writeTask(w http.ResponseWriter, r *http.Request, op string, task *domain.MeasureTask, err error) {
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toTaskView(task)))
}

// fail 业务错误记 Warn，内部 / 下游错误记 Error
func (h *MeasureTaskHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("tenant_id", headerValue(r, "X-Tenant-Id")),
		zap.String("user_id", headerValue(r, "X-User-Id")),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	switch domain.KindOf(err) {
	case domain.KindInternal, domain.KindDownstream:
		h.logger.Error("Measure task request failed", fields...)
	default:
		h.logger.Warn("Measure task request rejected", fields...)
	}
	writeJSON(w, http.StatusOK, FailErr(err))
}
