package domain

import (
	"encoding/json"
	"time"
)

// MeasureSheetStatus 测量单状态
type MeasureSheetStatus string

const (
	MeasureSheetStatusDraft     MeasureSheetStatus = "DRAFT"
	MeasureSheetStatusSubmitted MeasureSheetStatus = "SUBMITTED"
	MeasureSheetStatusConfirmed MeasureSheetStatus = "CONFIRMED"
)

// WindowType 窗型
type WindowType string

const (
	WindowTypeStraight WindowType = "STRAIGHT"
	WindowTypeLShape   WindowType = "L_SHAPE"
	WindowTypeUShape   WindowType = "U_SHAPE"
	WindowTypeArc      WindowType = "ARC"
)

// Valid 是否为已定义的窗型
func (w WindowType) Valid() bool {
	switch w {
	case WindowTypeStraight, WindowTypeLShape, WindowTypeUShape, WindowTypeArc:
		return true
	}
	return false
}

// InstallType 安装方式
type InstallType string

const (
	InstallTypeTop  InstallType = "TOP"
	InstallTypeSide InstallType = "SIDE"
)

// WallMaterial 墙体材质
type WallMaterial string

const (
	WallMaterialConcrete WallMaterial = "CONCRETE"
	WallMaterialWood     WallMaterial = "WOOD"
	WallMaterialGypsum   WallMaterial = "GYPSUM"
)

// MeasureSheet 测量单领域模型（对应 measure_sheets 表）
// 一次 (task, round, variant) 的数据采集，只归属于一个测量任务
type MeasureSheet struct {
	SheetID  string             `db:"id"`
	TenantID string             `db:"tenant_id"`
	TaskID   string             `db:"task_id"`
	Status   MeasureSheetStatus `db:"status"`
	Round    int                `db:"round"`
	Variant  string             `db:"variant"`

	SitePhotos []string `db:"site_photos"` // JSONB 数组，照片 URL
	SketchMap  string   `db:"sketch_map"`  // 草图（URL 或 SVG 文本）

	SubmittedBy string    `db:"submitted_by"` // nullable
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	// 有序明细（按 SortOrder）
	Items []MeasureItem `db:"-"`
}

// Clone 深拷贝
func (s *MeasureSheet) Clone() *MeasureSheet {
	if s == nil {
		return nil
	}
	c := *s
	c.SitePhotos = append([]string(nil), s.SitePhotos...)
	c.Items = make([]MeasureItem, len(s.Items))
	for i := range s.Items {
		c.Items[i] = s.Items[i].Clone()
	}
	return &c
}

// MeasureItem 测量明细（对应 measure_items 表）
type MeasureItem struct {
	ItemID    string `db:"id"`
	TenantID  string `db:"tenant_id"`
	SheetID   string `db:"sheet_id"`
	SortOrder int    `db:"sort_order"`

	RoomName     string       `db:"room_name"`
	WindowType   WindowType   `db:"window_type"`
	Width        float64      `db:"width"`  // 单位 cm
	Height       float64      `db:"height"` // 单位 cm
	InstallType  InstallType  `db:"install_type"`
	BracketDist  *float64     `db:"bracket_dist"`
	WallMaterial WallMaterial `db:"wall_material"`
	HasBox       bool         `db:"has_box"`
	BoxDepth     *float64     `db:"box_depth"`
	IsElectric   bool         `db:"is_electric"`
	Remark       string       `db:"remark"`

	SegmentData json.RawMessage `db:"segment_data"` // L/U 型窗分段数据
}

// Clone 深拷贝
func (i MeasureItem) Clone() MeasureItem {
	c := i
	if i.BracketDist != nil {
		v := *i.BracketDist
		c.BracketDist = &v
	}
	if i.BoxDepth != nil {
		v := *i.BoxDepth
		c.BoxDepth = &v
	}
	if i.SegmentData != nil {
		c.SegmentData = append(json.RawMessage(nil), i.SegmentData...)
	}
	return c
}
