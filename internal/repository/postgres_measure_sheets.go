package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"slideboard-measure/internal/domain"
)

const measureSheetColumns = `
	id::text,
	tenant_id::text,
	task_id::text,
	status,
	round,
	variant,
	site_photos,
	sketch_map,
	submitted_by::text,
	created_at,
	updated_at`

func scanMeasureSheet(row rowScanner) (*domain.MeasureSheet, error) {
	var s domain.MeasureSheet
	var sitePhotos []byte
	var sketchMap, submittedBy sql.NullString

	if err := row.Scan(
		&s.SheetID,
		&s.TenantID,
		&s.TaskID,
		&s.Status,
		&s.Round,
		&s.Variant,
		&sitePhotos,
		&sketchMap,
		&submittedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.SketchMap = sketchMap.String
	s.SubmittedBy = submittedBy.String
	s.SitePhotos = []string{}
	if len(sitePhotos) > 0 {
		if err := json.Unmarshal(sitePhotos, &s.SitePhotos); err != nil {
			return nil, fmt.Errorf("failed to decode site_photos: %w", err)
		}
	}
	s.Items = []domain.MeasureItem{}
	return &s, nil
}

// CreateSheet 插入测量单及其明细
func (t *postgresMeasureTx) CreateSheet(ctx context.Context, sheet *domain.MeasureSheet) error {
	if sheet == nil || sheet.TenantID == "" || sheet.SheetID == "" || sheet.TaskID == "" {
		return fmt.Errorf("tenant_id, sheet id and task id are required")
	}

	photos := sheet.SitePhotos
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return fmt.Errorf("failed to encode site_photos: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO measure_sheets (
			id, tenant_id, task_id, status, round, variant,
			site_photos, sketch_map, submitted_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sheet.SheetID, sheet.TenantID, sheet.TaskID, string(sheet.Status), sheet.Round, sheet.Variant,
		string(photosJSON), nullString(sheet.SketchMap), nullString(sheet.SubmittedBy), sheet.CreatedAt, sheet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create measure sheet: %w", err)
	}

	for i := range sheet.Items {
		item := &sheet.Items[i]
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO measure_items (
				id, tenant_id, sheet_id, sort_order, room_name, window_type,
				width, height, install_type, bracket_dist, wall_material,
				has_box, box_depth, is_electric, remark, segment_data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			item.ItemID, sheet.TenantID, sheet.SheetID, item.SortOrder, item.RoomName, string(item.WindowType),
			item.Width, item.Height, nullString(string(item.InstallType)), nullFloat(item.BracketDist), nullString(string(item.WallMaterial)),
			item.HasBox, nullFloat(item.BoxDepth), item.IsElectric, nullString(item.Remark), nullJSON(item.SegmentData),
		)
		if err != nil {
			return fmt.Errorf("failed to create measure item %d: %w", i, err)
		}
	}
	return nil
}

// ListSheetVariants 某一轮次所有测量单的方案标识
func (t *postgresMeasureTx) ListSheetVariants(ctx context.Context, tenantID, taskID string, round int) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT variant
		FROM measure_sheets
		WHERE tenant_id = $1 AND task_id = $2 AND round = $3`,
		tenantID, taskID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheet variants: %w", err)
	}
	defer rows.Close()

	variants := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan sheet variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// LatestSheetByStatus 最近一张指定状态的测量单（不含明细），没有时返回 nil, nil
func (t *postgresMeasureTx) LatestSheetByStatus(ctx context.Context, tenantID, taskID string, status domain.MeasureSheetStatus) (*domain.MeasureSheet, error) {
	query := `SELECT ` + measureSheetColumns + `
		FROM measure_sheets
		WHERE tenant_id = $1 AND task_id = $2 AND status = $3
		ORDER BY round DESC, created_at DESC
		LIMIT 1
		FOR UPDATE`

	sheet, err := scanMeasureSheet(t.tx.QueryRowContext(ctx, query, tenantID, taskID, string(status)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest measure sheet: %w", err)
	}
	return sheet, nil
}

// SetSheetStatus 更新测量单状态
func (t *postgresMeasureTx) SetSheetStatus(ctx context.Context, tenantID, sheetID string, status domain.MeasureSheetStatus) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE measure_sheets
		SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, sheetID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to set measure sheet status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("measure sheet not found: %w", sql.ErrNoRows)
	}
	return nil
}

func listMeasureSheets(ctx context.Context, q queryer, tenantID, taskID string) ([]*domain.MeasureSheet, error) {
	if tenantID == "" || taskID == "" {
		return []*domain.MeasureSheet{}, nil
	}

	rows, err := q.QueryContext(ctx, `SELECT `+measureSheetColumns+`
		FROM measure_sheets
		WHERE tenant_id = $1 AND task_id = $2
		ORDER BY round ASC, created_at ASC`,
		tenantID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list measure sheets: %w", err)
	}

	sheets := []*domain.MeasureSheet{}
	byID := map[string]*domain.MeasureSheet{}
	ids := []string{}
	for rows.Next() {
		sheet, err := scanMeasureSheet(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan measure sheet: %w", err)
		}
		sheets = append(sheets, sheet)
		byID[sheet.SheetID] = sheet
		ids = append(ids, sheet.SheetID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate measure sheets: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return sheets, nil
	}
	if err := loadMeasureItems(ctx, q, tenantID, ids, byID); err != nil {
		return nil, err
	}
	return sheets, nil
}

func getMeasureSheet(ctx context.Context, q queryer, tenantID, taskID, sheetID string) (*domain.MeasureSheet, error) {
	sheet, err := scanMeasureSheet(q.QueryRowContext(ctx, `SELECT `+measureSheetColumns+`
		FROM measure_sheets
		WHERE tenant_id = $1 AND task_id = $2 AND id = $3`,
		tenantID, taskID, sheetID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("measure sheet not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get measure sheet: %w", err)
	}
	if err := loadMeasureItems(ctx, q, tenantID, []string{sheet.SheetID}, map[string]*domain.MeasureSheet{sheet.SheetID: sheet}); err != nil {
		return nil, err
	}
	return sheet, nil
}

func loadMeasureItems(ctx context.Context, q queryer, tenantID string, sheetIDs []string, byID map[string]*domain.MeasureSheet) error {
	rows, err := q.QueryContext(ctx, `
		SELECT
			id::text, sheet_id::text, sort_order, room_name, window_type,
			width, height, install_type, bracket_dist, wall_material,
			has_box, box_depth, is_electric, remark, segment_data
		FROM measure_items
		WHERE tenant_id = $1 AND sheet_id = ANY($2)
		ORDER BY sheet_id, sort_order ASC`,
		tenantID, pq.Array(sheetIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to list measure items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.MeasureItem
		var installType, wallMaterial, remark sql.NullString
		var bracketDist, boxDepth sql.NullFloat64
		var segmentData []byte
		if err := rows.Scan(
			&item.ItemID,
			&item.SheetID,
			&item.SortOrder,
			&item.RoomName,
			&item.WindowType,
			&item.Width,
			&item.Height,
			&installType,
			&bracketDist,
			&wallMaterial,
			&item.HasBox,
			&boxDepth,
			&item.IsElectric,
			&remark,
			&segmentData,
		); err != nil {
			return fmt.Errorf("failed to scan measure item: %w", err)
		}
		item.TenantID = tenantID
		item.InstallType = domain.InstallType(installType.String)
		item.WallMaterial = domain.WallMaterial(wallMaterial.String)
		item.Remark = remark.String
		item.BracketDist = floatPtr(bracketDist)
		item.BoxDepth = floatPtr(boxDepth)
		if len(segmentData) > 0 {
			item.SegmentData = append([]byte(nil), segmentData...)
		}
		if sheet, ok := byID[item.SheetID]; ok {
			sheet.Items = append(sheet.Items, item)
		}
	}
	return rows.Err()
}
