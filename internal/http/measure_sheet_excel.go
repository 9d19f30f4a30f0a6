package httpapi

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"slideboard-measure/internal/domain"
)

// MeasureSheetExportHeader 测量单导出表头
var MeasureSheetExportHeader = []string{
	"序号",
	"房间",
	"窗型",
	"宽(cm)",
	"高(cm)",
	"安装方式",
	"支架距离(cm)",
	"墙体材质",
	"窗帘盒",
	"盒深(cm)",
	"电动",
	"备注",
}

const measureSheetName = "测量单"

// GenerateMeasureSheetExport 生成测量单 Excel
// 第 1 行为单号/版本/状态摘要，第 3 行起为表头和明细
func GenerateMeasureSheetExport(task *domain.MeasureTask, sheet *domain.MeasureSheet) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(measureSheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	summary := fmt.Sprintf("测量单号: %s    版本: R%d-%s    状态: %s",
		task.MeasureNo, sheet.Round, sheet.Variant, sheet.Status)
	if err := f.SetCellValue(measureSheetName, "A1", summary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set summary cell: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	const headerRow = 3
	for col, header := range MeasureSheetExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(measureSheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(measureSheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(measureSheetName, "B", "B", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(measureSheetName, "L", "L", 30); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, item := range sheet.Items {
		row := headerRow + 1 + i
		values := []any{
			i + 1,
			item.RoomName,
			string(item.WindowType),
			item.Width,
			item.Height,
			string(item.InstallType),
			optionalFloat(item.BracketDist),
			string(item.WallMaterial),
			yesNo(item.HasBox),
			optionalFloat(item.BoxDepth),
			yesNo(item.IsElectric),
			item.Remark,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(measureSheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write item row %d: %w", row, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
