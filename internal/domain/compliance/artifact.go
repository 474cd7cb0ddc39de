package compliance

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// buildWorkbook renders a one-sheet xlsx with a bold title row followed by
// key/value rows. Used for export summaries and PIA packs.
func buildWorkbook(title string, lines [][2]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 13}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", style); err != nil {
		return nil, err
	}

	for i, line := range lines {
		row := i + 3
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), line[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), line[1]); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "B", "B", 60); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func metaString(meta map[string]any, key, fallback string) string {
	if meta == nil {
		return fallback
	}
	v, ok := meta[key]
	if !ok {
		return fallback
	}
	return fmt.Sprint(v)
}
