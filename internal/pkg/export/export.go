// Package export 把一个批次的提取结果写成对比表格：每行一个指标，每列一个站点
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/qs3c/site_compare_server/internal/parser"
)

const (
	SheetName    = "Comparison"
	FailedMarker = "Analysis Failed"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	metricHeader = "Metric"
	errorRow     = "Error"
)

// ErrNoData 没有任何成功站点时无法确定表头
var ErrNoData = errors.New("no data")

// Column 一个站点列；Record 为空表示该站点失败
type Column struct {
	Index  int
	URL    string
	Record *parser.Record
	Reason string
}

func (c Column) Failed() bool {
	return c.Record == nil
}

// Header 行集合由第一个成功站点的记录决定，之后的站点多出的指标追加在末尾
func Header(cols []Column) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	for _, c := range cols {
		if c.Failed() {
			continue
		}
		for _, k := range c.Record.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoData
	}
	return keys, nil
}

// Workbook 生成表格
func Workbook(cols []Column) (*excelize.File, error) {
	keys, err := Header(cols)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}

	set := func(col, row int, v interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(SheetName, cell, v)
	}

	if err := set(1, 1, metricHeader); err != nil {
		f.Close()
		return nil, err
	}
	for r, k := range keys {
		if err := set(1, r+2, k); err != nil {
			f.Close()
			return nil, err
		}
	}

	anyFailed := false
	for i, c := range cols {
		col := i + 2
		if err := set(col, 1, columnTitle(c)); err != nil {
			f.Close()
			return nil, err
		}
		for r, k := range keys {
			if err := set(col, r+2, cellValue(c, k, r)); err != nil {
				f.Close()
				return nil, err
			}
		}
		if c.Failed() {
			anyFailed = true
		}
	}

	lastRow := len(keys) + 1
	if anyFailed {
		lastRow++
		if err := set(1, lastRow, errorRow); err != nil {
			f.Close()
			return nil, err
		}
		for i, c := range cols {
			if c.Failed() {
				if err := set(i+2, lastRow, c.Reason); err != nil {
					f.Close()
					return nil, err
				}
			}
		}
	}

	if err := layout(f, len(cols), lastRow); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// layout 全表自动换行，指标列和标题行加粗
func layout(f *excelize.File, siteCols, lastRow int) error {
	align := &excelize.Alignment{WrapText: true, Vertical: "top"}
	body, err := f.NewStyle(&excelize.Style{Alignment: align})
	if err != nil {
		return err
	}
	head, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: align})
	if err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(siteCols + 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", fmt.Sprintf("%s%d", lastCol, lastRow), body); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", fmt.Sprintf("A%d", lastRow), head); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", head); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 32); err != nil {
		return err
	}
	if siteCols > 0 {
		return f.SetColWidth(SheetName, "B", lastCol, 48)
	}
	return nil
}

func columnTitle(c Column) string {
	if host := parser.CompanyFromURL(c.URL); host != "" {
		return host
	}
	return fmt.Sprintf("Site %d", c.Index)
}

// cellValue 失败站点的列保留位置：URL 行填地址，第一行标记失败，其余为缺失
func cellValue(c Column, key string, row int) interface{} {
	if c.Failed() {
		switch {
		case key == parser.KeyURL:
			return c.URL
		case row == 0:
			return FailedMarker
		default:
			return parser.AbsentMarker
		}
	}
	v, ok := c.Record.Get(key)
	if !ok || v.IsAbsent() {
		return parser.AbsentMarker
	}
	if f, ok := v.Float(); ok {
		return f
	}
	return v.String()
}

// Write 把表格写入 w
func Write(w io.Writer, cols []Column) error {
	f, err := Workbook(cols)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Bytes 表格内容
func Bytes(cols []Column) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, cols); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
