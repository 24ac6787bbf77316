package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var invoiceExportHeaders = []string{
	"发票编号", "供应商", "金额", "币种", "开票日期", "到期日期",
	"状态", "描述", "备注", "创建时间",
}

// ExportXLSX 导出组织的发票列表为xlsx，过滤和排序与列表接口一致，不分页
func (s *InvoiceService) ExportXLSX(ctx context.Context, orgID string, q Query) (*excelize.File, string, error) {
	all, err := s.fetchAll(ctx, orgID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch invoices: %w", err)
	}

	q.Page = 1
	q.PageSize = len(all) + 1
	invoices, _ := ApplyQuery(all, q)

	f := excelize.NewFile()
	sheet := "Invoices"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	// 写入表头
	for i, h := range invoiceExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	// 写入数据行
	total := decimal.Zero
	for rowIdx := range invoices {
		inv := &invoices[rowIdx]
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), inv.InvoiceNumber)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), inv.VendorName)
		amount, _ := inv.Amount.Float64()
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), amount)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), inv.Currency)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), inv.InvoiceDate.Format("2006-01-02"))
		if inv.DueDate != nil {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), inv.DueDate.Format("2006-01-02"))
		}
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), inv.Status)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), inv.Description)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), inv.Notes)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), inv.CreatedAt.Format("2006-01-02 15:04:05"))
		total = total.Add(inv.Amount)
	}

	// 底部汇总行
	summaryRow := len(invoices) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), fmt.Sprintf("总发票数: %d", len(invoices)))
	totalAmount, _ := total.Float64()
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), totalAmount)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("J%d", summaryRow), summaryStyle)

	// 列宽自适应
	colWidths := []float64{16, 20, 12, 8, 12, 12, 10, 24, 24, 20}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}
