package service

import (
	"sort"
	"strings"

	"github.com/bitfantasy/invoiceflow/internal/entity"
)

// Query 发票列表的过滤/排序/分页参数。
// 所有处理都在内存中进行，作用于组织的全量拉取结果。
type Query struct {
	Status    string
	Search    string
	SortBy    string
	SortOrder string // asc/desc
	Page      int
	PageSize  int
}

// 可排序字段白名单
var sortableFields = map[string]bool{
	"invoice_number": true,
	"vendor_name":    true,
	"amount":         true,
	"invoice_date":   true,
	"due_date":       true,
	"status":         true,
	"created_at":     true,
	"updated_at":     true,
}

// ApplyQuery 过滤→搜索→排序→分页，返回当前页和过滤后总数
func ApplyQuery(invoices []entity.Invoice, q Query) ([]entity.Invoice, int) {
	filtered := make([]entity.Invoice, 0, len(invoices))
	search := strings.ToLower(strings.TrimSpace(q.Search))

	for _, inv := range invoices {
		if q.Status != "" && inv.Status != q.Status {
			continue
		}
		if search != "" && !matchesSearch(&inv, search) {
			continue
		}
		filtered = append(filtered, inv)
	}

	sortInvoices(filtered, q.SortBy, q.SortOrder)

	total := len(filtered)

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= total {
		return []entity.Invoice{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}

// matchesSearch 对编号/供应商/描述/备注做大小写无关的子串匹配
func matchesSearch(inv *entity.Invoice, search string) bool {
	return strings.Contains(strings.ToLower(inv.InvoiceNumber), search) ||
		strings.Contains(strings.ToLower(inv.VendorName), search) ||
		strings.Contains(strings.ToLower(inv.Description), search) ||
		strings.Contains(strings.ToLower(inv.Notes), search)
}

func sortInvoices(invoices []entity.Invoice, sortBy, sortOrder string) {
	if sortBy == "" || !sortableFields[sortBy] {
		sortBy = "created_at"
		if sortOrder == "" {
			sortOrder = "desc"
		}
	}
	desc := sortOrder == "desc"

	sort.SliceStable(invoices, func(i, j int) bool {
		a, b := &invoices[i], &invoices[j]

		// 缺失值排最后，与方向无关
		aMissing, bMissing := fieldMissing(a, sortBy), fieldMissing(b, sortBy)
		if aMissing != bMissing {
			return bMissing
		}

		less := fieldLess(a, b, sortBy)
		if desc {
			return fieldLess(b, a, sortBy)
		}
		return less
	})
}

func fieldMissing(inv *entity.Invoice, field string) bool {
	if field == "due_date" {
		return inv.DueDate == nil
	}
	return false
}

func fieldLess(a, b *entity.Invoice, field string) bool {
	switch field {
	case "invoice_number":
		return strings.ToLower(a.InvoiceNumber) < strings.ToLower(b.InvoiceNumber)
	case "vendor_name":
		return strings.ToLower(a.VendorName) < strings.ToLower(b.VendorName)
	case "amount":
		return a.Amount.LessThan(b.Amount)
	case "invoice_date":
		return a.InvoiceDate.Before(b.InvoiceDate)
	case "due_date":
		if a.DueDate == nil || b.DueDate == nil {
			return false
		}
		return a.DueDate.Before(*b.DueDate)
	case "status":
		return a.Status < b.Status
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}
