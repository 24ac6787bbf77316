package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func queryFixture() []entity.Invoice {
	due10 := day(10)
	due20 := day(20)
	return []entity.Invoice{
		{
			ID: "inv-1", InvoiceNumber: "INV-001", VendorName: "Acme Supplies",
			Amount: decimal.NewFromInt(300), Status: entity.InvoiceStatusPending,
			InvoiceDate: day(1), DueDate: &due10, CreatedAt: day(1),
		},
		{
			ID: "inv-2", InvoiceNumber: "INV-002", VendorName: "Globex",
			Amount: decimal.NewFromInt(100), Status: entity.InvoiceStatusApproved,
			InvoiceDate: day(2), DueDate: nil, CreatedAt: day(2),
			Notes: "urgent payment",
		},
		{
			ID: "inv-3", InvoiceNumber: "INV-003", VendorName: "Initech",
			Amount: decimal.NewFromInt(200), Status: entity.InvoiceStatusPending,
			InvoiceDate: day(3), DueDate: &due20, CreatedAt: day(3),
			Description: "office acme chairs",
		},
	}
}

func ids(invoices []entity.Invoice) []string {
	out := make([]string, len(invoices))
	for i, inv := range invoices {
		out[i] = inv.ID
	}
	return out
}

func assertOrder(t *testing.T, got []entity.Invoice, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d invoices, got %v", len(want), ids(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("expected order %v, got %v", want, ids(got))
		}
	}
}

func TestApplyQuery_StatusFilter(t *testing.T) {
	items, total := ApplyQuery(queryFixture(), Query{Status: entity.InvoiceStatusPending, SortBy: "created_at", SortOrder: "asc"})
	if total != 2 {
		t.Fatalf("expected 2 pending, got %d", total)
	}
	assertOrder(t, items, "inv-1", "inv-3")
}

func TestApplyQuery_SearchCaseInsensitive(t *testing.T) {
	// 命中vendor_name和description里的"acme"
	items, total := ApplyQuery(queryFixture(), Query{Search: "ACME", SortBy: "created_at", SortOrder: "asc"})
	if total != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", total, ids(items))
	}
	assertOrder(t, items, "inv-1", "inv-3")

	// notes里的子串
	_, total = ApplyQuery(queryFixture(), Query{Search: "urgent"})
	if total != 1 {
		t.Fatalf("expected 1 match on notes, got %d", total)
	}
}

func TestApplyQuery_SortByAmount(t *testing.T) {
	items, _ := ApplyQuery(queryFixture(), Query{SortBy: "amount", SortOrder: "asc"})
	assertOrder(t, items, "inv-2", "inv-3", "inv-1")

	items, _ = ApplyQuery(queryFixture(), Query{SortBy: "amount", SortOrder: "desc"})
	assertOrder(t, items, "inv-1", "inv-3", "inv-2")
}

func TestApplyQuery_MissingDueDateSortsLast(t *testing.T) {
	items, _ := ApplyQuery(queryFixture(), Query{SortBy: "due_date", SortOrder: "asc"})
	assertOrder(t, items, "inv-1", "inv-3", "inv-2")

	// 方向反转时缺失值仍在最后
	items, _ = ApplyQuery(queryFixture(), Query{SortBy: "due_date", SortOrder: "desc"})
	assertOrder(t, items, "inv-3", "inv-1", "inv-2")
}

func TestApplyQuery_UnknownSortFieldFallsBack(t *testing.T) {
	// 白名单外的字段回退到created_at desc
	items, _ := ApplyQuery(queryFixture(), Query{SortBy: "password_hash"})
	assertOrder(t, items, "inv-3", "inv-2", "inv-1")
}

func TestApplyQuery_DefaultSort(t *testing.T) {
	items, _ := ApplyQuery(queryFixture(), Query{})
	assertOrder(t, items, "inv-3", "inv-2", "inv-1")
}

func TestApplyQuery_Pagination(t *testing.T) {
	items, total := ApplyQuery(queryFixture(), Query{SortBy: "created_at", SortOrder: "asc", Page: 1, PageSize: 2})
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	assertOrder(t, items, "inv-1", "inv-2")

	items, _ = ApplyQuery(queryFixture(), Query{SortBy: "created_at", SortOrder: "asc", Page: 2, PageSize: 2})
	assertOrder(t, items, "inv-3")

	// 超出范围的页返回空页但总数不变
	items, total = ApplyQuery(queryFixture(), Query{Page: 5, PageSize: 2})
	if total != 3 || len(items) != 0 {
		t.Fatalf("expected empty page with total 3, got %d items total %d", len(items), total)
	}
}

func TestApplyQuery_FilterSearchCombined(t *testing.T) {
	items, total := ApplyQuery(queryFixture(), Query{Status: entity.InvoiceStatusPending, Search: "initech"})
	if total != 1 {
		t.Fatalf("expected 1, got %d", total)
	}
	assertOrder(t, items, "inv-3")
}
