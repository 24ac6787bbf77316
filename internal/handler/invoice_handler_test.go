package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/middleware"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/bitfantasy/invoiceflow/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type invoiceTestEnv struct {
	db     *gorm.DB
	router *gin.Engine
	store  *testutil.MemObjectStore
}

func setupInvoiceTest(t *testing.T) *invoiceTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedTestOrg(t, db)
	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com", "admin")

	logger := zap.NewNop()
	store := testutil.NewMemObjectStore()
	hub := sse.NewHub(logger)
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: testutil.JWTSecret},
		Upload: config.UploadConfig{
			MaxFileSize:  10 * 1024 * 1024,
			AllowedTypes: []string{"application/pdf", "image/jpeg", "image/png", "image/gif"},
		},
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, store, nil, hub, cfg, logger)
	handlers := NewHandlers(services, hub, cfg, logger)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")
	invoices := api.Group("/invoices")
	{
		invoices.GET("", handlers.Invoice.List)
		invoices.POST("", handlers.Invoice.Create)
		invoices.GET("/export", handlers.Invoice.Export)
		invoices.GET("/:id", handlers.Invoice.Get)
		invoices.PUT("/:id", handlers.Invoice.Update)
		invoices.PUT("/:id/status", handlers.Invoice.UpdateStatus)
		invoices.DELETE("/:id", middleware.RequireRole("admin"), handlers.Invoice.Delete)
		invoices.POST("/:id/attachments", handlers.Invoice.AddAttachments)
	}
	api.GET("/activities", handlers.Activity.ListByOrg)

	return &invoiceTestEnv{db: db, router: r, store: store}
}

func createPayload() map[string]interface{} {
	return map[string]interface{}{
		"invoice_number": "INV-2026-100",
		"vendor_name":    "Acme Supplies",
		"amount":         "1250.50",
		"currency":       "USD",
		"invoice_date":   "2026-08-01",
		"due_date":       "2026-08-31",
		"notes":          "net 30",
	}
}

func (env *invoiceTestEnv) createInvoice(t *testing.T, files []testutil.MultipartFile) string {
	t.Helper()
	var w = testutil.DoMultipartRequest(env.router, "POST", "/api/v1/invoices", createPayload(), files, testutil.DefaultTestToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	inv := data["invoice"].(map[string]interface{})
	return inv["id"].(string)
}

func (env *invoiceTestEnv) countActivities(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	if err := env.db.Model(&entity.ActivityLog{}).Where("action = ?", action).Count(&n).Error; err != nil {
		t.Fatalf("count activities: %v", err)
	}
	return n
}

func TestCreateInvoiceRoundTrip(t *testing.T) {
	env := setupInvoiceTest(t)

	w := testutil.DoRequest(env.router, "POST", "/api/v1/invoices", createPayload(), testutil.DefaultTestToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	created := resp["data"].(map[string]interface{})["invoice"].(map[string]interface{})
	id := created["id"].(string)

	w = testutil.DoRequest(env.router, "GET", "/api/v1/invoices/"+id, nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := testutil.ParseResponse(w)["data"].(map[string]interface{})

	if got["invoice_number"] != "INV-2026-100" {
		t.Errorf("invoice_number mismatch: %v", got["invoice_number"])
	}
	if got["vendor_name"] != "Acme Supplies" {
		t.Errorf("vendor_name mismatch: %v", got["vendor_name"])
	}
	if amt := fmt.Sprintf("%v", got["amount"]); amt != "1250.5" && amt != "1250.50" {
		t.Errorf("amount mismatch: %v", got["amount"])
	}
	if got["status"] != entity.InvoiceStatusPending {
		t.Errorf("new invoice should default to pending, got %v", got["status"])
	}

	if n := env.countActivities(t, entity.ActionInvoiceCreated); n != 1 {
		t.Errorf("expected 1 invoice_created activity, got %d", n)
	}
}

func TestCreateInvoiceValidationFailureWritesNothing(t *testing.T) {
	env := setupInvoiceTest(t)

	payload := createPayload()
	delete(payload, "invoice_number")
	payload["amount"] = "0"

	files := []testutil.MultipartFile{
		{Field: "files", FileName: "inv.pdf", ContentType: "application/pdf", Content: []byte("pdf")},
	}
	w := testutil.DoMultipartRequest(env.router, "POST", "/api/v1/invoices", payload, files, testutil.DefaultTestToken())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40001 {
		t.Errorf("expected code 40001, got %v", resp["code"])
	}
	fields := resp["data"].(map[string]interface{})["fields"].(map[string]interface{})
	if fields["invoice_number"] == nil || fields["amount"] == nil {
		t.Errorf("expected field errors for invoice_number and amount, got %v", fields)
	}

	// 校验失败不产生任何写入
	var n int64
	env.db.Model(&entity.Invoice{}).Count(&n)
	if n != 0 {
		t.Errorf("expected no invoice rows, got %d", n)
	}
	if env.store.PutCalls != 0 {
		t.Errorf("expected no storage calls, got %d", env.store.PutCalls)
	}
	var logs int64
	env.db.Model(&entity.ActivityLog{}).Count(&logs)
	if logs != 0 {
		t.Errorf("expected no activity logs, got %d", logs)
	}
}

func TestCreateInvoiceWithMixedAttachments(t *testing.T) {
	env := setupInvoiceTest(t)

	files := []testutil.MultipartFile{
		{Field: "files", FileName: "inv.pdf", ContentType: "application/pdf", Content: []byte("pdf-bytes")},
		{Field: "files", FileName: "malware.exe", ContentType: "application/x-msdownload", Content: []byte("nope")},
	}
	w := testutil.DoMultipartRequest(env.router, "POST", "/api/v1/invoices", createPayload(), files, testutil.DefaultTestToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	upload := data["upload"].(map[string]interface{})

	if upload["uploaded"].(float64) != 1 {
		t.Errorf("expected 1 uploaded, got %v", upload["uploaded"])
	}
	skipped := upload["skipped"].([]interface{})
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped, got %v", skipped)
	}
	if skipped[0].(map[string]interface{})["file_name"] != "malware.exe" {
		t.Errorf("unexpected skipped entry: %v", skipped[0])
	}

	inv := data["invoice"].(map[string]interface{})
	atts := inv["attachments"].([]interface{})
	if len(atts) != 1 {
		t.Errorf("expected 1 attachment on invoice, got %d", len(atts))
	}
	if env.store.Count() != 1 {
		t.Errorf("expected 1 stored object, got %d", env.store.Count())
	}
}

func TestUpdateStatusIdempotent(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	body := map[string]string{"status": entity.InvoiceStatusApproved, "note": "looks good"}
	for i := 0; i < 2; i++ {
		w := testutil.DoRequest(env.router, "PUT", "/api/v1/invoices/"+id+"/status", body, testutil.DefaultTestToken())
		if w.Code != http.StatusOK {
			t.Fatalf("status update %d failed: %d %s", i, w.Code, w.Body.String())
		}
		got := testutil.ParseResponse(w)["data"].(map[string]interface{})
		if got["status"] != entity.InvoiceStatusApproved {
			t.Errorf("expected approved, got %v", got["status"])
		}
	}

	// 重复调用终值不变，但每次都记日志
	if n := env.countActivities(t, entity.ActionStatusChanged); n != 2 {
		t.Errorf("expected 2 status_changed activities, got %d", n)
	}

	var logs []entity.ActivityLog
	env.db.Where("action = ?", entity.ActionStatusChanged).Order("created_at ASC").Find(&logs)
	if len(logs) == 2 {
		if logs[0].FromStatus != entity.InvoiceStatusPending || logs[0].ToStatus != entity.InvoiceStatusApproved {
			t.Errorf("first transition wrong: %s -> %s", logs[0].FromStatus, logs[0].ToStatus)
		}
		if logs[1].FromStatus != entity.InvoiceStatusApproved || logs[1].ToStatus != entity.InvoiceStatusApproved {
			t.Errorf("second transition wrong: %s -> %s", logs[1].FromStatus, logs[1].ToStatus)
		}
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	w := testutil.DoRequest(env.router, "PUT", "/api/v1/invoices/"+id+"/status",
		map[string]string{"status": "archived"}, testutil.DefaultTestToken())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateInvoicePartialMerge(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	w := testutil.DoRequest(env.router, "PUT", "/api/v1/invoices/"+id,
		map[string]string{"vendor_name": "Globex"}, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := testutil.ParseResponse(w)["data"].(map[string]interface{})["invoice"].(map[string]interface{})

	if got["vendor_name"] != "Globex" {
		t.Errorf("vendor_name not updated: %v", got["vendor_name"])
	}
	// 未提交的字段保持不变
	if got["invoice_number"] != "INV-2026-100" {
		t.Errorf("invoice_number should be untouched: %v", got["invoice_number"])
	}
	if got["notes"] != "net 30" {
		t.Errorf("notes should be untouched: %v", got["notes"])
	}
}

func TestDeleteInvoiceWithAttachments(t *testing.T) {
	env := setupInvoiceTest(t)
	files := []testutil.MultipartFile{
		{Field: "files", FileName: "inv.pdf", ContentType: "application/pdf", Content: []byte("pdf")},
		{Field: "files", FileName: "receipt.jpg", ContentType: "image/jpeg", Content: []byte("jpg")},
	}
	id := env.createInvoice(t, files)
	if env.store.Count() != 2 {
		t.Fatalf("expected 2 stored objects before delete, got %d", env.store.Count())
	}

	w := testutil.DoRequest(env.router, "DELETE", "/api/v1/invoices/"+id, nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.router, "GET", "/api/v1/invoices/"+id, nil, testutil.DefaultTestToken())
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}

	var atts int64
	env.db.Model(&entity.Attachment{}).Where("invoice_id = ?", id).Count(&atts)
	if atts != 0 {
		t.Errorf("expected attachment rows removed, got %d", atts)
	}
	if env.store.Count() != 0 {
		t.Errorf("expected stored objects removed, got %d", env.store.Count())
	}
	if n := env.countActivities(t, entity.ActionInvoiceDeleted); n != 1 {
		t.Errorf("expected 1 invoice_deleted activity, got %d", n)
	}
}

func TestDeleteInvoiceRequiresAdmin(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	w := testutil.DoRequest(env.router, "DELETE", "/api/v1/invoices/"+id, nil, testutil.ReviewerTestToken())
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for reviewer, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInvoiceScopedToOrganization(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	otherOrgToken := testutil.GenerateTestToken("outsider", "Outsider", "out@test.com", "other-org", "admin")
	w := testutil.DoRequest(env.router, "GET", "/api/v1/invoices/"+id, nil, otherOrgToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other org, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListInvoicesFilterAndPaginate(t *testing.T) {
	env := setupInvoiceTest(t)
	for i := 0; i < 3; i++ {
		testutil.SeedTestInvoice(t, env.db, fmt.Sprintf("seed-inv-%d", i), fmt.Sprintf("INV-%03d", i), "Acme", entity.InvoiceStatusPending, 100+float64(i))
	}
	testutil.SeedTestInvoice(t, env.db, "seed-inv-appr", "INV-900", "Globex", entity.InvoiceStatusApproved, 500)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/invoices?status=pending&page=1&page_size=2", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	pagination := data["pagination"].(map[string]interface{})

	if len(items) != 2 {
		t.Errorf("expected 2 items on page, got %d", len(items))
	}
	if pagination["total"].(float64) != 3 {
		t.Errorf("expected total 3 pending, got %v", pagination["total"])
	}
	if pagination["total_pages"].(float64) != 2 {
		t.Errorf("expected 2 pages, got %v", pagination["total_pages"])
	}

	// 搜索供应商
	w = testutil.DoRequest(env.router, "GET", "/api/v1/invoices?q=globex", nil, testutil.DefaultTestToken())
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["pagination"].(map[string]interface{})["total"].(float64) != 1 {
		t.Errorf("expected 1 search hit, got %v", data["pagination"])
	}
}

func TestExportInvoicesXLSX(t *testing.T) {
	env := setupInvoiceTest(t)
	testutil.SeedTestInvoice(t, env.db, "seed-exp-1", "INV-001", "Acme", entity.InvoiceStatusPending, 100)
	testutil.SeedTestInvoice(t, env.db, "seed-exp-2", "INV-002", "Globex", entity.InvoiceStatusPending, 250)
	testutil.SeedTestInvoice(t, env.db, "seed-exp-3", "INV-003", "Initech", entity.InvoiceStatusApproved, 500)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/invoices/export?status=pending", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("export failed: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("expected Content-Disposition header")
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("parse xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	// 表头 + 2条pending + 汇总行
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "发票编号" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	numbers := map[string]bool{rows[1][0]: true, rows[2][0]: true}
	if !numbers["INV-001"] || !numbers["INV-002"] {
		t.Errorf("expected pending invoices in export, got %v", numbers)
	}
	if rows[3][0] != "汇总" {
		t.Errorf("expected summary row, got %v", rows[3])
	}
}

func TestAddAttachmentsToExistingInvoice(t *testing.T) {
	env := setupInvoiceTest(t)
	id := env.createInvoice(t, nil)

	files := []testutil.MultipartFile{
		{Field: "files", FileName: "receipt.png", ContentType: "image/png", Content: []byte("png")},
	}
	w := testutil.DoMultipartRequest(env.router, "POST", "/api/v1/invoices/"+id+"/attachments", nil, files, testutil.DefaultTestToken())
	if w.Code != http.StatusCreated {
		t.Fatalf("add attachments failed: %d %s", w.Code, w.Body.String())
	}
	inv := testutil.ParseResponse(w)["data"].(map[string]interface{})["invoice"].(map[string]interface{})
	atts := inv["attachments"].([]interface{})
	if len(atts) != 1 {
		t.Errorf("expected 1 attachment, got %d", len(atts))
	}
	if n := env.countActivities(t, entity.ActionAttachmentAdded); n != 1 {
		t.Errorf("expected 1 attachment_added activity, got %d", n)
	}
}
