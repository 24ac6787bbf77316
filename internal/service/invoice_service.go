package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	invoiceCachePrefix = "invoices:org:"
	invoiceCacheTTL    = 30 * time.Second
)

// ValidationError 字段级校验错误，校验失败不发起任何存储调用
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// SubmitState 发票提交流程状态
type SubmitState string

const (
	StateIdle                 SubmitState = "idle"
	StateValidating           SubmitState = "validating"
	StateUploadingAttachments SubmitState = "uploading_attachments"
	StatePersistingRecord     SubmitState = "persisting_record"
	StateLoggingActivity      SubmitState = "logging_activity"
	StateDone                 SubmitState = "done"
	StateFailed               SubmitState = "failed"
)

// submission 一次提交的状态机
type submission struct {
	state  SubmitState
	logger *zap.Logger
}

func newSubmission(logger *zap.Logger) *submission {
	return &submission{state: StateIdle, logger: logger}
}

func (s *submission) to(next SubmitState) {
	s.logger.Debug("invoice submission transition",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)),
	)
	s.state = next
}

func (s *submission) fail() {
	s.to(StateFailed)
}

// InvoiceService 发票服务
type InvoiceService struct {
	repo          *repository.InvoiceRepository
	attachmentSvc *AttachmentService
	activitySvc   *ActivityService
	rdb           *redis.Client
	hub           *sse.Hub
	logger        *zap.Logger
}

func NewInvoiceService(
	repo *repository.InvoiceRepository,
	attachmentSvc *AttachmentService,
	activitySvc *ActivityService,
	rdb *redis.Client,
	hub *sse.Hub,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		repo:          repo,
		attachmentSvc: attachmentSvc,
		activitySvc:   activitySvc,
		rdb:           rdb,
		hub:           hub,
		logger:        logger,
	}
}

// CreateInvoiceRequest 创建发票请求
type CreateInvoiceRequest struct {
	InvoiceNumber string               `json:"invoice_number"`
	VendorName    string               `json:"vendor_name"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	InvoiceDate   string               `json:"invoice_date"` // 2006-01-02
	DueDate       *string              `json:"due_date"`
	Description   string               `json:"description"`
	Status        string               `json:"status"` // 仅允许draft覆盖默认的pending
	Notes         string               `json:"notes"`
	CustomFields  []entity.CustomField `json:"custom_fields"`
	Reviewers     []string             `json:"reviewers"`
}

// UpdateInvoiceRequest 更新发票请求，nil字段不改动（浅合并）
type UpdateInvoiceRequest struct {
	InvoiceNumber *string               `json:"invoice_number"`
	VendorName    *string               `json:"vendor_name"`
	Amount        *decimal.Decimal      `json:"amount"`
	Currency      *string               `json:"currency"`
	InvoiceDate   *string               `json:"invoice_date"`
	DueDate       *string               `json:"due_date"`
	Description   *string               `json:"description"`
	Notes         *string               `json:"notes"`
	CustomFields  *[]entity.CustomField `json:"custom_fields"`
	Reviewers     *[]string             `json:"reviewers"`
}

// UploadReport 提交流程中附件批次的结果摘要
type UploadReport struct {
	Uploaded int           `json:"uploaded"`
	Skipped  []SkippedFile `json:"skipped,omitempty"`
}

const maxNotesLength = 1000

// validateCreate 校验创建请求，返回字段错误表（空表示通过）
func validateCreate(req *CreateInvoiceRequest) map[string]string {
	errs := make(map[string]string)

	if req.InvoiceNumber == "" {
		errs["invoice_number"] = "Invoice number is required"
	}
	if req.VendorName == "" {
		errs["vendor_name"] = "Vendor name is required"
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		errs["amount"] = "Amount must be greater than zero"
	}

	var invoiceDate time.Time
	if req.InvoiceDate == "" {
		errs["invoice_date"] = "Invoice date is required"
	} else {
		t, err := time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			errs["invoice_date"] = "Invoice date must be in YYYY-MM-DD format"
		} else {
			invoiceDate = t
		}
	}

	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			errs["due_date"] = "Due date must be in YYYY-MM-DD format"
		} else if !invoiceDate.IsZero() && due.Before(invoiceDate) {
			errs["due_date"] = "Due date cannot be before invoice date"
		}
	}

	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		errs["notes"] = "Notes must be less than 1000 characters"
	}

	if req.Status != "" && req.Status != entity.InvoiceStatusDraft && req.Status != entity.InvoiceStatusPending {
		errs["status"] = "New invoices may only be draft or pending"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Create 提交新发票：校验 → 上传附件 → 落库 → 记日志。
// 附件上传后落库失败时删除本批对象，不留孤儿；
// 日志写入失败不回滚发票（日志错误被吞掉）。
func (s *InvoiceService) Create(ctx context.Context, orgID string, actor Actor, req *CreateInvoiceRequest, files []UploadFile, progress ProgressFunc) (*entity.Invoice, *UploadReport, error) {
	sub := newSubmission(s.logger)

	sub.to(StateValidating)
	if errs := validateCreate(req); errs != nil {
		sub.to(StateIdle)
		return nil, nil, &ValidationError{Fields: errs}
	}

	invoiceID := uuid.New().String()[:32]

	sub.to(StateUploadingAttachments)
	upload, err := s.attachmentSvc.UploadBatch(ctx, orgID, invoiceID, actor, files, progress)
	if err != nil {
		sub.fail()
		return nil, nil, err
	}

	sub.to(StatePersistingRecord)
	invoiceDate, _ := time.Parse("2006-01-02", req.InvoiceDate)
	inv := &entity.Invoice{
		ID:             invoiceID,
		OrganizationID: orgID,
		InvoiceNumber:  req.InvoiceNumber,
		VendorName:     req.VendorName,
		Amount:         req.Amount,
		Currency:       req.Currency,
		InvoiceDate:    invoiceDate,
		Description:    req.Description,
		Status:         entity.InvoiceStatusPending,
		Notes:          req.Notes,
		CustomFields:   req.CustomFields,
		Reviewers:      req.Reviewers,
		CreatedBy:      actor.ID,
		Attachments:    upload.Attachments,
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	if req.Status == entity.InvoiceStatusDraft {
		inv.Status = entity.InvoiceStatusDraft
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, _ := time.Parse("2006-01-02", *req.DueDate)
		inv.DueDate = &due
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		// 补偿：发票没写进去，附件对象也不保留
		s.attachmentSvc.Cleanup(ctx, upload.Attachments)
		sub.fail()
		return nil, nil, fmt.Errorf("create invoice: %w", err)
	}

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, inv.ID, "created")

	sub.to(StateLoggingActivity)
	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionInvoiceCreated,
		TargetType: "invoice",
		TargetID:   inv.ID,
		ToStatus:   inv.Status,
		Details: entity.JSONB{
			"invoice_number": inv.InvoiceNumber,
			"vendor_name":    inv.VendorName,
			"amount":         inv.Amount.String(),
			"attachments":    len(inv.Attachments),
		},
	})

	sub.to(StateDone)
	report := &UploadReport{Uploaded: len(upload.Attachments), Skipped: upload.Skipped}
	return inv, report, nil
}

// validateUpdate 校验更新请求；日期一致性按合并后的生效值检查
func validateUpdate(req *UpdateInvoiceRequest, current *entity.Invoice) map[string]string {
	errs := make(map[string]string)

	if req.InvoiceNumber != nil && *req.InvoiceNumber == "" {
		errs["invoice_number"] = "Invoice number is required"
	}
	if req.VendorName != nil && *req.VendorName == "" {
		errs["vendor_name"] = "Vendor name is required"
	}
	if req.Amount != nil && req.Amount.LessThanOrEqual(decimal.Zero) {
		errs["amount"] = "Amount must be greater than zero"
	}
	if req.Notes != nil && utf8.RuneCountInString(*req.Notes) > maxNotesLength {
		errs["notes"] = "Notes must be less than 1000 characters"
	}

	effectiveInvoiceDate := current.InvoiceDate
	if req.InvoiceDate != nil {
		t, err := time.Parse("2006-01-02", *req.InvoiceDate)
		if err != nil {
			errs["invoice_date"] = "Invoice date must be in YYYY-MM-DD format"
		} else {
			effectiveInvoiceDate = t
		}
	}

	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			errs["due_date"] = "Due date must be in YYYY-MM-DD format"
		} else if due.Before(effectiveInvoiceDate) {
			errs["due_date"] = "Due date cannot be before invoice date"
		}
	} else if req.DueDate == nil && current.DueDate != nil && req.InvoiceDate != nil {
		if current.DueDate.Before(effectiveInvoiceDate) {
			errs["invoice_date"] = "Invoice date cannot be after due date"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Update 编辑发票：浅合并字段，可附带新附件
func (s *InvoiceService) Update(ctx context.Context, orgID, id string, actor Actor, req *UpdateInvoiceRequest, files []UploadFile, progress ProgressFunc) (*entity.Invoice, *UploadReport, error) {
	sub := newSubmission(s.logger)

	current, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}

	sub.to(StateValidating)
	if errs := validateUpdate(req, current); errs != nil {
		sub.to(StateIdle)
		return nil, nil, &ValidationError{Fields: errs}
	}

	sub.to(StateUploadingAttachments)
	upload, err := s.attachmentSvc.UploadBatch(ctx, orgID, id, actor, files, progress)
	if err != nil {
		sub.fail()
		return nil, nil, err
	}

	sub.to(StatePersistingRecord)
	fields := make(map[string]interface{})
	changed := make([]string, 0, 8)
	setField := func(name string, value interface{}) {
		fields[name] = value
		changed = append(changed, name)
	}

	if req.InvoiceNumber != nil {
		setField("invoice_number", *req.InvoiceNumber)
	}
	if req.VendorName != nil {
		setField("vendor_name", *req.VendorName)
	}
	if req.Amount != nil {
		setField("amount", *req.Amount)
	}
	if req.Currency != nil {
		setField("currency", *req.Currency)
	}
	if req.InvoiceDate != nil {
		t, _ := time.Parse("2006-01-02", *req.InvoiceDate)
		setField("invoice_date", t)
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			setField("due_date", nil)
		} else {
			t, _ := time.Parse("2006-01-02", *req.DueDate)
			setField("due_date", t)
		}
	}
	if req.Description != nil {
		setField("description", *req.Description)
	}
	if req.Notes != nil {
		setField("notes", *req.Notes)
	}
	if req.CustomFields != nil {
		setField("custom_fields", entity.CustomFieldList(*req.CustomFields))
	}
	if req.Reviewers != nil {
		setField("reviewers", entity.StringList(*req.Reviewers))
	}

	if len(fields) > 0 {
		if err := s.repo.UpdateFields(ctx, orgID, id, fields); err != nil {
			s.attachmentSvc.Cleanup(ctx, upload.Attachments)
			sub.fail()
			return nil, nil, fmt.Errorf("update invoice: %w", err)
		}
	}
	if err := s.repo.AddAttachments(ctx, upload.Attachments); err != nil {
		s.attachmentSvc.Cleanup(ctx, upload.Attachments)
		sub.fail()
		return nil, nil, fmt.Errorf("save attachments: %w", err)
	}

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, id, "updated")

	sub.to(StateLoggingActivity)
	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionInvoiceUpdated,
		TargetType: "invoice",
		TargetID:   id,
		Details: entity.JSONB{
			"changed_fields":  changed,
			"new_attachments": len(upload.Attachments),
		},
	})

	sub.to(StateDone)
	updated, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	report := &UploadReport{Uploaded: len(upload.Attachments), Skipped: upload.Skipped}
	return updated, report, nil
}

// Get 获取发票详情
func (s *InvoiceService) Get(ctx context.Context, orgID, id string) (*entity.Invoice, error) {
	return s.repo.FindByID(ctx, orgID, id)
}

// UpdateStatus 变更发票状态并盖审计字段。同一状态重复调用是幂等的
// （终值不变），但每次调用都记一条操作日志。
func (s *InvoiceService) UpdateStatus(ctx context.Context, orgID, id string, actor Actor, status, note string) (*entity.Invoice, error) {
	if !entity.ValidInvoiceStatus(status) {
		return nil, &ValidationError{Fields: map[string]string{"status": fmt.Sprintf("Invalid status %q", status)}}
	}

	current, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fields := map[string]interface{}{
		"status":            status,
		"status_updated_by": actor.ID,
		"status_updated_at": now,
		"status_note":       note,
	}
	if err := s.repo.UpdateFields(ctx, orgID, id, fields); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, id, "status_changed")

	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionStatusChanged,
		TargetType: "invoice",
		TargetID:   id,
		FromStatus: current.Status,
		ToStatus:   status,
		Details:    entity.JSONB{"note": note},
	})

	return s.repo.FindByID(ctx, orgID, id)
}

// Delete 删除发票及附件记录。附件对象的删除是尽力而为：
// 对象存储报错只记日志，发票记录照常删除。
func (s *InvoiceService) Delete(ctx context.Context, orgID, id string, actor Actor) error {
	inv, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, orgID, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}

	s.attachmentSvc.Cleanup(ctx, inv.Attachments)

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, id, "deleted")

	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionInvoiceDeleted,
		TargetType: "invoice",
		TargetID:   id,
		FromStatus: inv.Status,
		Details: entity.JSONB{
			"invoice_number": inv.InvoiceNumber,
			"attachments":    len(inv.Attachments),
		},
	})

	return nil
}

// List 拉取组织全量发票后在内存中过滤/排序/分页
func (s *InvoiceService) List(ctx context.Context, orgID string, q Query) ([]entity.Invoice, int, error) {
	invoices, err := s.fetchAll(ctx, orgID)
	if err != nil {
		return nil, 0, err
	}
	items, total := ApplyQuery(invoices, q)
	return items, total, nil
}

// AddAttachments 给已有发票追加附件
func (s *InvoiceService) AddAttachments(ctx context.Context, orgID, id string, actor Actor, files []UploadFile, progress ProgressFunc) (*entity.Invoice, *UploadReport, error) {
	if _, err := s.repo.FindByID(ctx, orgID, id); err != nil {
		return nil, nil, err
	}

	upload, err := s.attachmentSvc.UploadBatch(ctx, orgID, id, actor, files, progress)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.AddAttachments(ctx, upload.Attachments); err != nil {
		s.attachmentSvc.Cleanup(ctx, upload.Attachments)
		return nil, nil, fmt.Errorf("save attachments: %w", err)
	}

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, id, "updated")

	for _, att := range upload.Attachments {
		s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
			Action:     entity.ActionAttachmentAdded,
			TargetType: "attachment",
			TargetID:   att.ID,
			Details: entity.JSONB{
				"invoice_id": id,
				"file_name":  att.FileName,
				"size":       att.Size,
			},
		})
	}

	updated, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	report := &UploadReport{Uploaded: len(upload.Attachments), Skipped: upload.Skipped}
	return updated, report, nil
}

// RemoveAttachment 删除附件记录并删除后端对象
func (s *InvoiceService) RemoveAttachment(ctx context.Context, orgID, invoiceID, attachmentID string, actor Actor) error {
	if _, err := s.repo.FindByID(ctx, orgID, invoiceID); err != nil {
		return err
	}
	att, err := s.repo.FindAttachment(ctx, invoiceID, attachmentID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteAttachment(ctx, invoiceID, attachmentID); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}

	s.attachmentSvc.Cleanup(ctx, []entity.Attachment{*att})

	s.invalidateCache(ctx, orgID)
	s.hub.PublishInvoiceEvent(orgID, invoiceID, "updated")

	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionAttachmentRemoved,
		TargetType: "attachment",
		TargetID:   attachmentID,
		Details: entity.JSONB{
			"invoice_id": invoiceID,
			"file_name":  att.FileName,
		},
	})

	return nil
}

// AttachmentDownloadURL 生成附件下载链接
func (s *InvoiceService) AttachmentDownloadURL(ctx context.Context, orgID, invoiceID, attachmentID string) (string, error) {
	if _, err := s.repo.FindByID(ctx, orgID, invoiceID); err != nil {
		return "", err
	}
	att, err := s.repo.FindAttachment(ctx, invoiceID, attachmentID)
	if err != nil {
		return "", err
	}
	return s.attachmentSvc.DownloadURL(ctx, att)
}

// fetchAll 组织全量发票，短TTL的redis缓存，写操作时失效
func (s *InvoiceService) fetchAll(ctx context.Context, orgID string) ([]entity.Invoice, error) {
	key := invoiceCachePrefix + orgID

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var invoices []entity.Invoice
			if err := json.Unmarshal([]byte(cached), &invoices); err == nil {
				return invoices, nil
			}
		}
	}

	invoices, err := s.repo.FindAllByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	if s.rdb != nil {
		if data, err := json.Marshal(invoices); err == nil {
			s.rdb.Set(ctx, key, data, invoiceCacheTTL)
		}
	}

	return invoices, nil
}

func (s *InvoiceService) invalidateCache(ctx context.Context, orgID string) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, invoiceCachePrefix+orgID)
}
