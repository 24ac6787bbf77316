package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InvoiceHandler 发票处理器
type InvoiceHandler struct {
	svc    *service.InvoiceService
	logger *zap.Logger
}

// NewInvoiceHandler 创建发票处理器
func NewInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, logger: logger}
}

// List 获取发票列表
// GET /api/v1/invoices?status=&q=&sort_by=&sort_order=&page=&page_size=
func (h *InvoiceHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	q := service.Query{
		Status:    c.Query("status"),
		Search:    c.Query("q"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Page:      page,
		PageSize:  pageSize,
	}

	items, total, err := h.svc.List(c.Request.Context(), GetOrgID(c), q)
	if err != nil {
		InternalError(c, "获取发票列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items:      items,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// Export 按当前过滤条件导出发票列表为xlsx
// GET /api/v1/invoices/export?status=&q=&sort_by=&sort_order=
func (h *InvoiceHandler) Export(c *gin.Context) {
	q := service.Query{
		Status:    c.Query("status"),
		Search:    c.Query("q"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	f, filename, err := h.svc.ExportXLSX(c.Request.Context(), GetOrgID(c), q)
	if err != nil {
		InternalError(c, "导出发票失败: "+err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// Get 获取发票详情
func (h *InvoiceHandler) Get(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), GetOrgID(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, inv)
}

// Create 提交新发票
// POST /api/v1/invoices
// JSON请求直接绑定；multipart请求从"data"字段取JSON，"files"取附件
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req service.CreateInvoiceRequest
	files, closers, ok := h.parseSubmission(c, &req)
	if !ok {
		return
	}
	defer closeAll(closers)

	inv, report, err := h.svc.Create(c.Request.Context(), GetOrgID(c), GetActor(c), &req, files, h.progressLogger(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	Created(c, gin.H{"invoice": inv, "upload": report})
}

// Update 编辑发票
// PUT /api/v1/invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	var req service.UpdateInvoiceRequest
	files, closers, ok := h.parseSubmission(c, &req)
	if !ok {
		return
	}
	defer closeAll(closers)

	inv, report, err := h.svc.Update(c.Request.Context(), GetOrgID(c), c.Param("id"), GetActor(c), &req, files, h.progressLogger(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	Success(c, gin.H{"invoice": inv, "upload": report})
}

// UpdateStatusRequest 状态变更请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// UpdateStatus 变更发票状态
// PUT /api/v1/invoices/:id/status
func (h *InvoiceHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.svc.UpdateStatus(c.Request.Context(), GetOrgID(c), c.Param("id"), GetActor(c), req.Status, req.Note)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, inv)
}

// Delete 删除发票（仅管理员）
func (h *InvoiceHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), GetOrgID(c), c.Param("id"), GetActor(c)); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"deleted": true})
}

// AddAttachments 给发票追加附件
// POST /api/v1/invoices/:id/attachments
func (h *InvoiceHandler) AddAttachments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		BadRequest(c, "没有上传文件")
		return
	}

	files, closers, err := openUploads(headers)
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return
	}
	defer closeAll(closers)

	inv, report, err := h.svc.AddAttachments(c.Request.Context(), GetOrgID(c), c.Param("id"), GetActor(c), files, h.progressLogger(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	Created(c, gin.H{"invoice": inv, "upload": report})
}

// RemoveAttachment 删除附件
// DELETE /api/v1/invoices/:id/attachments/:attachmentId
func (h *InvoiceHandler) RemoveAttachment(c *gin.Context) {
	err := h.svc.RemoveAttachment(c.Request.Context(), GetOrgID(c), c.Param("id"), c.Param("attachmentId"), GetActor(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"deleted": true})
}

// DownloadAttachment 跳转到附件的预签名下载地址
// GET /api/v1/invoices/:id/attachments/:attachmentId/download
func (h *InvoiceHandler) DownloadAttachment(c *gin.Context) {
	url, err := h.svc.AttachmentDownloadURL(c.Request.Context(), GetOrgID(c), c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// parseSubmission 解析发票提交请求。multipart时JSON在"data"字段，
// 附件在"files"；纯JSON时直接绑定，无附件。
func (h *InvoiceHandler) parseSubmission(c *gin.Context, req interface{}) ([]service.UploadFile, []multipart.File, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(req); err != nil {
			BadRequest(c, "参数错误: "+err.Error())
			return nil, nil, false
		}
		return nil, nil, true
	}

	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "无法解析表单: "+err.Error())
		return nil, nil, false
	}

	data := c.PostForm("data")
	if data == "" {
		BadRequest(c, "缺少data字段")
		return nil, nil, false
	}
	if err := json.Unmarshal([]byte(data), req); err != nil {
		BadRequest(c, "data字段不是合法JSON: "+err.Error())
		return nil, nil, false
	}

	headers := form.File["files"]
	files, closers, err := openUploads(headers)
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return nil, nil, false
	}
	return files, closers, true
}

// openUploads 打开multipart文件，返回待上传文件和需要关闭的句柄
func openUploads(headers []*multipart.FileHeader) ([]service.UploadFile, []multipart.File, error) {
	var files []service.UploadFile
	var closers []multipart.File

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, f)
		files = append(files, service.UploadFile{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}
	return files, closers, nil
}

func closeAll(closers []multipart.File) {
	for _, f := range closers {
		f.Close()
	}
}

// progressLogger 上传进度回调，记debug日志
func (h *InvoiceHandler) progressLogger(c *gin.Context) service.ProgressFunc {
	requestID := c.GetString("request_id")
	return func(p service.Progress) {
		h.logger.Debug("attachment upload progress",
			zap.String("request_id", requestID),
			zap.Int("file_index", p.FileIndex),
			zap.String("file_name", p.FileName),
			zap.Int("file_percent", p.FilePercent),
			zap.Int("total_percent", p.TotalPercent),
		)
	}
}
