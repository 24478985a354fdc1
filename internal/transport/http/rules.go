package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/middleware"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/service"
)

// RulesHandler 处理垃圾邮件规则列表的 HTTP 请求
type RulesHandler struct {
	rules   *service.RuleService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewRulesHandler 创建规则处理器。metrics 可为 nil。
func NewRulesHandler(rules *service.RuleService, metrics *monitoring.Metrics, log *zap.Logger) *RulesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RulesHandler{rules: rules, metrics: metrics, log: log}
}

func (h *RulesHandler) countRuleOp(action, list, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RuleOperationsTotal.WithLabelValues(action, list, outcome).Inc()
}

type ruleRequest struct {
	Mailbox  string `json:"mailbox" binding:"required"`
	ListType string `json:"listType" binding:"required"`
	Entry    string `json:"entry"`
}

type bulkRequest struct {
	Mailbox    string `json:"mailbox" binding:"required"`
	Operations []struct {
		Action   string `json:"action"`
		ListType string `json:"listType"`
		Entry    string `json:"entry"`
	} `json:"operations" binding:"required"`
}

type ruleSetResponse struct {
	Whitelist   []string `json:"whitelist"`
	Blacklist   []string `json:"blacklist"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
}

type addedRuleResponse struct {
	Entry   string `json:"entry"`
	Kind    string `json:"kind"`
	AddedAt string `json:"addedAt"`
}

type bulkItemResponse struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Entry  string `json:"entry"`
}

type bulkErrorResponse struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Entry  string `json:"entry"`
	Error  string `json:"error"`
}

type bulkResponse struct {
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []bulkItemResponse  `json:"results"`
	Errors    []bulkErrorResponse `json:"errors"`
}

// List 查询邮箱的完整规则集
// GET /spam-rules?mailbox=...
func (h *RulesHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthFailed)
		return
	}

	mailbox := c.Query("mailbox")
	if mailbox == "" {
		BadRequest(c, MsgInvalidRequest, []string{"mailbox query parameter is required"})
		return
	}

	rules, err := h.rules.List(c.Request.Context(), principal, mailbox)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, mailbox)
		return
	}

	resp := ruleSetResponse{
		Whitelist: rules.Whitelist,
		Blacklist: rules.Blacklist,
	}
	if !rules.LastUpdated.IsZero() {
		resp.LastUpdated = rules.LastUpdated.Format(time.RFC3339)
	}
	Success(c, "查询成功", resp)
}

// Add 添加规则
// POST /spam-rules
func (h *RulesHandler) Add(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthFailed)
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, nil)
		return
	}

	kind, err := domain.ParseListKind(req.ListType)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	entry, err := h.rules.Add(c.Request.Context(), principal, req.Mailbox, kind, req.Entry)
	if err != nil {
		h.countRuleOp("add", string(kind), "error")
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	h.countRuleOp("add", string(kind), "ok")
	Created(c, "规则已添加", addedRuleResponse{
		Entry:   entry.Text,
		Kind:    string(entry.Kind),
		AddedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Remove 删除规则
// DELETE /spam-rules
func (h *RulesHandler) Remove(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthFailed)
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, nil)
		return
	}

	kind, err := domain.ParseListKind(req.ListType)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	if err := h.rules.Remove(c.Request.Context(), principal, req.Mailbox, kind, req.Entry); err != nil {
		h.countRuleOp("remove", string(kind), "error")
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	h.countRuleOp("remove", string(kind), "ok")
	Success(c, "规则已删除", gin.H{"success": true})
}

// Bulk 批量执行规则操作。单条失败不影响其余条目。
// POST /spam-rules/bulk
func (h *RulesHandler) Bulk(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthFailed)
		return
	}

	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, nil)
		return
	}
	if len(req.Operations) == 0 {
		BadRequest(c, MsgInvalidRequest, []string{"operations must not be empty"})
		return
	}

	ops := make([]service.BulkOperation, 0, len(req.Operations))
	for _, op := range req.Operations {
		ops = append(ops, service.BulkOperation{
			Action: service.BulkAction(op.Action),
			Kind:   domain.ListKind(op.ListType),
			Entry:  op.Entry,
		})
	}

	report, err := h.rules.Bulk(c.Request.Context(), principal, req.Mailbox, ops)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	resp := bulkResponse{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Results:   make([]bulkItemResponse, 0, report.Succeeded),
		Errors:    make([]bulkErrorResponse, 0, report.Failed),
	}
	for _, item := range report.Results {
		// 指标标签取自客户端输入，未识别的值统一归并避免标签爆炸。
		list := string(item.Kind)
		if item.Kind != domain.ListKindWhitelist && item.Kind != domain.ListKindBlacklist {
			list = "invalid"
		}
		action := string(item.Action)
		if item.Action != service.BulkActionAdd && item.Action != service.BulkActionRemove {
			action = "invalid"
		}
		if item.Err != nil {
			h.countRuleOp(action, list, "error")
			resp.Errors = append(resp.Errors, bulkErrorResponse{
				Index:  item.Index,
				Action: string(item.Action),
				Entry:  item.Entry,
				Error:  item.Err.Error(),
			})
			continue
		}
		h.countRuleOp(action, list, "ok")
		resp.Results = append(resp.Results, bulkItemResponse{
			Index:  item.Index,
			Action: string(item.Action),
			Entry:  item.Entry,
		})
	}

	Success(c, "批量操作完成", resp)
}
