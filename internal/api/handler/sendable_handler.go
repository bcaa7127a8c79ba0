package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/sendables/internal/api/middleware"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/service"
	"github.com/d60-Lab/sendables/pkg/response"
)

// SendableHandler serves the generic per-entity-type endpoints. Each route is
// mounted once per registered entity type with its resolved configuration.
type SendableHandler struct {
	send    *service.SendService
	mark    *service.MarkService
	retract *service.RetractService
	list    *service.ListService
}

func NewSendableHandler(send *service.SendService, mark *service.MarkService, retract *service.RetractService, list *service.ListService) *SendableHandler {
	return &SendableHandler{send: send, mark: mark, retract: retract, list: list}
}

// requireAction resolves the caller's identity and checks the entity's
// permission requirement for the action.
func requireAction(c *gin.Context, cfg *registry.Config, action registry.Action) (*service.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "missing bearer token")
		return nil, false
	}
	if cfg.Permissions[action] == registry.Admin && !identity.IsAdmin {
		response.Forbidden(c, "admin required")
		return nil, false
	}
	return identity, true
}

func writeServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var notFoundErr *service.NotFoundError
	var forbiddenErr *service.ForbiddenError
	switch {
	case errors.As(err, &validationErr):
		response.ValidationError(c, validationErr.Field, validationErr.Message)
	case errors.As(err, &notFoundErr):
		response.NotFound(c, notFoundErr.Error())
	case errors.As(err, &forbiddenErr):
		response.Forbidden(c, forbiddenErr.Error())
	default:
		response.InternalError(c, err)
	}
}

// parseIDList reads a list of uint keys from a decoded JSON value.
func parseIDList(value any) ([]uint, bool) {
	raw, ok := value.([]any)
	if !ok {
		return nil, false
	}
	ids := make([]uint, 0, len(raw))
	for _, item := range raw {
		number, ok := item.(float64)
		if !ok || number < 0 || number != float64(uint(number)) {
			return nil, false
		}
		ids = append(ids, uint(number))
	}
	return ids, true
}

// idListFromBody extracts the named key list from a request body, enforcing
// presence and non-emptiness.
func idListFromBody(c *gin.Context, field string) ([]uint, bool) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	value, ok := body[field]
	if !ok {
		response.ValidationError(c, field, "This field is required.")
		return nil, false
	}
	ids, ok := parseIDList(value)
	if !ok {
		response.ValidationError(c, field, "A valid list of keys is required.")
		return nil, false
	}
	if len(ids) == 0 {
		response.ValidationError(c, field, "This list may not be empty.")
		return nil, false
	}
	return ids, true
}

func pageFromQuery(c *gin.Context) service.Page {
	number, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return service.Page{Number: number, Size: size}
}

func receivedJSON(cfg *registry.Config, item *model.ReceivedItem) gin.H {
	out := gin.H{
		cfg.KeyName: item.Ref.ID,
		"is_read":   item.Ref.IsRead,
		"content":   item.Sendable.Content,
		"sent_on":   item.Sendable.SentOn,
	}
	if cfg.HasSender {
		if item.Sender != nil {
			out["sender"] = item.Sender
		} else {
			out["sender"] = nil
		}
	}
	return out
}

func sentJSON(cfg *registry.Config, item *model.SentItem) gin.H {
	recipients := item.Recipients
	if recipients == nil {
		recipients = []model.Participant{}
	}
	return gin.H{
		cfg.KeyName:  item.Sendable.ID,
		"content":    item.Sendable.Content,
		"sent_on":    item.Sendable.SentOn,
		"recipients": recipients,
	}
}

// Send handles POST /send.
func (h *SendableHandler) Send(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionSend)
		if !ok {
			return
		}
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		recipientsField := cfg.RecipientsField()
		value, present := body[recipientsField]
		if !present {
			response.ValidationError(c, recipientsField, "This field is required.")
			return
		}
		recipientIDs, ok := parseIDList(value)
		if !ok {
			response.ValidationError(c, recipientsField, "A valid list of keys is required.")
			return
		}
		if len(recipientIDs) == 0 {
			response.ValidationError(c, recipientsField, "This list may not be empty.")
			return
		}

		fields := make(map[string]any, len(cfg.SentFields))
		for _, name := range cfg.SentFields {
			if v, ok := body[name]; ok {
				fields[name] = v
			}
		}

		result, err := h.send.Send(c.Request.Context(), cfg, identity.UserID, fields, recipientIDs)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		out := gin.H{recipientsField: result.RecipientIDs}
		for name, v := range result.Fields {
			out[name] = v
		}
		response.Created(c, out)
	}
}

// MarkRead handles PATCH /mark-read, MarkUnread PATCH /mark-unread.
func (h *SendableHandler) MarkRead(cfg *registry.Config) gin.HandlerFunc {
	return h.markHandler(cfg, registry.ActionMarkRead, true)
}

func (h *SendableHandler) MarkUnread(cfg *registry.Config) gin.HandlerFunc {
	return h.markHandler(cfg, registry.ActionMarkUnread, false)
}

func (h *SendableHandler) markHandler(cfg *registry.Config, action registry.Action, isRead bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, action)
		if !ok {
			return
		}
		ids, ok := idListFromBody(c, cfg.ItemsField())
		if !ok {
			return
		}
		if err := h.mark.SetRead(c.Request.Context(), cfg, identity.UserID, ids, isRead); err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, nil)
	}
}

// Delete handles DELETE /delete (recipient side).
func (h *SendableHandler) Delete(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionDelete)
		if !ok {
			return
		}
		ids, ok := idListFromBody(c, cfg.ItemsField())
		if !ok {
			return
		}
		if err := h.retract.DeleteReceived(c.Request.Context(), cfg, identity.UserID, ids); err != nil {
			writeServiceError(c, err)
			return
		}
		response.NoContent(c)
	}
}

// DeleteSent handles DELETE /delete-sent (sender side).
func (h *SendableHandler) DeleteSent(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionDeleteSent)
		if !ok {
			return
		}
		ids, ok := idListFromBody(c, cfg.ItemsField())
		if !ok {
			return
		}
		if err := h.retract.DeleteSent(c.Request.Context(), cfg, identity.UserID, ids); err != nil {
			writeServiceError(c, err)
			return
		}
		response.NoContent(c)
	}
}

// List handles GET / and its read-state variants.
func (h *SendableHandler) List(cfg *registry.Config, action registry.Action, isRead *bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, action)
		if !ok {
			return
		}
		items, err := h.list.ListReceived(c.Request.Context(), cfg, identity.UserID, isRead, c.Request.URL.Query(), pageFromQuery(c))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		out := make([]gin.H, len(items))
		for i := range items {
			out[i] = receivedJSON(cfg, &items[i])
		}
		response.Success(c, out)
	}
}

// ListSent handles GET /sent.
func (h *SendableHandler) ListSent(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionListSent)
		if !ok {
			return
		}
		items, err := h.list.ListSent(c.Request.Context(), cfg, identity.UserID, c.Request.URL.Query(), pageFromQuery(c))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		out := make([]gin.H, len(items))
		for i := range items {
			out[i] = sentJSON(cfg, &items[i])
		}
		response.Success(c, out)
	}
}

// Detail handles GET /:id.
func (h *SendableHandler) Detail(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionDetail)
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param(cfg.KeyName), 10, 64)
		if err != nil {
			response.NotFound(c, "not found")
			return
		}
		item, err := h.list.DetailReceived(c.Request.Context(), cfg, identity.UserID, uint(id))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, receivedJSON(cfg, item))
	}
}

// DetailSent handles GET /sent/:id.
func (h *SendableHandler) DetailSent(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionDetailSent)
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param(cfg.KeyName), 10, 64)
		if err != nil {
			response.NotFound(c, "not found")
			return
		}
		item, err := h.list.DetailSent(c.Request.Context(), cfg, identity.UserID, uint(id))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, sentJSON(cfg, item))
	}
}

// UnreadCount handles GET /unread-count.
func (h *SendableHandler) UnreadCount(cfg *registry.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := requireAction(c, cfg, registry.ActionUnreadCount)
		if !ok {
			return
		}
		count, err := h.list.UnreadCount(c.Request.Context(), cfg, identity.UserID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, gin.H{"unread": count})
	}
}
