package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/manager"
)

// Handler mounts the Data Manager's inbound routes on a Gin engine.
type Handler struct {
	svc    *manager.Service
	selfID ids.HolderID
}

// NewHandler builds a transport Handler bound to svc.
func NewHandler(svc *manager.Service, selfID ids.HolderID) *Handler {
	return &Handler{svc: svc, selfID: selfID}
}

// Register mounts every named inbound event as a /dm/... route, plus
// health and metrics endpoints.
func (h *Handler) Register(r *gin.Engine) {
	dm := r.Group("/dm")
	dm.POST("/put", h.putRequest)
	dm.POST("/put-response", h.putResponse)
	dm.POST("/put-failure", h.putFailure)
	dm.POST("/get", h.getRequest)
	dm.POST("/get-response", h.getResponse)
	dm.POST("/get-cached-response", h.getCachedResponse)
	dm.POST("/challenge", h.challengeResponse)
	dm.POST("/delete", h.deleteRequest)
	dm.POST("/sync", h.sync)
	dm.POST("/holder-online", h.holderOnline)
	dm.POST("/holder-offline", h.holderOffline)
	dm.POST("/account-transfer", h.accountTransfer)

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type keyBody struct {
	DataID ids.DataID  `json:"data_id" binding:"required"`
	Tag    ids.TypeTag `json:"tag"`
}

func (b keyBody) key() ids.Key { return ids.Key{Data: b.DataID, Tag: b.Tag} }

// validate checks the declared sender against event's accepted roles,
// writing a 403 response and returning false on rejection.
func (h *Handler) validate(c *gin.Context, event manager.InboundEvent, sender ids.HolderID, role manager.SenderRole) bool {
	if err := h.svc.ValidateSender(event, sender, role); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) putRequest(c *gin.Context) {
	var body struct {
		keyBody
		Origin    ids.HolderID `json:"origin"`
		Content   []byte       `json:"content" binding:"required"`
		Candidate ids.HolderID `json:"candidate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventPutRequestFromOrigin, body.Origin, manager.RoleOrigin) {
		return
	}
	cost, err := h.svc.HandlePutRequestFromOrigin(c.Request.Context(), body.key(), body.Content, body.Candidate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cost": cost})
}

func (h *Handler) putResponse(c *gin.Context) {
	var body struct {
		keyBody
		Holder ids.HolderID `json:"holder" binding:"required"`
		Size   uint64       `json:"size"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventPutResponseFromStorageGroup, body.Holder, manager.RoleStorageGroupMember) {
		return
	}
	if err := h.svc.HandlePutResponseFromStorageGroup(c.Request.Context(), body.key(), body.Holder, body.Size); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) putFailure(c *gin.Context) {
	var body struct {
		keyBody
		Offender ids.HolderID `json:"offender" binding:"required"`
		Content  []byte       `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventPutFailureFromStorageGroup, body.Offender, manager.RoleStorageGroupMember) {
		return
	}
	if err := h.svc.HandlePutFailureFromStorageGroup(c.Request.Context(), body.key(), body.Offender, body.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getRequest(c *gin.Context) {
	var body struct {
		keyBody
		Requestor ids.HolderID `json:"requestor"`
		Auxiliary bool         `json:"auxiliary"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var (
		msgID ids.MessageID
		err   error
	)
	if body.Auxiliary {
		if !h.validate(c, manager.EventGetRequestFromAuxiliary, body.Requestor, manager.RoleAuxiliaryManager) {
			return
		}
		msgID, err = h.svc.HandleGetRequestFromAuxiliary(c.Request.Context(), body.key(), body.Requestor)
	} else {
		if !h.validate(c, manager.EventGetRequestFromClient, body.Requestor, manager.RoleOrigin) {
			return
		}
		msgID, err = h.svc.HandleGetRequestFromClient(c.Request.Context(), body.key(), body.Requestor)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_id": msgID})
}

func (h *Handler) getResponse(c *gin.Context) {
	var body struct {
		MessageID ids.MessageID `json:"message_id" binding:"required"`
		Holder    ids.HolderID  `json:"holder" binding:"required"`
		Content   []byte        `json:"content"`
		Scalar    []byte        `json:"scalar"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventGetResponseFromHolder, body.Holder, manager.RoleHolder) {
		return
	}
	h.svc.HandleGetResponseFromHolder(c.Request.Context(), body.MessageID, body.Holder, body.Content, body.Scalar)
	c.Status(http.StatusNoContent)
}

// challengeResponse shares the same aggregation path as getResponse:
// a challenged holder reports its scalar through the same
// GetResponseFromHolder event, distinguished by holder identity rather
// than route.
func (h *Handler) challengeResponse(c *gin.Context) {
	h.getResponse(c)
}

func (h *Handler) getCachedResponse(c *gin.Context) {
	var body struct {
		MessageID ids.MessageID `json:"message_id" binding:"required"`
		Content   []byte        `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventGetCachedResponseFromCache, ids.HolderID{}, manager.RoleCache) {
		return
	}
	used := h.svc.HandleGetCachedResponseFromCache(c.Request.Context(), body.MessageID, body.Content)
	c.JSON(http.StatusOK, gin.H{"accepted": used})
}

func (h *Handler) deleteRequest(c *gin.Context) {
	var body struct {
		keyBody
		Origin ids.HolderID `json:"origin"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventDeleteRequestFromOrigin, body.Origin, manager.RoleOrigin) {
		return
	}
	if err := h.svc.HandleDeleteRequestFromOrigin(c.Request.Context(), body.key()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sync(c *gin.Context) {
	var body struct {
		keyBody
		Kind     action.Kind    `json:"kind"`
		Payload  action.Payload `json:"payload"`
		Proposer ids.HolderID   `json:"proposer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventSynchroniseFromPeer, body.Proposer, manager.RolePeerDataManager) {
		return
	}
	if err := h.svc.HandleSynchroniseFromPeer(c.Request.Context(), body.Kind, body.key(), body.Payload, body.Proposer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) holderOnline(c *gin.Context) {
	var body struct {
		keyBody
		Holder ids.HolderID       `json:"holder" binding:"required"`
		Sender ids.HolderID       `json:"sender"`
		Role   manager.SenderRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventSetHolderOnline, body.Sender, body.Role) {
		return
	}
	if err := h.svc.HandleSetHolderOnline(c.Request.Context(), body.key(), body.Holder); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) holderOffline(c *gin.Context) {
	var body struct {
		keyBody
		Holder ids.HolderID       `json:"holder" binding:"required"`
		Sender ids.HolderID       `json:"sender"`
		Role   manager.SenderRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventSetHolderOffline, body.Sender, body.Role) {
		return
	}
	if err := h.svc.HandleSetHolderOffline(c.Request.Context(), body.key(), body.Holder); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) accountTransfer(c *gin.Context) {
	var body struct {
		From    ids.HolderID `json:"from" binding:"required"`
		Payload []byte       `json:"payload"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.validate(c, manager.EventAccountTransferFromPeer, body.From, manager.RolePeerDataManager) {
		return
	}
	if err := h.svc.HandleAccountTransferFromPeer(c.Request.Context(), body.From, body.Payload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node": h.selfID.String()})
}
