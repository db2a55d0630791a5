package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sendhelp/internal/engine"
	"sendhelp/internal/models"
)

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) register(c *gin.Context) {
	var req engine.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.Engine.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) getMember(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.Engine.Member(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) eligibility(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := h.Engine.Status(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) advance(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	m, err := h.Engine.Advance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) listObligations(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	var (
		out []models.Obligation
		err error
	)
	switch c.DefaultQuery("view", "sent") {
	case "sent":
		out, err = h.Engine.SentBy(c.Request.Context(), id, limit)
	case "received":
		out, err = h.Engine.ReceivedBy(c.Request.Context(), id, limit)
	default:
		badRequest(c, "view must be sent or received")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) assign(c *gin.Context) {
	ob, err := h.Engine.Assign(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ob)
}

func (h *Handler) assignUnblock(c *gin.Context) {
	ob, err := h.Engine.AssignUnblockPayment(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ob)
}

func (h *Handler) getObligation(c *gin.Context) {
	ob, err := h.Engine.Obligation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if me := caller(c); ob.SenderID != me && ob.ReceiverID != me {
		h.fail(c, engine.ErrNotParticipant)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *Handler) submitProof(c *gin.Context) {
	var req engine.Proof
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ob, err := h.Engine.SubmitProof(c.Request.Context(), c.Param("id"), caller(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *Handler) confirm(c *gin.Context) {
	ob, err := h.Engine.Confirm(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *Handler) dispute(c *gin.Context) {
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ob, err := h.Engine.Dispute(c.Request.Context(), c.Param("id"), caller(c), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *Handler) setFlags(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req engine.FlagUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.Engine.SetFlags(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) cancel(c *gin.Context) {
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ob, err := h.Engine.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *Handler) forceConfirm(c *gin.Context) {
	ob, err := h.Engine.ForceConfirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}
