package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rwax/swapd/internal/core/application"
	"github.com/rwax/swapd/internal/core/domain"
)

type handler struct {
	app   *application.Service
	stats *application.StatisticsView
}

type swapResponse struct {
	Id           string  `json:"id"`
	FromAsset    string  `json:"fromAsset"`
	ToAsset      string  `json:"toAsset"`
	Amount       float64 `json:"amount"`
	ExchangeRate float64 `json:"exchangeRate,omitempty"`
	AssetType    string  `json:"assetType,omitempty"`
	Creator      string  `json:"creator"`
	Counterparty string  `json:"counterparty,omitempty"`
	Status       string  `json:"status"`
	Condition    string  `json:"condition"`
	EscrowOwner  string  `json:"escrowOwner,omitempty"`
	EscrowSeq    uint32  `json:"escrowSequence,omitempty"`
	FundingTx    string  `json:"fundingTx,omitempty"`
	RedeemTx     string  `json:"redeemTx,omitempty"`
	ExpiresAt    int64   `json:"expiresAt"`
	CreatedAt    int64   `json:"createdAt"`
	UpdatedAt    int64   `json:"updatedAt"`
	CompletedAt  int64   `json:"completedAt,omitempty"`
	CancelledAt  int64   `json:"cancelledAt,omitempty"`
	ExpiredAt    int64   `json:"expiredAt,omitempty"`
}

// toResponse maps the entity onto the wire shape. The redemption secret has
// no field here at all.
func toResponse(s domain.Swap) swapResponse {
	return swapResponse{
		Id:           s.Id,
		FromAsset:    s.FromAsset,
		ToAsset:      s.ToAsset,
		Amount:       s.Amount,
		ExchangeRate: s.ExchangeRate,
		AssetType:    s.AssetType,
		Creator:      s.Creator,
		Counterparty: s.Counterparty,
		Status:       string(s.Status),
		Condition:    s.Condition,
		EscrowOwner:  s.Escrow.Owner,
		EscrowSeq:    s.Escrow.Sequence,
		FundingTx:    s.FundingTx,
		RedeemTx:     s.RedeemTx,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		CompletedAt:  s.CompletedAt,
		CancelledAt:  s.CancelledAt,
		ExpiredAt:    s.ExpiredAt,
	}
}

func (h *handler) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "swapd",
		"version": h.app.BuildInfo.Version,
		"commit":  h.app.BuildInfo.Commit,
		"date":    h.app.BuildInfo.Date,
	})
}

type openRequest struct {
	Creator      string  `json:"creator" binding:"required"`
	FromAsset    string  `json:"fromAsset" binding:"required"`
	ToAsset      string  `json:"toAsset" binding:"required"`
	Amount       float64 `json:"amount" binding:"required"`
	ExchangeRate float64 `json:"exchangeRate"`
	AssetType    string  `json:"assetType"`
	ExpiresAt    int64   `json:"expiresAt" binding:"required"`
}

func (h *handler) openSwap(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	swap, err := h.app.Open(c, application.OpenRequest{
		Creator:      req.Creator,
		FromAsset:    req.FromAsset,
		ToAsset:      req.ToAsset,
		Amount:       req.Amount,
		ExchangeRate: req.ExchangeRate,
		AssetType:    req.AssetType,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(*swap))
}

func (h *handler) getSwap(c *gin.Context) {
	swap, err := h.app.Get(c, c.Param("id"))
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*swap))
}

func (h *handler) listSwaps(c *gin.Context) {
	filter := domain.Filter{
		FromAsset: c.Query("fromAsset"),
		ToAsset:   c.Query("toAsset"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.Status(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	filter.MinAmount, _ = strconv.ParseFloat(c.Query("minAmount"), 64)
	filter.MaxAmount, _ = strconv.ParseFloat(c.Query("maxAmount"), 64)

	swaps, err := h.app.List(c, callerKey(c), filter)
	if err != nil {
		abortDomainError(c, err)
		return
	}

	out := make([]swapResponse, 0, len(swaps))
	for _, s := range swaps {
		out = append(out, toResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"swaps": out})
}

type acceptRequest struct {
	Counterparty string `json:"counterparty" binding:"required"`
}

func (h *handler) acceptSwap(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	swap, err := h.app.Accept(c, c.Param("id"), req.Counterparty)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*swap))
}

type completeRequest struct {
	Finisher string `json:"finisher" binding:"required"`
}

func (h *handler) completeSwap(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	swap, err := h.app.Complete(c, c.Param("id"), req.Finisher)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*swap))
}

type cancelRequest struct {
	Requester string `json:"requester" binding:"required"`
}

func (h *handler) cancelSwap(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	swap, err := h.app.Cancel(c, c.Param("id"), req.Requester)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*swap))
}

func (h *handler) aggregate(c *gin.Context) {
	agg, err := h.stats.Aggregate(c)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (h *handler) depth(c *gin.Context) {
	base, quote := c.Query("base"), c.Query("quote")
	if base == "" || quote == "" {
		abortWithError(c, http.StatusBadRequest, errors.New("base and quote are required"))
		return
	}
	levels, _ := strconv.Atoi(c.Query("depth"))

	book, err := h.stats.BuildDepth(c, base, quote, levels)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// callerKey identifies the requester for read rate limiting. Mutating calls
// carry an explicit account in the body; reads fall back to the client
// address.
func callerKey(c *gin.Context) string {
	if account := c.GetHeader("X-Account"); account != "" {
		return account
	}
	return c.ClientIP()
}

func abortDomainError(c *gin.Context, err error) {
	abortWithError(c, statusOf(err), err)
}

func abortWithError(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// statusOf maps the domain error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConditionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNotYetExpired),
		errors.Is(err, domain.ErrAlreadyFinished),
		errors.Is(err, domain.ErrAlreadyExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLedgerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrLedgerRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
