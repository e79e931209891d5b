// Package httpapi is the HTTP ingress for the bridge: thin gin handlers
// that validate, mint a correlation key, and hand everything to the
// Bridge. The game server polls /search with the returned key to learn the
// outcome of an operation.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lootmarkets/ledgerbridge"
)

// Server exposes the bridge over HTTP.
type Server struct {
	bridge *ledgerbridge.Bridge
	logger *slog.Logger
	token  string
	engine *gin.Engine
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithAuthToken guards mutation routes with a shared secret.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) {
		s.token = token
	}
}

// WithPrometheus mounts /metrics for the given gatherer.
func WithPrometheus(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func NewServer(bridge *ledgerbridge.Bridge, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		bridge: bridge,
		logger: logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Router returns the underlying handler for http.Server.
func (s *Server) Router() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/", s.index)
	s.engine.GET("/search/:key/:address/:operation", s.search)
	s.engine.GET("/wallet/:address", s.balance)
	s.engine.GET("/inventory/:address", s.inventory)
	s.engine.GET("/market/owner", s.owner)
	s.engine.GET("/market/offers", s.offers)
	s.engine.GET("/market/offers/:offerId", s.offer)

	authed := s.engine.Group("/", requireToken(s.token))
	authed.POST("/inventory/give", s.giveItems)
	authed.POST("/inventory/remove", s.removeItem)
	authed.POST("/inventory/transfer", s.transferItem)
	authed.POST("/market/put", s.putOffer)
	authed.POST("/market/buy", s.buyOffer)
	authed.POST("/market/cancel", s.cancelOffer)
	authed.POST("/wallet/claim_gas", s.claimGas)
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "ledgerbridge",
		"marketplace": s.bridge.Marketplace(),
		"queueDepth":  s.bridge.QueueDepth(),
	})
}

// --- reads ---

func (s *Server) search(c *gin.Context) {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed correlation key"})
		return
	}
	op := ledgerbridge.OperationName(c.Param("operation"))
	if !op.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation"})
		return
	}
	status, err := s.bridge.Search(c.Request.Context(), key, c.Param("address"), op)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) balance(c *gin.Context) {
	amount, err := s.bridge.Balance(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "balance": amount})
}

func (s *Server) inventory(c *gin.Context) {
	items, err := s.bridge.Inventory(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "items": items})
}

func (s *Server) owner(c *gin.Context) {
	address, err := s.bridge.Owner(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marketplace": s.bridge.Marketplace(), "owner": address})
}

func (s *Server) offers(c *gin.Context) {
	ids, updatedAt, err := s.bridge.Offers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": ids, "updatedAt": updatedAt.Format(time.RFC3339)})
}

func (s *Server) offer(c *gin.Context) {
	offer, err := s.bridge.Offer(c.Request.Context(), c.Param("offerId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// --- writes ---

type giveItemsRequest struct {
	Address string   `json:"address"`
	ItemIDs []uint64 `json:"itemIds"`
}

func (s *Server) giveItems(c *gin.Context) {
	var req giveItemsRequest
	if !s.decode(c, validateGiveItems, &req) {
		return
	}
	args := make([]any, 0, len(req.ItemIDs)+1)
	args = append(args, req.Address)
	for _, id := range req.ItemIDs {
		args = append(args, id)
	}
	s.enqueue(c, ledgerbridge.OpGiveItems, args...)
}

type removeItemRequest struct {
	Address string `json:"address"`
	ItemID  uint64 `json:"itemId"`
}

func (s *Server) removeItem(c *gin.Context) {
	var req removeItemRequest
	if !s.decode(c, validateRemoveItem, &req) {
		return
	}
	s.enqueue(c, ledgerbridge.OpRemoveItem, req.Address, req.ItemID)
}

type transferItemRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	ItemID uint64 `json:"itemId"`
}

func (s *Server) transferItem(c *gin.Context) {
	var req transferItemRequest
	if !s.decode(c, validateTransferItem, &req) {
		return
	}
	s.enqueue(c, ledgerbridge.OpTransferItem, req.From, req.To, req.ItemID)
}

type putOfferRequest struct {
	Address string `json:"address"`
	ItemID  uint64 `json:"itemId"`
	Price   uint64 `json:"price"`
}

func (s *Server) putOffer(c *gin.Context) {
	var req putOfferRequest
	if !s.decode(c, validatePutOffer, &req) {
		return
	}
	s.enqueue(c, ledgerbridge.OpPutOffer, req.Address, req.ItemID, req.Price)
}

type offerActionRequest struct {
	Address string `json:"address"`
	OfferID string `json:"offerId"`
}

// buyOffer reserves the offer via a dry run so it disappears from offer
// lists immediately, then enqueues the write that settles it.
func (s *Server) buyOffer(c *gin.Context) {
	var req offerActionRequest
	if !s.decode(c, validateOfferAction, &req) {
		return
	}
	if err := s.bridge.ReserveBuy(c.Request.Context(), req.Address, req.OfferID); err != nil {
		s.fail(c, err)
		return
	}
	s.enqueue(c, ledgerbridge.OpBuyOffer, req.Address, req.OfferID)
}

func (s *Server) cancelOffer(c *gin.Context) {
	var req offerActionRequest
	if !s.decode(c, validateOfferAction, &req) {
		return
	}
	if err := s.bridge.ReserveCancel(c.Request.Context(), req.Address, req.OfferID); err != nil {
		s.fail(c, err)
		return
	}
	s.enqueue(c, ledgerbridge.OpCancelOffer, req.Address, req.OfferID)
}

func (s *Server) claimGas(c *gin.Context) {
	if err := s.bridge.ClaimGas(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": true})
}

// --- helpers ---

// decode reads the body, checks it against the route's schema, and binds
// it. On failure it writes the 400 itself and returns false.
func (s *Server) decode(c *gin.Context, schema *gojsonschema.Schema, out any) bool {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return false
	}
	if err := validateBody(schema, body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := decodeJSON(body, out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return false
	}
	return true
}

func (s *Server) enqueue(c *gin.Context, name ledgerbridge.OperationName, args ...any) {
	key := uuid.New()
	if err := s.bridge.Enqueue(name, key, args...); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"transactionKey": key})
}

func (s *Server) fail(c *gin.Context, err error) {
	var pe *ledgerbridge.ProtocolError
	switch {
	case errors.Is(err, ledgerbridge.ErrNotProjected):
		c.JSON(http.StatusNotFound, gin.H{"error": "not yet known to the read model"})
	case errors.Is(err, ledgerbridge.ErrDuplicateCorrelationKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
}

func decodeJSON(body []byte, out any) error {
	return json.Unmarshal(body, out)
}
