package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/storage"
)

// AddressHandler handles address intelligence API requests
type AddressHandler struct {
	addressStore *storage.AddressStore
	txStore      *storage.TxStore
	seedStore    *storage.SeedStore
	labels       *labels.Set
}

// NewAddressHandler creates a new AddressHandler
func NewAddressHandler(addressStore *storage.AddressStore, txStore *storage.TxStore, seedStore *storage.SeedStore, ls *labels.Set) *AddressHandler {
	return &AddressHandler{
		addressStore: addressStore,
		txStore:      txStore,
		seedStore:    seedStore,
		labels:       ls,
	}
}

// Get returns the intelligence record of one address: activity window,
// running totals, the labeled entity owning it, and its seed risk.
// GET /api/v1/addresses/:address
func (h *AddressHandler) Get(c *gin.Context) {
	address := c.Param("address")

	addr, err := h.addressStore.Get(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if addr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
		return
	}

	resp := gin.H{
		"address":        addr.Address,
		"first_seen":     addr.FirstSeen,
		"last_seen":      addr.LastSeen,
		"total_received": addr.TotalReceived,
		"total_sent":     addr.TotalSent,
		"tx_count":       addr.TxCount,
	}
	if ent := h.labels.ByAddress(address); ent != nil {
		resp["entity"] = ent
	}
	if risk, ok, err := h.seedStore.Get(address); err == nil && ok {
		resp["seed_risk"] = risk
	}

	c.JSON(http.StatusOK, resp)
}

// GetTransactions returns the transactions an address has spent in,
// in ascending (timestamp, txid) order.
// GET /api/v1/addresses/:address/transactions
func (h *AddressHandler) GetTransactions(c *gin.Context) {
	address := c.Param("address")

	addr, err := h.addressStore.Get(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if addr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
		return
	}

	txs, err := h.txStore.GetBySpender(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      address,
		"transactions": txs,
		"count":        len(txs),
	})
}
