package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craprotocol/tracer/internal/ingest"
	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
)

// TxHandler handles transaction-related API requests
type TxHandler struct {
	txStore  *storage.TxStore
	ingestor *ingest.Ingestor
}

// NewTxHandler creates a new TxHandler
func NewTxHandler(txStore *storage.TxStore, ingestor *ingest.Ingestor) *TxHandler {
	return &TxHandler{txStore: txStore, ingestor: ingestor}
}

// Get returns a transaction by its ID
// GET /api/v1/transactions/:txid
func (h *TxHandler) Get(c *gin.Context) {
	txid := c.Param("txid")

	tx, err := h.txStore.Get(txid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Create records a submitted transaction. Recording a known txid again is
// a no-op and still returns 200.
// POST /api/v1/transactions
func (h *TxHandler) Create(c *gin.Context) {
	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction payload: " + err.Error()})
		return
	}

	if err := h.ingestor.Record(&tx); err != nil {
		if errors.Is(err, ingest.ErrInvalidTransaction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"txid":     tx.TxID,
		"balanced": tx.Balanced(),
	})
}
