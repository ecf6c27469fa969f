package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/domain"
)

// TransferHandler handles transfer and record HTTP requests
type TransferHandler struct {
	service        *app.TransferService
	destinationDir string
	logger         *zap.Logger
}

// NewTransferHandler creates a new transfer handler. Relative destinations
// are placed in destinationDir.
func NewTransferHandler(service *app.TransferService, destinationDir string, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		service:        service,
		destinationDir: destinationDir,
		logger:         logger,
	}
}

// StartTransferRequest represents a request to start a download
type StartTransferRequest struct {
	URL         string `json:"url" binding:"required"`
	VersionKey  string `json:"version_key" binding:"required"`
	Destination string `json:"destination,omitempty"`
	Title       string `json:"title,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Network     string `json:"network,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

// StartTransfer handles POST /api/v1/transfers
func (h *TransferHandler) StartTransfer(c *gin.Context) {
	var body StartTransferRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.service.Start(req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to start transfer", zap.String("target", req.VersionKey), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, snapshot)
}

func (h *TransferHandler) buildRequest(body StartTransferRequest) (domain.TransferRequest, error) {
	dest := body.Destination
	if dest == "" {
		u, err := url.Parse(body.URL)
		if err != nil {
			return domain.TransferRequest{}, err
		}
		dest = path.Base(u.Path)
		if dest == "/" || dest == "." {
			dest = body.VersionKey
		}
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(h.destinationDir, filepath.Base(dest))
	}

	req := domain.NewTransferRequest(body.URL, dest, body.VersionKey)
	if body.Title != "" {
		req.DisplayTitle = body.Title
	}
	if body.MimeType != "" {
		req.MimeType = body.MimeType
	}
	if body.Network != "" {
		network, err := domain.ParseNetworkType(body.Network)
		if err != nil {
			return domain.TransferRequest{}, err
		}
		req.AllowedNetworks = network
	}
	if body.Visibility != "" {
		req.NotificationVisibility = domain.NotificationVisibility(body.Visibility)
	}
	return req, nil
}

// GetTransfer handles GET /api/v1/transfers/:target
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	snapshot, err := h.service.Get(c.Param("target"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// ListTransfers handles GET /api/v1/transfers
func (h *TransferHandler) ListTransfers(c *gin.Context) {
	snapshots := h.service.List()
	if state := c.Query("state"); state != "" {
		filtered := snapshots[:0]
		for _, s := range snapshots {
			if string(s.State) == state {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
	}

	c.JSON(http.StatusOK, snapshots)
}

// CancelTransfer handles POST /api/v1/transfers/:target/cancel
func (h *TransferHandler) CancelTransfer(c *gin.Context) {
	name := c.Param("target")

	if err := h.service.Cancel(name); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to cancel transfer", zap.String("target", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "transfer cancelled"})
}

// ListRecords handles GET /api/v1/records
func (h *TransferHandler) ListRecords(c *gin.Context) {
	records, err := h.service.Records()
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// ForgetRecord handles DELETE /api/v1/records/:version
func (h *TransferHandler) ForgetRecord(c *gin.Context) {
	version := c.Param("version")

	if err := h.service.ForgetRecord(version); err != nil {
		h.logger.Error("Failed to forget record", zap.String("version", version), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "record deleted"})
}
