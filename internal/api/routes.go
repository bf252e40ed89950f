package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
	"github.com/NowakAdmin/PosPrintAgent/internal/version"
)

type connectRequest struct {
	Address string `json:"address"`
	Toggle  bool   `json:"toggle"`
}

type batchRequest struct {
	Records []compose.Record `json:"records"`
}

type receiptRequest struct {
	Text string `json:"text"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": version.Version,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := s.router.Group("/", s.authorize)
	g.GET("/status", s.handleStatus)
	g.GET("/devices", s.handleDevices)
	g.POST("/connect", s.handleConnect)
	g.POST("/disconnect", s.handleDisconnect)
	g.POST("/print/label", s.handlePrintLabel)
	g.POST("/print/batch", s.handlePrintBatch)
	g.POST("/print/receipt", s.handlePrintReceipt)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"printer": s.printer.Status()})
}

func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.printer.ListDevices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if devices == nil {
		devices = []printer.Device{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// handleConnect pairs with the given address. With toggle set, posting the
// address that is already connected disconnects it instead.
func (s *Server) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Address) == "" {
		badRequest(c, "address is required")
		return
	}
	address := strings.TrimSpace(req.Address)

	var err error
	if req.Toggle {
		_, err = s.printer.Connect(c.Request.Context(), address)
	} else {
		err = s.printer.Pair(c.Request.Context(), address)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"printer": s.printer.Status()})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.printer.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"printer": s.printer.Status()})
}

func (s *Server) handlePrintLabel(c *gin.Context) {
	var rec compose.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid label payload")
		return
	}

	res, err := s.printer.PrintLabel(c.Request.Context(), rec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePrintBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid batch payload")
		return
	}

	res, err := s.printer.PrintBatch(c.Request.Context(), req.Records)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePrintReceipt(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid receipt payload")
		return
	}

	res, err := s.printer.PrintReceiptText(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) fail(c *gin.Context, err error) {
	fb := service.Explain(err)
	status := statusFor(fb.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, fb)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, service.Feedback{Kind: service.KindInvalidInput, Message: msg})
}

func statusFor(kind string) int {
	switch kind {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case printer.NotConnected.String(), printer.PeripheralNotFound.String():
		return http.StatusConflict
	case printer.TransportDisabled.String():
		return http.StatusServiceUnavailable
	case printer.ConnectFailed.String(), printer.WriteFailed.String():
		return http.StatusBadGateway
	case service.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
