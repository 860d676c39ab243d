package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/models"
	"github.com/zulandar/signoff/internal/telegraph"
)

// injectBody is the JSON accepted by POST /api/documents.
type injectBody struct {
	Title            string `json:"title"`
	LocalPath        string `json:"localPath"`
	DocType          string `json:"docType"`
	DocNumber        string `json:"docNumber"`
	DocClass         string `json:"docClass"`
	Revision         string `json:"revision"`
	Sheet            string `json:"sheet"`
	Responsible      string `json:"responsible"`
	Status           string `json:"status"`
	FileStatus       string `json:"fileStatus"`
	Language         string `json:"language"`
	DocumentType     string `json:"documentType"`
	CreatedBy        string `json:"createdBy"`
	ModifiedBy       string `json:"modifiedBy"`
	OriginalFilename string `json:"originalFilename"`
	NotifyIdentity   string `json:"notifyIdentity"`
	NotifyEmail      string `json:"notifyEmail"`
}

func (b injectBody) request() telegraph.InjectRequest {
	return telegraph.InjectRequest{
		Input: docstore.Input{
			Title:            b.Title,
			LocalPath:        b.LocalPath,
			DocType:          b.DocType,
			DocNumber:        b.DocNumber,
			DocClass:         b.DocClass,
			Revision:         b.Revision,
			Sheet:            b.Sheet,
			Responsible:      b.Responsible,
			Status:           b.Status,
			FileStatus:       b.FileStatus,
			Language:         b.Language,
			DocumentType:     b.DocumentType,
			CreatedBy:        b.CreatedBy,
			ModifiedBy:       b.ModifiedBy,
			OriginalFilename: b.OriginalFilename,
		},
		NotifyIdentity: b.NotifyIdentity,
		NotifyEmail:    b.NotifyEmail,
	}
}

type injectResponse struct {
	Document       *models.Document `json:"document"`
	Delivered      bool             `json:"delivered"`
	Queued         bool             `json:"queued"`
	NotificationID string           `json:"notificationId,omitempty"`
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	docs := router.Group("/api/documents")
	docs.POST("", handleInject(opts.Injector, opts.Logger))
	docs.GET("", handleList(opts.Documents))
	docs.GET("/:id", handleGet(opts.Documents))
	if opts.DB != nil {
		docs.GET("/:id/history", handleHistory(opts.Documents, opts.DB))
	}
}

func handleInject(inj Injector, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body injectBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}

		res, err := inj.Inject(c.Request.Context(), body.request())
		if err != nil {
			if errors.Is(err, telegraph.ErrInvalidInjection) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Error("api: inject failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "injection failed"})
			return
		}

		c.JSON(http.StatusCreated, injectResponse{
			Document:       res.Document,
			Delivered:      res.Delivered,
			Queued:         res.Queued,
			NotificationID: res.NotificationID,
		})
	}
}

func handleList(docs DocumentReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := strings.TrimSpace(c.Query("state"))
		if state == "" {
			c.JSON(http.StatusOK, gin.H{"documents": nonNil(docs.ListAll())})
			return
		}
		canonical := models.NormalizeState(state)
		if !models.ValidState(canonical) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state " + state})
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": nonNil(docs.ListByState(canonical))})
	}
}

func handleGet(docs DocumentReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := docs.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func handleHistory(docs DocumentReader, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := docs.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		events, err := db.ApprovalHistory(gdb, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if events == nil {
			events = []models.ApprovalEvent{}
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil(docs []models.Document) []models.Document {
	if docs == nil {
		return []models.Document{}
	}
	return docs
}
