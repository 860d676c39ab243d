// Package api serves the HTTP injection endpoint used by document systems
// to hand new records to Signoff, plus read-only listing, health and
// Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/signoff/internal/models"
	"github.com/zulandar/signoff/internal/telegraph"
)

// Injector adds a document and notifies its reviewer.
type Injector interface {
	Inject(ctx context.Context, req telegraph.InjectRequest) (*telegraph.InjectResult, error)
}

// DocumentReader is the read side of the document store.
type DocumentReader interface {
	ListAll() []models.Document
	ListByState(state string) []models.Document
	Get(id string) (*models.Document, bool)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Injector  Injector
	Documents DocumentReader
	DB        *gorm.DB // optional; enables the approval history route
	Port      int
	Logger    *zap.Logger
	Out       io.Writer
}

func (o *StartOpts) validate() error {
	if o.Injector == nil {
		return fmt.Errorf("api: injector is required")
	}
	if o.Documents == nil {
		return fmt.Errorf("api: documents is required")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

// NewRouter builds the gin engine with middleware and routes registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(opts.Logger))
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
