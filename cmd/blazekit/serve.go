package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/blazekit/internal/config"
	"github.com/dudu/blazekit/internal/pipeline"
	"github.com/dudu/blazekit/internal/preprocess"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the pipeline over HTTP",
		Flags: append(pipelineFlags(),
			&cli.StringFlag{
				Name:  flagAddr,
				Value: ":8080",
				Usage: "listen address",
			},
			&cli.StringFlag{
				Name:  flagStatic,
				Usage: "serve files from this directory at /",
			},
		),
		Action: runServe,
	}
}

// server runs single images through a shared pipeline
type server struct {
	mu     sync.Mutex
	p      *pipeline.Pipeline
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func (s *server) detect(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be an encoded image"})
		return
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		return
	}
	defer img.Close()
	if img.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		return
	}

	s.mu.Lock()
	// every request is an independent still image
	s.p.Reset()
	res, err := s.p.Process(c.Request.Context(), preprocess.MatFrame{Mat: img}, 0)
	timing := s.p.LastTiming()
	s.mu.Unlock()
	if err != nil {
		s.logger.Warnw("detect failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newResultJSON(s.cfg.DetectorFamily(), img.Cols(), img.Rows(), res, timing))
}

func (s *server) router(staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	if staticDir != "" {
		r.Use(static.Serve("/", static.LocalFile(staticDir, true)))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "family": s.cfg.DetectorFamily()})
	})
	r.POST("/v1/detect", s.detect)
	return r
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"size", c.Writer.Size(),
			"latency", time.Since(start),
		)
	}
}

func runServe(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	gin.SetMode(gin.ReleaseMode)
	s := &server{p: p, cfg: cfg, logger: logger.Named("http")}
	srv := &http.Server{
		Addr:              c.String(flagAddr),
		Handler:           s.router(c.String(flagStatic)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
