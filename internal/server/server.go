package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"labelhub/internal/blobstore"
	"labelhub/internal/config"
	"labelhub/internal/handler"
	"labelhub/internal/middleware"
	"labelhub/internal/predictor"
	"labelhub/internal/repository"
	"labelhub/internal/service"
	"labelhub/internal/ws"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	cfg    *config.Config
	logger *zap.Logger
	hub    *ws.Hub
}

// NewServer wires repositories, services and handlers onto the router.
func NewServer(db *sqlx.DB, cfg *config.Config, logger *zap.Logger, hub *ws.Hub) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		db:     db,
		cfg:    cfg,
		logger: logger,
		hub:    hub,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	blobs := blobstore.NewPostgresStore(s.db, s.cfg.BlobTimeout(), s.logger)
	datasetRepo := repository.NewDatasetRepository(s.db, s.logger)
	imageRepo := repository.NewImageRepository(s.db, s.logger)

	var events service.EventPublisher
	if s.hub != nil {
		events = s.hub
	}

	datasetService := service.NewDatasetService(datasetRepo, imageRepo, blobs, events, s.logger)
	labelService := service.NewLabelService(datasetRepo, imageRepo, events, s.logger)
	uploadService := service.NewUploadService(datasetRepo, imageRepo, blobs, events, s.logger)
	exportService := service.NewExportService(datasetRepo, imageRepo, s.logger)

	var predictClient *predictor.Client
	if s.cfg.Predictor.Enabled {
		predictClient = predictor.NewClient(s.cfg.Predictor.URL)
		s.logger.Info("Prediction service enabled", zap.String("url", s.cfg.Predictor.URL))
	}

	datasetHandler := handler.NewDatasetHandler(datasetService, s.cfg.Listing.DefaultPageSize, s.cfg.Listing.MaxPageSize, s.logger)
	labelHandler := handler.NewLabelHandler(labelService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploadService, s.logger)
	exportHandler := handler.NewExportHandler(exportService, datasetService, s.logger)
	blobHandler := handler.NewBlobHandler(blobs, s.logger)
	predictHandler := handler.NewPredictHandler(imageRepo, blobs, predictClient, s.logger)

	// Ping route for health check. When the prediction service is enabled
	// its health is reported alongside.
	s.router.GET("/ping", func(c *gin.Context) {
		resp := gin.H{"message": "pong"}
		if predictClient != nil {
			health, err := predictClient.Health(c.Request.Context())
			switch {
			case err != nil:
				resp["predictor"] = "unreachable"
			case health.ModelLoaded:
				resp["predictor"] = "ok"
			default:
				resp["predictor"] = health.Status
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	// Image bytes are public the way the original static serving was.
	s.router.GET("/blob/:blobId", blobHandler.Get)
	s.router.GET("/blob/:blobId/thumb", blobHandler.Thumb)

	if s.hub != nil {
		s.router.GET("/ws", func(c *gin.Context) {
			s.hub.Serve(c.Writer, c.Request)
		})
	}

	api := s.router.Group("/api")
	api.Use(middleware.AuthMiddleware([]byte(s.cfg.Auth.JWTSecret), s.logger))
	{
		api.POST("/datasets", datasetHandler.Create)
		api.GET("/datasets", datasetHandler.List)
		api.DELETE("/datasets", datasetHandler.Reset)
		api.GET("/datasets/:id", datasetHandler.Get)
		api.PUT("/datasets/:id", datasetHandler.Rename)
		api.DELETE("/datasets/:id", datasetHandler.Delete)

		api.POST("/datasets/:id/images", uploadHandler.Upload)
		api.GET("/datasets/:id/images", datasetHandler.ListImages)
		api.GET("/datasets/:id/stats", datasetHandler.Stats)
		api.GET("/datasets/:id/export", exportHandler.Export)

		api.PUT("/datasets/:id/images/:imageId", labelHandler.Save)
		api.DELETE("/datasets/:id/images/:imageId", datasetHandler.DeleteImage)
		api.DELETE("/datasets/:id/images/:imageId/label", labelHandler.Delete)
		api.GET("/datasets/:id/images/:imageId/label-stats", labelHandler.Stats)
		api.POST("/datasets/:id/images/:imageId/crop", uploadHandler.Crop)
		api.GET("/datasets/:id/images/:imageId/predict", predictHandler.Suggest)
	}
}

func (s *Server) Run(addr string) {
	s.logger.Info("Server starting", zap.String("addr", addr))
	if err := s.router.Run(addr); err != nil {
		s.logger.Fatal("Server failed to start", zap.Error(err))
	}
}
