package server

import (
	"database/sql"
	"net/http"

	"stats-service/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

type Server struct {
	statsService service.StatsServiceInterface
	db           *sql.DB
}

func NewServer(statsService service.StatsServiceInterface, db *sql.DB) *Server {
	return &Server{
		statsService: statsService,
		db:           db,
	}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			log.WithField("error", err).Error("Health check failed: database is down")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database connection error",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// An empty window returns an empty list with 200; only a storage fault
// is a server error.

func (s *Server) GetTrendingTags(c echo.Context) error {
	ctx := c.Request().Context()
	tags, err := s.statsService.TrendingTags(ctx, service.DefaultWindowDays, service.DefaultTopN)
	if err != nil {
		log.WithError(err).Error("Failed to get trending tags")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
	return c.JSON(http.StatusOK, tags)
}

func (s *Server) GetTopUsers(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := s.statsService.TopUsers(ctx, service.DefaultWindowDays, service.DefaultTopN)
	if err != nil {
		log.WithError(err).Error("Failed to get top users")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) GetTopAis(c echo.Context) error {
	ctx := c.Request().Context()
	ais, err := s.statsService.TopAis(ctx, service.DefaultWindowDays, service.DefaultTopN)
	if err != nil {
		log.WithError(err).Error("Failed to get top AIs")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
	return c.JSON(http.StatusOK, ais)
}

func (s *Server) GetTopAiAnswers(c echo.Context) error {
	ctx := c.Request().Context()
	answers, err := s.statsService.TopAiAnswers(ctx, service.AiAnswersWindowDays, service.AiAnswersTopN)
	if err != nil {
		log.WithError(err).Error("Failed to get top AI answers")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
	return c.JSON(http.StatusOK, answers)
}
