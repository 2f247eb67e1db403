package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stats-service/internal/domain"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsService struct {
	tags    []domain.TrendingTag
	users   []domain.TopUser
	ais     []domain.TopAi
	answers []domain.AiAnswerSummary
	err     error
}

func (f *fakeStatsService) Ingest(ctx context.Context, env domain.Envelope) error { return f.err }

func (f *fakeStatsService) TrendingTags(ctx context.Context, windowDays, topN int) ([]domain.TrendingTag, error) {
	return f.tags, f.err
}

func (f *fakeStatsService) TopUsers(ctx context.Context, windowDays, topN int) ([]domain.TopUser, error) {
	return f.users, f.err
}

func (f *fakeStatsService) TopAis(ctx context.Context, windowDays, topN int) ([]domain.TopAi, error) {
	return f.ais, f.err
}

func (f *fakeStatsService) TopAiAnswers(ctx context.Context, windowDays, topN int) ([]domain.AiAnswerSummary, error) {
	return f.answers, f.err
}

func doGet(t *testing.T, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler(c))
	return rec
}

func TestGetTrendingTags(t *testing.T) {
	srv := NewServer(&fakeStatsService{tags: []domain.TrendingTag{
		{Tag: "go", Count: 2},
		{Tag: "rust", Count: 1},
	}}, nil)

	rec := doGet(t, srv.GetTrendingTags)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got []domain.TrendingTag
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []domain.TrendingTag{{Tag: "go", Count: 2}, {Tag: "rust", Count: 1}}, got)
}

func TestGetTrendingTagsEmptyIsNotAnError(t *testing.T) {
	srv := NewServer(&fakeStatsService{tags: []domain.TrendingTag{}}, nil)

	rec := doGet(t, srv.GetTrendingTags)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetTopUsers(t *testing.T) {
	srv := NewServer(&fakeStatsService{users: []domain.TopUser{{UserID: "u1", Delta: 20}}}, nil)

	rec := doGet(t, srv.GetTopUsers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"userId":"u1","delta":20}]`, rec.Body.String())
}

func TestGetTopAis(t *testing.T) {
	srv := NewServer(&fakeStatsService{ais: []domain.TopAi{{AiID: "a1", Delta: 15}}}, nil)

	rec := doGet(t, srv.GetTopAis)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"aiId":"a1","delta":15}]`, rec.Body.String())
}

func TestGetTopAiAnswers(t *testing.T) {
	srv := NewServer(&fakeStatsService{answers: []domain.AiAnswerSummary{{AiModel: "gpt-9", TotalVotes: 7}}}, nil)

	rec := doGet(t, srv.GetTopAiAnswers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"aiModel":"gpt-9","totalVotes":7}]`, rec.Body.String())
}

func TestStorageOutageIsAServerError(t *testing.T) {
	srv := NewServer(&fakeStatsService{err: errors.New("connection refused")}, nil)

	for name, handler := range map[string]echo.HandlerFunc{
		"trending-tags":  srv.GetTrendingTags,
		"top-users":      srv.GetTopUsers,
		"top-ais":        srv.GetTopAis,
		"top-ai-answers": srv.GetTopAiAnswers,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doGet(t, handler)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
		})
	}
}

func TestHealthCheckWithoutDB(t *testing.T) {
	srv := NewServer(&fakeStatsService{}, nil)

	rec := doGet(t, srv.HealthCheck)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
