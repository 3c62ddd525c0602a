package client

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"sieve/internal/management"
	"sieve/pkg/errors"
	"sieve/pkg/models"
)

const baseURL = "http://sieve.test"

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	return New(baseURL+"/", opts...)
}

func TestGetFilterSet(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Get("/api/v1/filter-sets/abc").
		MatchHeader("Accept", "application/json").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{
			"id":       "abc",
			"name":     "healthy",
			"priority": 2,
			"enabled":  true,
			"filters": []map[string]interface{}{
				{"type": "metric", "name": "cpu", "value": 80, "comparisonType": "more"},
			},
		})

	set, err := newTestClient().GetFilterSet(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "healthy", set.Name)
	require.Len(t, set.Filters, 1)
	assert.Equal(t, models.NewMetricFilter("cpu", 80, models.ComparisonMore), set.Filters[0])
	assert.True(t, gock.IsDone())
}

func TestCreateFilterSet_SendsIdentity(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		MatchHeader(management.HeaderUserID, "alice").
		MatchHeader(management.HeaderChangeReason, "rollout").
		MatchType("json").
		BodyString(`"name":"prod-only"`).
		Reply(http.StatusCreated).
		JSON(map[string]interface{}{"id": "new-id", "name": "prod-only"})

	c := newTestClient(WithIdentity("alice", "rollout"))
	set, err := c.CreateFilterSet(context.Background(), management.CreateFilterSetRequest{
		Name:    "prod-only",
		Filters: models.FilterList{models.NewStringFilter("env", "prod", false)},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", set.ID)
	assert.True(t, gock.IsDone())
}

func TestDeleteFilterSet(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Delete("/api/v1/filter-sets/abc").
		Reply(http.StatusNoContent)

	require.NoError(t, newTestClient().DeleteFilterSet(context.Background(), "abc"))
	assert.True(t, gock.IsDone())
}

func TestErrorsAreTyped(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Get("/api/v1/filter-sets/missing").
		Reply(http.StatusNotFound).
		JSON(map[string]interface{}{"error": "Resource not found", "error_code": "NOT_FOUND"})

	gock.New(baseURL).
		Post("/api/v1/filters/validate").
		Reply(http.StatusBadRequest).
		JSON(map[string]interface{}{
			"error":      "Validation failed",
			"error_code": "VALIDATION_ERROR",
			"details":    map[string]interface{}{"field": "name"},
		})

	c := newTestClient()

	_, err := c.GetFilterSet(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, errors.ToHTTPStatus(err))

	_, err = c.ValidateFilters(context.Background(), management.ValidateFiltersRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "name", errors.ToErrorResponse(err)["details"].(map[string]interface{})["field"])
}

func TestRetriesServerErrors(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Post("/api/v1/filter-sets/abc/evaluate").
		Times(2).
		Reply(http.StatusServiceUnavailable).
		BodyString("upstream down")
	gock.New(baseURL).
		Post("/api/v1/filter-sets/abc/evaluate").
		Reply(http.StatusOK).
		JSON(map[string]interface{}{"filter_set_id": "abc", "matched": true})

	resp, err := newTestClient().EvaluateFilterSet(context.Background(), "abc", management.EvaluateRequest{
		Metrics: map[string]float64{"cpu": 90},
	})
	require.NoError(t, err)
	assert.True(t, resp.Matched)
	assert.True(t, gock.IsDone())
}

func TestGivesUpAfterRetryMax(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Get("/api/v1/filter-sets").
		Times(2).
		Reply(http.StatusInternalServerError).
		BodyString("boom")

	_, err := newTestClient(WithRetryMax(1)).ListFilterSets(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errors.ToHTTPStatus(err))
	assert.Contains(t, err.Error(), "boom")
}

func createRequest() management.CreateFilterSetRequest {
	return management.CreateFilterSetRequest{
		Name:    "prod-only",
		Filters: models.FilterList{models.NewStringFilter("env", "prod", false)},
	}
}

func TestCreateFilterSet_NotReplayedAfterServerError(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		Reply(http.StatusInternalServerError).
		BodyString("boom")
	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		Reply(http.StatusConflict).
		JSON(map[string]interface{}{"error": "already exists", "error_code": "ALREADY_EXISTS"})

	_, err := newTestClient().CreateFilterSet(context.Background(), createRequest())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errors.ToHTTPStatus(err))
	assert.True(t, gock.IsPending(), "create was sent twice")
}

func TestCreateFilterSet_NotReplayedAfterDroppedConnection(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		ReplyError(stderrors.New("connection reset by peer"))
	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		Reply(http.StatusCreated).
		JSON(map[string]interface{}{"id": "abc", "name": "prod-only"})

	_, err := newTestClient().CreateFilterSet(context.Background(), createRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.True(t, gock.IsPending(), "create was sent twice")
}

func TestCreateFilterSet_RetriesWhenNotProcessed(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		ReplyError(&net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("connection refused")})
	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		Reply(http.StatusServiceUnavailable).
		BodyString("starting")
	gock.New(baseURL).
		Post("/api/v1/filter-sets").
		Reply(http.StatusCreated).
		JSON(map[string]interface{}{"id": "abc", "name": "prod-only"})

	set, err := newTestClient().CreateFilterSet(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, "abc", set.ID)
	assert.True(t, gock.IsDone())
}

func TestReadsRetryDroppedConnection(t *testing.T) {
	defer gock.Off()

	gock.New(baseURL).
		Get("/api/v1/filter-sets").
		ReplyError(stderrors.New("connection reset by peer"))
	gock.New(baseURL).
		Get("/api/v1/filter-sets").
		Reply(http.StatusOK).
		JSON([]map[string]interface{}{{"id": "abc", "name": "healthy"}})

	sets, err := newTestClient().ListFilterSets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.True(t, gock.IsDone())
}
