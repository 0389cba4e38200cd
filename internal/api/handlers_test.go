package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/position-scanner/internal/config"
	"github.com/position-scanner/internal/models"
)

var (
	testRegistryAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testAccountAddr  = common.HexToAddress("0x2000000000000000000000000000000000000001")
	testPositionAddr = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

type stubStore struct {
	registry  *models.Registry
	account   *models.SmartAccount
	position  *models.Position
	positions []*models.Position
	regDaily  []*models.RegistryDailyData
	acctDaily []*models.SmartAccountDailyData
	posDaily  []*models.PositionDailyData
	pingErr   error
}

func (s *stubStore) Get(ctx context.Context, id common.Address) (*models.Registry, error) {
	if s.registry != nil && s.registry.ID == id {
		return s.registry, nil
	}
	return nil, nil
}

func (s *stubStore) Ping(ctx context.Context) error {
	return s.pingErr
}

type stubAccounts struct{ store *stubStore }

func (s *stubAccounts) Get(ctx context.Context, id common.Address) (*models.SmartAccount, error) {
	if s.store.account != nil && s.store.account.ID == id {
		return s.store.account, nil
	}
	return nil, nil
}

type stubPositions struct{ store *stubStore }

func (s *stubPositions) Get(ctx context.Context, id common.Address) (*models.Position, error) {
	if s.store.position != nil && s.store.position.ID == id {
		return s.store.position, nil
	}
	return nil, nil
}

func (s *stubPositions) ListByOwner(ctx context.Context, ownerID common.Address) ([]*models.Position, error) {
	return s.store.positions, nil
}

type stubDaily struct{ store *stubStore }

func (s *stubDaily) ListRegistryDailyRange(ctx context.Context, registryID common.Address, from, to int64) ([]*models.RegistryDailyData, error) {
	return s.store.regDaily, nil
}

func (s *stubDaily) ListSmartAccountDailyRange(ctx context.Context, accountID common.Address, from, to int64) ([]*models.SmartAccountDailyData, error) {
	return s.store.acctDaily, nil
}

func (s *stubDaily) ListPositionDailyRange(ctx context.Context, positionID common.Address, from, to int64) ([]*models.PositionDailyData, error) {
	return s.store.posDaily, nil
}

func newTestServer(store *stubStore) *Server {
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: "0"}
	return NewServer(cfg, store, &stubAccounts{store}, &stubPositions{store}, &stubDaily{store}, store, nil)
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}), "GET", "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthEndpointDegraded(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{pingErr: assert.AnError}), "GET", "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRegistry(t *testing.T) {
	registry := models.NewRegistry(testRegistryAddr, 1000)
	registry.PositionCount = 5
	registry.TotalDepositedUSD = decimal.RequireFromString("123.45")

	rec := doRequest(t, newTestServer(&stubStore{registry: registry}), "GET", "/api/registries/"+testRegistryAddr.Hex())

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(5), body["positionCount"])
	assert.Equal(t, "123.45", body["totalDepositedUSD"])
}

func TestGetRegistryNotFound(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}), "GET", "/api/registries/"+testRegistryAddr.Hex())

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestGetRegistryInvalidAddress(t *testing.T) {
	rec := doRequest(t, newTestServer(&stubStore{}), "GET", "/api/registries/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccountPositions(t *testing.T) {
	account := models.NewSmartAccount(testAccountAddr, 1000)
	position := models.NewPosition(testPositionAddr, testAccountAddr, 1, 1000)

	store := &stubStore{account: account, positions: []*models.Position{position}}
	rec := doRequest(t, newTestServer(store), "GET", "/api/accounts/"+testAccountAddr.Hex()+"/positions")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Positions []json.RawMessage `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Positions, 1)
}

func TestGetPositionIncludesPhase(t *testing.T) {
	position := models.NewPosition(testPositionAddr, testAccountAddr, 1, 1000)
	position.OpenedAt = 2000

	rec := doRequest(t, newTestServer(&stubStore{position: position}), "GET", "/api/positions/"+testPositionAddr.Hex())

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(models.PhaseOpen), body["phase"])
	assert.Equal(t, false, body["eligible"])
}

func TestGetRegistryDailyRange(t *testing.T) {
	store := &stubStore{
		regDaily: []*models.RegistryDailyData{
			{
				ID:                models.DailyDataID(testRegistryAddr, 100),
				RegistryID:        testRegistryAddr,
				DayStartTimestamp: 8640000,
				CreatedAt:         8640010,
				TotalDepositedUSD: decimal.NewFromInt(10),
			},
		},
	}

	rec := doRequest(t, newTestServer(store), "GET",
		"/api/registries/"+testRegistryAddr.Hex()+"/daily?from=8600000&to=8700000")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		From int64             `json:"from"`
		To   int64             `json:"to"`
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(8600000), body.From)
	assert.Equal(t, int64(8700000), body.To)
	assert.Len(t, body.Data, 1)
}

func TestDailyRangeValidation(t *testing.T) {
	server := newTestServer(&stubStore{})

	rec := doRequest(t, server, "GET", "/api/registries/"+testRegistryAddr.Hex()+"/daily?from=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, server, "GET", "/api/registries/"+testRegistryAddr.Hex()+"/daily?from=200&to=100")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
