package ecotrend_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
)

const (
	testUnitUUID    = "7a226e08-2a90-4db9-ae9b-8148901c6ec2"
	testSupportCode = "AB12CD34"
)

// fakeAPI is an EcoTrend API stub serving the demo user flow.
type fakeAPI struct {
	mux *http.ServeMux
	srv *httptest.Server

	accessToken   string
	tokenRequests atomic.Int64
	apiRequests   atomic.Int64
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		mux:         http.NewServeMux(),
		accessToken: "demo-access-token",
	}

	f.mux.HandleFunc("GET /demo-user-token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		writeJSON(t, w, map[string]any{
			"accessToken":           f.accessToken,
			"accessTokenExpiresIn":  60,
			"refreshToken":          "demo-refresh-token",
			"refreshTokenExpiresIn": 5184000,
		})
	})

	f.mux.HandleFunc("GET /account", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"firstName":             "Demo",
			"lastName":              "User",
			"email":                 "demo@ista.de",
			"isDemo":                true,
			"supportCode":           testSupportCode,
			"activeConsumptionUnit": testUnitUUID,
			// The legacy list is stale on real accounts, the map is authoritative.
			"consumptionUnitUuids": []string{"11111111-1111-1111-1111-111111111111"},
			"residentAndConsumptionUuidsMap": map[string]string{
				"58571b2f-f864-4d9d-b78a-0a157a6b4f88": testUnitUUID,
			},
		})
	}))

	f.mux.HandleFunc("GET /consumptions", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("consumptionUnitUuid") != testUnitUUID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(t, w, map[string]any{
			"consumptionUnitId": testUnitUUID,
			"consumptions": []map[string]any{
				{
					"date": map[string]int{"month": 5, "year": 2024},
					"readings": []map[string]any{
						{"type": "heating", "value": "35", "unit": "Einheiten", "additionalValue": "38,0", "additionalUnit": "kWh"},
						{"type": "water", "value": "3,2", "unit": "m³"},
					},
				},
			},
		})
	}))

	f.mux.HandleFunc("GET /menu", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"consumptionUnits": []map[string]any{
				{
					"id": testUnitUUID,
					"address": map[string]any{
						"street":      "Luxemburger Str.",
						"houseNumber": "1",
						"postalCode":  "45131",
						"city":        "Essen",
					},
					"booked": map[string]bool{"cost": true, "co2": true},
				},
			},
		})
	}))

	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

// authorized rejects requests without the bearer token the stub handed out.
func (f *fakeAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.apiRequests.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+f.accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) baseURL() string {
	return f.srv.URL + "/"
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v), "Setup: could not encode response")
}

func newDemoClient(t *testing.T, api *fakeAPI, args ...ecotrend.Options) *ecotrend.Client {
	t.Helper()

	opts := append([]ecotrend.Options{ecotrend.WithAPIBaseURL(api.baseURL())}, args...)
	return ecotrend.New("demo@ista.de", "", opts...)
}

func TestDemoLoginAndAccount(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	client := newDemoClient(t, api)

	require.NoError(t, client.Login(context.Background()), "Demo login should succeed")
	assert.True(t, client.DemoMode(), "Client should be in demo mode")

	acc, err := client.Account(context.Background())
	require.NoError(t, err, "Account should be available after login")
	assert.Equal(t, testSupportCode, acc.SupportCode, "Unexpected support code")

	uuids, err := client.UUIDs(context.Background())
	require.NoError(t, err, "UUIDs should be available after login")
	assert.Equal(t, []string{testUnitUUID}, uuids, "UUIDs should come from the resident map, not the legacy list")

	code, err := client.SupportCode(context.Background())
	require.NoError(t, err, "Support code should be available after login")
	assert.Equal(t, testSupportCode, code, "Unexpected support code")

	// Login fetches the profile once, the getters serve the cached copy.
	assert.EqualValues(t, 1, api.apiRequests.Load(), "Account profile should only be fetched once")
}

func TestConsumptions(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	client := newDemoClient(t, api)
	require.NoError(t, client.Login(context.Background()), "Setup: demo login should succeed")

	tests := map[string]struct {
		uuid string

		wantErr error
	}{
		"Explicit unit":          {uuid: testUnitUUID},
		"Defaults to active":     {uuid: ""},
		"Malformed UUID":         {uuid: "not-a-uuid", wantErr: ecotrend.ErrInvalidUUID},
		"Unknown but valid UUID": {uuid: "11111111-2222-3333-4444-555555555555", wantErr: ecotrend.ErrInvalidUUID},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cons, err := client.Consumptions(context.Background(), tc.uuid)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Consumptions should fail with the expected sentinel")
				return
			}
			require.NoError(t, err, "Consumptions should not fail")
			assert.Equal(t, testUnitUUID, cons.ConsumptionUnitID, "Unexpected consumption unit ID")
			require.Len(t, cons.Consumptions, 1, "Unexpected number of periods")
		})
	}
}

func TestConsumptionUnitDetails(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	client := newDemoClient(t, api)
	require.NoError(t, client.Login(context.Background()), "Setup: demo login should succeed")

	details, err := client.ConsumptionUnitDetails(context.Background())
	require.NoError(t, err, "Menu request should not fail")
	require.Len(t, details.ConsumptionUnits, 1, "Unexpected number of consumption units")

	unit := details.ConsumptionUnits[0]
	assert.Equal(t, testUnitUUID, unit.ID, "Unexpected unit ID")
	assert.Equal(t, "Essen", unit.Address.City, "Unexpected city")
	assert.True(t, unit.Booked.Cost, "Cost service should be booked")
}

func TestReadings(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	client := newDemoClient(t, api, ecotrend.WithTimeProvider(func() time.Time { return now }))
	require.NoError(t, client.Login(context.Background()), "Setup: demo login should succeed")

	readings, err := client.Readings(context.Background(), "")
	require.NoError(t, err, "Readings should not fail")
	require.Len(t, readings, 2, "Unexpected number of flattened readings")
	assert.Equal(t, "heating_2024_5_ab12cd34", readings[0].EntityID, "Unexpected entity ID")

	current, err := client.CurrentReadings(context.Background(), testUnitUUID)
	require.NoError(t, err, "Current readings should not fail")
	assert.Len(t, current, 2, "May 2024 is the most recently completed month")
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	client := newDemoClient(t, api)
	require.NoError(t, client.Login(context.Background()), "Setup: demo login should succeed")

	session := client.Session()
	require.NotEmpty(t, session.AccessToken, "Session should carry an access token")
	assert.True(t, session.Demo, "Session should be flagged as demo")

	// A fresh client picks up the restored session without logging in again.
	restored := newDemoClient(t, api)
	restored.SetSession(session)

	_, err := restored.Account(context.Background())
	require.NoError(t, err, "Restored session should serve requests")
	assert.EqualValues(t, 1, api.tokenRequests.Load(), "Restoring a session should not trigger a new login")
}

func TestRequestsWithoutLogin(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)

	// The demo account re-authenticates transparently, so only a regular
	// client without a session reports the missing login.
	client := ecotrend.New("user@example.com", "secret", ecotrend.WithAPIBaseURL(api.baseURL()))

	_, err := client.Account(context.Background())
	require.ErrorIs(t, err, ecotrend.ErrLoginRequired, "Requests without login should fail")
}

func TestServerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/demo-user-token" {
			fmt.Fprintln(w, `{"accessToken": "tok", "accessTokenExpiresIn": 60, "refreshToken": "r", "refreshTokenExpiresIn": 60}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := ecotrend.New("demo@ista.de", "", ecotrend.WithAPIBaseURL(srv.URL+"/"))

	// Login fetches the account profile eagerly, which fails here.
	err := client.Login(context.Background())
	require.ErrorIs(t, err, ecotrend.ErrServer, "A 500 should map to the server error sentinel")

	_, err = client.ConsumptionUnitDetails(context.Background())
	require.ErrorIs(t, err, ecotrend.ErrServer, "A 500 should map to the server error sentinel")
}
