package recorder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/recorder"
	"github.com/ecotrend/go-ecotrend-ista/internal/recorder/database"
)

type mockConfigManager struct {
	mu       sync.Mutex
	loadErr  error
	watchErr error
	units    []string
	interval time.Duration

	changes chan struct{}
	errs    chan error
}

func (m *mockConfigManager) Load() error {
	return m.loadErr
}

func (m *mockConfigManager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	if m.watchErr != nil {
		return nil, nil, m.watchErr
	}
	if m.changes == nil {
		m.changes = make(chan struct{}, 1)
	}
	if m.errs == nil {
		m.errs = make(chan error, 1)
	}
	return m.changes, m.errs, nil
}

func (m *mockConfigManager) Units() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units
}

func (m *mockConfigManager) setUnits(units []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = units
}

func (m *mockConfigManager) Interval() time.Duration {
	if m.interval == 0 {
		return 50 * time.Millisecond
	}
	return m.interval
}

type mockDBManager struct {
	mu       sync.Mutex
	stored   map[string]int
	storeErr error
	closed   bool
}

func (m *mockDBManager) StoreReadings(ctx context.Context, unitUUID string, readings ecotrend.FlatReadings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]int)
	}
	m.stored[unitUUID] += len(readings)
	return m.storeErr
}

func (m *mockDBManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockDBManager) storedCount(unitUUID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[unitUUID]
}

type mockClient struct {
	mu       sync.Mutex
	uuids    []string
	uuidsErr error
	readings ecotrend.FlatReadings
	polls    map[string]int
}

func (m *mockClient) UUIDs(ctx context.Context) ([]string, error) {
	return m.uuids, m.uuidsErr
}

func (m *mockClient) Readings(ctx context.Context, unitUUID string) (ecotrend.FlatReadings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[string]int)
	}
	m.polls[unitUUID]++
	return m.readings, nil
}

func (m *mockClient) pollCount(unitUUID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[unitUUID]
}

func testFlatReadings() ecotrend.FlatReadings {
	return ecotrend.FlatReadings{
		{EntityID: "heating_2024_5_ab12cd34", Type: "heating", Year: 2024, Month: 5, Value: 35},
	}
}

func newService(t *testing.T, cm recorder.DConfigManager, client recorder.APIClient, db recorder.DBManager) *recorder.Service {
	t.Helper()

	s, err := recorder.New(cm, client, database.Config{},
		recorder.WithDBConnect(func(ctx context.Context, cfg database.Config) (recorder.DBManager, error) {
			return db, nil
		}))
	require.NoError(t, err, "Setup: New should not fail")
	return s
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cm      *mockConfigManager
		options []recorder.Options

		wantErr bool
	}{
		"Successful creation": {
			cm: &mockConfigManager{},
			options: []recorder.Options{
				recorder.WithDBConnect(func(ctx context.Context, cfg database.Config) (recorder.DBManager, error) {
					return &mockDBManager{}, nil
				}),
			},
		},
		"Config load failure": {
			cm:      &mockConfigManager{loadErr: errors.New("load error")},
			wantErr: true,
		},
		"Database connection failure": {
			cm: &mockConfigManager{},
			options: []recorder.Options{
				recorder.WithDBConnect(func(ctx context.Context, cfg database.Config) (recorder.DBManager, error) {
					return nil, errors.New("db connect error")
				}),
			},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := recorder.New(tc.cm, &mockClient{}, database.Config{}, tc.options...)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s, "Returned service should not be nil")
		})
	}
}

func TestRunPollsConfiguredUnits(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{units: []string{"unit-a", "unit-b"}}
	client := &mockClient{readings: testFlatReadings()}
	db := &mockDBManager{}
	s := newService(t, cm, client, db)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	require.Eventually(t, func() bool {
		return db.storedCount("unit-a") > 0 && db.storedCount("unit-b") > 0
	}, 5*time.Second, 10*time.Millisecond, "Both units should be polled and stored")

	s.Quit(false)
	select {
	case err := <-done:
		require.NoError(t, err, "Run should return cleanly after Quit")
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
	assert.True(t, db.closed, "Quit should close the database")
}

func TestRunFallsBackToAccountUnits(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{}
	client := &mockClient{uuids: []string{"account-unit"}, readings: testFlatReadings()}
	db := &mockDBManager{}
	s := newService(t, cm, client, db)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	defer func() {
		s.Quit(false)
		<-done
	}()

	require.Eventually(t, func() bool {
		return db.storedCount("account-unit") > 0
	}, 5*time.Second, 10*time.Millisecond, "Without an allow list the account units should be recorded")
}

func TestRunResyncsOnConfigChange(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{units: []string{"unit-a"}, interval: time.Hour}
	client := &mockClient{readings: testFlatReadings()}
	db := &mockDBManager{}
	s := newService(t, cm, client, db)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	defer func() {
		s.Quit(false)
		<-done
	}()

	require.Eventually(t, func() bool {
		return client.pollCount("unit-a") > 0
	}, 5*time.Second, 10*time.Millisecond, "Initial unit should be polled")

	cm.setUnits([]string{"unit-b"})
	cm.changes <- struct{}{}

	require.Eventually(t, func() bool {
		return client.pollCount("unit-b") > 0
	}, 5*time.Second, 10*time.Millisecond, "Added unit should be polled after the resync")
}

func TestRunWatchFailure(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{watchErr: errors.New("watch error")}
	s := newService(t, cm, &mockClient{}, &mockDBManager{})

	require.Error(t, s.Run(), "Run should fail when the configuration cannot be watched")
}

func TestRunAfterQuit(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{}
	s := newService(t, cm, &mockClient{}, &mockDBManager{})

	s.Quit(false)
	require.Error(t, s.Run(), "Run after Quit should fail")
}

func TestStoreFailureKeepsPolling(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{units: []string{"unit-a"}}
	client := &mockClient{readings: testFlatReadings()}
	db := &mockDBManager{storeErr: errors.New("insert failed")}
	s := newService(t, cm, client, db)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	defer func() {
		s.Quit(false)
		<-done
	}()

	require.Eventually(t, func() bool {
		return client.pollCount("unit-a") >= 2
	}, 5*time.Second, 10*time.Millisecond, "Polling should continue despite storage failures")
}
