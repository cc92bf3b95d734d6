package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/recorder/database"
)

// Service polls the EcoTrend API and stores the readings in the database,
// one worker per consumption unit.
type Service struct {
	cm     dConfigManager
	db     dbManager
	client apiClient

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context interrupts between polls, letting a running poll finish.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]context.CancelFunc
}

type dbManager interface {
	StoreReadings(ctx context.Context, unitUUID string, readings ecotrend.FlatReadings) error
	Close() error
}

type apiClient interface {
	UUIDs(ctx context.Context) ([]string, error)
	Readings(ctx context.Context, unitUUID string) (ecotrend.FlatReadings, error)
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Units() []string
	Interval() time.Duration
}

type options struct {
	dbConnect func(ctx context.Context, cfg database.Config) (dbManager, error)
}

// Options is a function that modifies the options for the recorder service.
type Options func(*options)

// New creates a new recorder service and connects to the database.
func New(cm dConfigManager, client apiClient, dbConfig database.Config, args ...Options) (*Service, error) {
	opts := options{
		dbConnect: func(ctx context.Context, cfg database.Config) (dbManager, error) {
			return database.Connect(ctx, cfg)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := opts.dbConnect(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	gCtx, gCancel := context.WithCancel(ctx)

	return &Service{
		cm:             cm,
		db:             db,
		client:         client,
		ctx:            ctx,
		cancel:         cancel,
		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
		workers:        make(map[string]context.CancelFunc),
	}, nil
}

// Run starts the recorder service.
//
// It starts one polling worker per configured consumption unit and resyncs
// the workers whenever the configuration file changes.
func (s *Service) Run() error {
	slog.Info("Recorder service started")

	select {
	case <-s.gracefulCtx.Done():
		return errors.New("service is already shutting down")
	default:
	}

	reloadEventCh, cfgWatchErrCh, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	// Initial sync
	s.syncWorkers()

	// Debounce timer for handling bursts of events
	debounceDuration := 500 * time.Millisecond
	debounceTimer := time.NewTimer(debounceDuration)
	defer debounceTimer.Stop()

	for {
		select {
		case <-s.gracefulCtx.Done():
			slog.Info("Recorder service shutting down")
			return nil

		case _, ok := <-reloadEventCh:
			if !ok {
				return fmt.Errorf("reloadEventCh closed unexpectedly")
			}
			if !debounceTimer.Stop() {
				<-debounceTimer.C // Drain the channel if needed
			}
			debounceTimer.Reset(debounceDuration)

		case <-debounceTimer.C:
			// Timer expired, perform the resync
			slog.Info("Resyncing workers after configuration change")
			s.syncWorkers()

		case err, ok := <-cfgWatchErrCh:
			if !ok {
				return fmt.Errorf("cfgWatchErrCh closed unexpectedly")
			}
			if err != nil {
				slog.Error("Configuration watcher error", "err", err)
			}
		}
	}
}

// syncWorkers diffs the configured units against the running workers and
// starts or stops polling goroutines accordingly.
func (s *Service) syncWorkers() {
	units := s.cm.Units()
	if len(units) == 0 {
		// No allow list, record every unit of the account.
		var err error
		units, err = s.client.UUIDs(s.gracefulCtx)
		if err != nil {
			slog.Error("Failed to list consumption units of the account", "err", err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := map[string]struct{}{}
	for _, unit := range units {
		want[unit] = struct{}{}
	}

	// stop removed
	for unit, cancel := range s.workers {
		if _, ok := want[unit]; !ok {
			slog.Info("Stopping worker for removed unit", "unit", unit)
			cancel()
			delete(s.workers, unit)
		}
	}
	// start added
	for unit := range want {
		if _, ok := s.workers[unit]; !ok {
			ctx, cancel := context.WithCancel(s.gracefulCtx)
			s.workers[unit] = cancel
			go s.unitWorker(ctx, unit)
		}
	}
}

// unitWorker polls a single consumption unit until ctx is canceled. The poll
// interval is re-read every round so configuration changes apply without a
// worker restart.
func (s *Service) unitWorker(ctx context.Context, unitUUID string) {
	slog.Info("Recording consumption unit", "unit", unitUUID)
	s.pollUnit(ctx, unitUUID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cm.Interval()):
			s.pollUnit(ctx, unitUUID)
		}
	}
}

func (s *Service) pollUnit(ctx context.Context, unitUUID string) {
	readings, err := s.client.Readings(ctx, unitUUID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Failed to fetch readings", "unit", unitUUID, "err", err)
		return
	}

	if err := s.db.StoreReadings(ctx, unitUUID, readings); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Failed to store readings", "unit", unitUUID, "err", err)
		return
	}
	slog.Debug("Stored readings", "unit", unitUUID, "count", len(readings))
}

// Quit stops the recorder service and closes the database connection.
func (s *Service) Quit(force bool) {
	if force {
		s.cancel()
	} else {
		s.gracefulCancel()
	}

	if s.db != nil {
		s.db.Close()
	}
	slog.Info("Recorder service stopped")
}
