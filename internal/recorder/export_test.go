package recorder

import (
	"context"

	"github.com/ecotrend/go-ecotrend-ista/internal/recorder/database"
)

type (
	DBManager      = dbManager
	DConfigManager = dConfigManager
	APIClient      = apiClient
)

// WithDBConnect sets the database connection function for the recorder service.
func WithDBConnect(dbConnect func(ctx context.Context, cfg database.Config) (DBManager, error)) Options {
	return func(o *options) {
		o.dbConnect = dbConnect
	}
}
