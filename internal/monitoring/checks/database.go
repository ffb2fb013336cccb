package checks

import (
	"context"

	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/database"
	"github.com/agenciateixeira/t3-sub001/internal/monitoring"
)

// Database pings the configured database handle.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		return monitoring.ResultFromError(database.Ping(ctx, db))
	})
}
