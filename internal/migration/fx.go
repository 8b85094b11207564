package migration

import (
	"strings"

	"github.com/shieldhq/sentinel/internal/config"
	meteringdomain "github.com/shieldhq/sentinel/internal/metering/domain"
	securitydomain "github.com/shieldhq/sentinel/internal/security/domain"
	subscriptiondomain "github.com/shieldhq/sentinel/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(runMigrations),
)

func runMigrations(cfg config.Config, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if strings.EqualFold(cfg.DBType, "postgres") {
		return Run(db, log)
	}

	// Non-postgres targets (sqlite for local dev, mysql) use the
	// schema derived from the models.
	log.Info("auto migrating schema", zap.String("db_type", cfg.DBType))
	return db.AutoMigrate(
		&meteringdomain.UsageEvent{},
		&meteringdomain.UsageAggregate{},
		&securitydomain.LoginAttempt{},
		&securitydomain.SecurityAlert{},
		&securitydomain.SecurityProfile{},
		&subscriptiondomain.Subscription{},
	)
}
