package security

import (
	"github.com/shieldhq/sentinel/internal/security/repository"
	"github.com/shieldhq/sentinel/internal/security/service"
	"go.uber.org/fx"
)

var Module = fx.Module("security.service",
	fx.Provide(
		repository.ProvideAttemptStore,
		repository.ProvideAlertStore,
		repository.ProvideProfileStore,
		service.NewService,
	),
)
