package metering

import (
	"github.com/shieldhq/sentinel/internal/metering/repository"
	"github.com/shieldhq/sentinel/internal/metering/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metering.service",
	fx.Provide(
		repository.ProvideEventStore,
		repository.ProvideAggregateStore,
		service.NewService,
	),
)
