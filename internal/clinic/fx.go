package clinic

import (
	"github.com/smallbiznis/dentaldesk/internal/clinic/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("clinic",
	fx.Provide(repository.Provide),
)
