package reference

import "go.uber.org/fx"

// Module exposes read access to branches, customers, staff, appointments
// and the service catalog. This engine never writes them.
var Module = fx.Module("reference",
	fx.Provide(NewRepository),
)
