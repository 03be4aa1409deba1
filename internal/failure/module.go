package failure

import "go.uber.org/fx"

var Module = fx.Module("failure",
	fx.Provide(
		fx.Annotate(
			NewRecorder,
			fx.As(new(Reporter)),
		),
	),
)
