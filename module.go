package di

// A Module is a collection of container options.
// It can be used to export a re-usable group of related services.
//
// Example:
//
//	var DatabaseModule = di.Module{
//		di.WithValue(ConfigKey, cfg),
//		di.WithService(DBKey, OpenDB, di.Scoped),
//	}
type Module []ContainerOption

func (m Module) applyContainer(c *Container) error {
	return applyOptions(m, func(opt ContainerOption) error {
		if opt == nil {
			return nil
		}
		return opt.applyContainer(c)
	})
}

// WithModule applies the options in a [Module] when calling [NewContainer].
//
// Example:
//
//	c, err := di.NewContainer(
//		di.WithModule(DatabaseModule),
//		di.WithService(HandlerKey, NewHandler),
//	)
func WithModule(m Module) ContainerOption {
	return m
}
