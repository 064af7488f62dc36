package internal

// Option configures the engine before Run or RunMCP starts it.
type Option func(*engine)

type engine struct {
	config *Config
}

// WithConfig supplies a pre-loaded configuration instead of the defaults.
func WithConfig(cfg *Config) Option {
	return func(e *engine) {
		e.config = cfg
	}
}
