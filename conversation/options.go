package conversation

// Option is a function that can be used to modify the behavior of the engine Config.
type Option func(*Config)

const (
	// DefaultMaxToolRounds is the default cap on tool rounds per conversation.
	DefaultMaxToolRounds = 20
	// DefaultMaxResultLines is the default cap on lines kept from a tool result.
	DefaultMaxResultLines = 150
)

type Config struct {
	// MaxToolRounds caps how many tool rounds a conversation may run.
	// Reaching the cap ends resolution with the current response, it is not an error.
	MaxToolRounds int

	// MaxResultLines caps how many lines of a tool result are fed back to the model.
	MaxResultLines int

	// Verify enables generating success criteria for a chat turn and
	// verifying the final response against them.
	Verify bool

	// Criteria is the success criteria to verify the final response against.
	// When empty, no verification is performed.
	Criteria string

	// CallbackHandler receives engine progress events.
	CallbackHandler Callback

	// Store mirrors transcript messages to external storage.
	Store MessageStore
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxToolRounds:  DefaultMaxToolRounds,
		MaxResultLines: DefaultMaxResultLines,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with the provided options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxToolRounds is an option that caps tool rounds per conversation.
func WithMaxToolRounds(rounds int) Option {
	return func(o *Config) {
		o.MaxToolRounds = rounds
	}
}

// WithMaxResultLines is an option that caps lines kept from a tool result.
func WithMaxResultLines(lines int) Option {
	return func(o *Config) {
		o.MaxResultLines = lines
	}
}

// WithVerification is an option that enables criteria generation and
// response verification for chat turns.
func WithVerification(verify bool) Option {
	return func(o *Config) {
		o.Verify = verify
	}
}

// WithCriteria is an option that sets explicit success criteria to verify
// the final response against.
func WithCriteria(criteria string) Option {
	return func(o *Config) {
		o.Criteria = criteria
	}
}

// WithCallback is an option that sets the callback handler for engine events.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = cb
	}
}

// WithStore is an option that mirrors transcript messages to external storage.
func WithStore(store MessageStore) Option {
	return func(o *Config) {
		o.Store = store
	}
}
