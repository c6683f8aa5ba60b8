package domain

import "errors"

// Error taxonomy. Contract violations are fatal and surface as errors;
// admission rejections and lifecycle rejections are structured results and
// never travel as errors.
var (
	// ErrInvalidBars is returned when the input series violates the bar
	// invariants (timestamp order, OHLC ordering, negative volume).
	ErrInvalidBars = errors.New("invalid bar series")

	// ErrInvalidSignal is returned when a strategy emits a signal outside
	// {-1, 0, 1}.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrNoSignals is returned when a strategy produces no signal column at
	// all (nil output or wrong length). Fatal, never retried.
	ErrNoSignals = errors.New("strategy did not produce signals")

	// ErrEmptySeries is returned when the engine is run on zero bars.
	ErrEmptySeries = errors.New("empty bar series")

	// ErrOrderNotFound is returned for lifecycle operations on unknown IDs.
	ErrOrderNotFound = errors.New("order not found")

	// ErrTerminalState is returned when a transition is attempted on a
	// filled, canceled or rejected order.
	ErrTerminalState = errors.New("order in terminal state")
)

// ContractError wraps a fatal violation of a plug-in contract (strategy,
// sizer, execution model) with the operation that detected it.
type ContractError struct {
	Op  string // Operation that detected it (e.g. "generate_signals")
	Err error  // Underlying error
}

func (e *ContractError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// NewContractError creates a fatal contract violation error.
func NewContractError(op string, err error) *ContractError {
	return &ContractError{Op: op, Err: err}
}

// ConfigError represents a configuration error (never recoverable at runtime)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
