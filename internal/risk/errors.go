package risk

import (
	"errors"
	"fmt"
)

// ErrComputation is the root of every failure raised by the sizing functions
var ErrComputation = errors.New("risk computation error")

var (
	ErrInvalidRiskDistance  = fmt.Errorf("%w: entry and stop prices are equal", ErrComputation)
	ErrInvalidAccountValue  = fmt.Errorf("%w: account value must be positive", ErrComputation)
	ErrInvalidPrice         = fmt.Errorf("%w: entry price must be positive", ErrComputation)
	ErrInvalidRiskTolerance = fmt.Errorf("%w: risk percent must not be negative", ErrComputation)
)
