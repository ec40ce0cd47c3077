package workflow

import (
	"errors"

	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
)

// State 控制器状态
type State int32

const (
	StateIdle State = iota
	StateBusy
)

// String returns "idle" or "busy".
func (s State) String() string {
	if s == StateBusy {
		return "busy"
	}
	return "idle"
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrBusy is returned when a trigger arrives while a cycle is in flight.
var ErrBusy = types.NewError(types.ErrBusy, "an export is already in progress")

// IsBusy reports whether err is a busy rejection.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy) || types.IsCode(err, types.ErrBusy)
}

// Outcome 一次触发的结果，代替对外部 UI 状态的修改
type Outcome struct {
	// State 返回时控制器的状态；被拒绝时为 Busy
	State        State
	Identity     identity.Identity
	Result       *publish.Result
	Placeholders []types.Format
	Err          error
}

// Succeeded reports whether the cycle produced a result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil
}
