package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/arpublish/codec"
)

// 任意阶段失败时：Presenter 恰好收到一次结果或失败，忙碌回调成对出现，
// 失败阶段之后的阶段不会执行。
func TestProperty_FailureContainment(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one notice and balanced busy callbacks", prop.ForAll(
		func(failAt int, runs int) bool {
			boom := errors.New("boom")
			log := &callLog{}
			exp := &stubExporter{}
			enc := &stubEncoder{log: log, inner: codec.NewEncoder(nil)}
			pub := &stubPublisher{}
			switch failAt {
			case 1:
				exp.err = boom
			case 2:
				enc.err = boom
			case 3:
				pub.err = boom
			}
			presenter := &recordingPresenter{}
			c := newTestController(t, Deps{Exporter: exp, Encoder: enc, Publisher: pub, Presenter: presenter})

			for i := 0; i < runs; i++ {
				out := c.Run(context.Background())
				if (failAt == 0) != (out.Err == nil) || out.State != StateIdle {
					return false
				}
			}

			if len(presenter.results)+len(presenter.failures) != runs {
				return false
			}
			if len(presenter.busy) != 2*runs {
				return false
			}
			for i, b := range presenter.busy {
				if b != (i%2 == 0) {
					return false
				}
			}
			wantPublishes := int32(runs)
			if failAt == 1 || failAt == 2 {
				wantPublishes = 0
			}
			return pub.calls.Load() == wantPublishes && c.State() == StateIdle
		},
		gen.IntRange(0, 3),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
