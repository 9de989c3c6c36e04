package guard

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/ordbridge/teleburnd/internal/util.SafeGo.func1"),
	)
}
