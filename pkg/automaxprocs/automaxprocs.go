package automaxprocs

import (
	"fmt"
	"runtime"

	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/cockroachdb/errors"
	"go.uber.org/automaxprocs/maxprocs"
)

// Init sets GOMAXPROCS to match the Linux container CPU quota (if any).
// It is a no-op on non-Linux systems and in Linux environments without a
// configured CPU quota.
func Init() error {
	setMaxProcsLogger := func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "package", "automaxprocs")
	}

	if _, err := maxprocs.Set(maxprocs.Logger(setMaxProcsLogger), maxprocs.Min(1)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Current returns the current value of GOMAXPROCS.
func Current() int {
	return runtime.GOMAXPROCS(0)
}
