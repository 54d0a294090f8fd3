package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
)

// Setup wires SIGINT/SIGTERM to cooperative cancellation: the first signal
// invokes cancel and lets the running pass stop at the next frame
// boundary; a second signal exits immediately.
func Setup(cancel func(), log *zap.Logger) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("stop requested, finishing current frame", zap.String("signal", sig.String()))
		cancel()

		sig = <-sigChan
		log.Warn("forced shutdown", zap.String("signal", sig.String()))
		os.Exit(1)
	}()
}

// OptimalWorkers returns a worker count for CPU-bound image work. With
// CGo-backed image processing, saturating every core causes contention.
func OptimalWorkers() int {
	maxProcs := (runtime.NumCPU() * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}
	return maxProcs
}
