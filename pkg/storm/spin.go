package storm

import "runtime"

// yieldSpin backs every "yield-spin" point spec.md calls for (blocking
// send, processReceivedData's ProcessData retries). runtime.Gosched is the Go analogue of
// std::this_thread::yield() -- it cedes the OS thread without parking the
// goroutine on a timer.
func yieldSpin() {
	runtime.Gosched()
}
