package client

// Execution is a request being prepared and sent in the background.
type Execution struct {
	done   chan struct{}
	cancel func()
	result Result
}

// Done returns a channel that is closed when the execution has finished.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution has finished and returns its result.
func (e *Execution) Wait() Result {
	<-e.done
	return e.result
}

// Terminate cancels the execution, an in flight request is aborted and any websocket
// session closed. It is safe to call more than once and after the execution has finished.
func (e *Execution) Terminate() {
	e.cancel()
}
