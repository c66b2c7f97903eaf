package stream

// Observer receives decode-loop activity. Implementations must be safe for
// concurrent use across connections.
type Observer interface {
	Received(n int)
	Decoded(n int)
	Pending(n int)
	Failed(err error)
}

type nopObserver struct{}

func (nopObserver) Received(int) {}
func (nopObserver) Decoded(int)  {}
func (nopObserver) Pending(int)  {}
func (nopObserver) Failed(error) {}
