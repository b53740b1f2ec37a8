package upload

// tokenDispenser bounds concurrency to n concurrent holders, the same
// concept pikpak/multipart.go uses lib/pacer.TokenDispenser for: acquire
// a token before starting a worker, release it when the worker's buffer
// can be reused. Reimplemented locally as a buffered channel semaphore
// since lib/pacer itself wasn't part of the retrieval pack's az-relevant
// subset.
type tokenDispenser chan struct{}

func newTokenDispenser(n int) tokenDispenser {
	if n < 1 {
		n = 1
	}
	return make(tokenDispenser, n)
}

func (t tokenDispenser) Get() { t <- struct{}{} }

func (t tokenDispenser) Put() { <-t }
