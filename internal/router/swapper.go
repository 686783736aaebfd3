package router

import (
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/livefir/livenav/internal/dom"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns a configured HTML minifier (singleton).
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.AddFunc("text/html", html.Minify)
	})
	return minifier
}

// Hook re-wires a piece of embedded behavior over freshly mounted
// content, such as timestamp formatting or auto-growing text inputs.
type Hook func(doc *dom.Document)

// Swapper replaces the contents of the content mount point with a
// fetched fragment and re-runs the registered behavior hooks over it.
type Swapper struct {
	doc     *dom.Document
	mountID string

	mu    sync.Mutex
	hooks []Hook
}

// NewSwapper binds a swapper to a document and mount point.
func NewSwapper(doc *dom.Document, mountID string) *Swapper {
	return &Swapper{doc: doc, mountID: mountID}
}

// AddHook registers a behavior hook; hooks run in registration order
// after every swap.
func (s *Swapper) AddHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Swap minifies and mounts a fragment, then re-runs the hooks.
func (s *Swapper) Swap(fragmentHTML string) error {
	minified, err := getMinifier().String("text/html", fragmentHTML)
	if err != nil {
		// Mount the original when minification fails.
		minified = fragmentHTML
	}
	if err := s.doc.Mount(s.mountID, minified); err != nil {
		return err
	}
	s.runHooks()
	return nil
}

// Rescan re-runs the hooks without swapping, for content appended
// outside the swapper.
func (s *Swapper) Rescan() {
	s.runHooks()
}

func (s *Swapper) runHooks() {
	s.mu.Lock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		h(s.doc)
	}
}
