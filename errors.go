package livenav

import (
	"errors"

	"github.com/livefir/livenav/internal/media"
	"github.com/livefir/livenav/internal/pager"
	"github.com/livefir/livenav/internal/router"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("client is closed")

// ErrRouteNotFound reports a path absent from the route table.
var ErrRouteNotFound = router.ErrRouteNotFound

// ErrTargetNotFound reports that a deep-linked item could not be
// located within the catch-up bounds.
var ErrTargetNotFound = pager.ErrTargetNotFound

// ErrUnknownMode reports a media mode outside the closed set.
var ErrUnknownMode = media.ErrUnknownMode
