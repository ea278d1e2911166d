package applier

import (
	"errors"
	"net"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	utilnet "k8s.io/apimachinery/pkg/util/net"
)

// IsTransient reports whether a cluster error is worth retrying: throttling,
// timeouts, server-side failures, optimistic-concurrency conflicts and
// broken connections. Everything else is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case apierrors.IsTooManyRequests(err),
		apierrors.IsServerTimeout(err),
		apierrors.IsTimeout(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsUnexpectedServerError(err),
		apierrors.IsConflict(err):
		return true
	case apierrors.IsInvalid(err),
		apierrors.IsForbidden(err),
		apierrors.IsBadRequest(err),
		apierrors.IsUnauthorized(err),
		apierrors.IsNotFound(err),
		apierrors.IsMethodNotSupported(err),
		meta.IsNoMatchError(err):
		return false
	}
	if status, ok := err.(apierrors.APIStatus); ok || errors.As(err, &status) {
		code := status.Status().Code
		return code == 500 || code == 502 || code == 503 || code == 504 || code == 429
	}
	if utilnet.IsConnectionReset(err) || utilnet.IsConnectionRefused(err) || utilnet.IsProbableEOF(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
