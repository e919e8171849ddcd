package worker

import "errors"

// errSocket is reported when the poller flags a fd with an error condition
// (EPOLLERR/EV_ERROR) rather than a read or write readiness edge; the
// underlying socket has no further detail to offer at that point.
var errSocket = errors.New("socket error reported by poller")
