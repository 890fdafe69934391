package trigger

import "errors"

var ErrLauncherClosed = errors.New("launcher is shut down")
