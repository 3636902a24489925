package safe

import (
	"AreaLink/logger"
)

// SafeGo starts a new goroutine that recovers from panic,
// so a misbehaving handler never takes the gateway down with it.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// Recover is the deferred form for goroutines that are not started here.
func Recover(where string) {
	if r := recover(); r != nil {
		logger.Errorf("[%s] panic recovered: %v", where, r)
	}
}
