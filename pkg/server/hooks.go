package server

import (
	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"go.uber.org/zap"
)

// HookFunc receives the resolved path and the open file. The file is only
// valid for the duration of the call.
type HookFunc func(path string, f storage.File)

// Hooks are optional notifications run synchronously by each session.
type Hooks struct {
	ReadStarted    HookFunc
	ReadCompleted  HookFunc
	WriteStarted   HookFunc
	WriteCompleted HookFunc
}

// notify runs hook and swallows its panics.
func notify(l *zap.SugaredLogger, event string, hook HookFunc, path string, f storage.File) {
	if hook == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.Errorf("%s hook panicked: %v", event, r)
		}
	}()

	hook(path, f)
}
