package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotConnected is reported by [GatewayChecker] while the Discord gateway
// session is down.
var ErrNotConnected = errors.New("gateway not connected")

// GatewayChecker reports whether the Discord gateway session is up.
// connected is typically a closure over the session's DataReady flag.
func GatewayChecker(connected func() bool) Checker {
	return Checker{
		Name: "discord",
		Check: func(context.Context) error {
			if !connected() {
				return ErrNotConnected
			}
			return nil
		},
	}
}

// BinaryChecker reports whether an external binary the bot shells out to is
// available. probe resolves or runs the binary, for example exec.LookPath.
func BinaryChecker(name string, probe func(ctx context.Context) error) Checker {
	return Checker{
		Name:  name,
		Check: probe,
	}
}

// DirChecker reports whether dir exists and accepts new files.
func DirChecker(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return fmt.Errorf("not writable: %w", err)
			}
			path := f.Name()
			_ = f.Close()
			return os.Remove(filepath.Clean(path))
		},
	}
}
