// Package telemetry bootstraps structured logging for the control plane.
// zap backs logr.Logger (pulled in transitively through
// controller-runtime/client-go, which both expect one); this package is
// what actually constructs and wires one, the way a controller-runtime
// based main.go ordinarily calls ctrl.SetLogger.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// Config selects the logging encoder/level for New.
type Config struct {
	Development bool
	Level       zapcore.Level
}

// New builds a logr.Logger backed by zap and installs it as
// controller-runtime's package-wide logger (client-go's leader-election
// code and controller-runtime's manager both log through that global, so
// every component in the scheduler shares one sink and one set of
// structured fields).
func New(cfg Config) (logr.Logger, func() error, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level)

	zl, err := zcfg.Build()
	if err != nil {
		return logr.Logger{}, nil, err
	}

	logger := zapr.NewLogger(zl)
	ctrllog.SetLogger(logger)
	return logger, zl.Sync, nil
}

// WithComponent returns a child logger tagged with the component name, the
// convention every actor (scheduler, kill service, GC) uses to keep logs
// attributable in a shared sink.
func WithComponent(base logr.Logger, component string) logr.Logger {
	return base.WithValues("component", component)
}
