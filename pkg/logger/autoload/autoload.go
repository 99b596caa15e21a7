// Package autoload initializes the global logger from the environment on
// import. Import for side effects only.
package autoload

import (
	configx "github.com/warit-san/deskmesh/pkg/config"
	logx "github.com/warit-san/deskmesh/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
