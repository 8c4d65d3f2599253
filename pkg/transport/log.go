package transport

import (
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// leveledLogger routes retryablehttp messages to the global logger, with
// info demoted to debug.
type leveledLogger struct{}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{"component": "transport"}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}

func (leveledLogger) Error(msg string, kv ...interface{}) {
	util.WithFields(fields(kv)).Error(msg)
}

func (leveledLogger) Warn(msg string, kv ...interface{}) {
	util.WithFields(fields(kv)).Warn(msg)
}

func (leveledLogger) Info(msg string, kv ...interface{}) {
	util.WithFields(fields(kv)).Debug(msg)
}

func (leveledLogger) Debug(msg string, kv ...interface{}) {
	util.WithFields(fields(kv)).Debug(msg)
}
