package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 进程级日志器，测试中未初始化时也可直接使用
var Log = logrus.New()

// Bootstrap 按配置初始化日志级别与格式（text / json）
func Bootstrap(level, format string) {
	logger := logrus.New()
	logger.Out = os.Stdout
	logger.SetReportCaller(true)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		logger.Warnf("无效的日志级别 %q，使用 info", level)
	}
	logger.SetLevel(lvl)

	Log = logger
}
