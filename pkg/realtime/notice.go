package realtime

import "github.com/yanun0323/logs"

const (
	noticeConnectionFailed   = "realtime connection failed, reconnect to try again"
	noticeConnectionRestored = "realtime connection restored"
)

type logNotifier struct{}

func (logNotifier) Success(message string) { logs.Infof("notice: %s", message) }
func (logNotifier) Error(message string)   { logs.Errorf("notice: %s", message) }
func (logNotifier) Info(message string)    { logs.Infof("notice: %s", message) }
