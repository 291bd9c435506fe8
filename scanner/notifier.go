package scanner

const (
	EventQRDetected  = "qr-detected"
	EventCameraFrame = "camera-frame"
	EventCameraError = "camera-error"
)

// Notifier 把事件推送给前端，返回错误会终止采集循环
type Notifier interface {
	Emit(event, payload string) error
}

type NotifierFunc func(event, payload string) error

func (f NotifierFunc) Emit(event, payload string) error {
	return f(event, payload)
}
