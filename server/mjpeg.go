package server

import (
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/myafeier/qrcam/scanner"
	"github.com/pkg/errors"
)

const boundary = "\r\n--frame\r\nContent-Type: image/jpeg\r\n\r\n"

// MJPEG 把预览帧以 multipart/x-mixed-replace 的方式推给浏览器，
// 只关心 camera-frame 事件，其他事件忽略
type MJPEG struct {
	mu      sync.Mutex
	viewers map[chan []byte]struct{}
	closed  bool
}

func NewMJPEG() *MJPEG {
	return &MJPEG{viewers: make(map[chan []byte]struct{})}
}

func (m *MJPEG) Emit(event, payload string) error {
	if event != scanner.EventCameraFrame {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errors.Wrap(err, "decode preview")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.viewers {
		select {
		case ch <- data:
		default:
			// 浏览器跟不上就丢帧
		}
	}
	return nil
}

// Viewers 当前观看人数
func (m *MJPEG) Viewers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

func (m *MJPEG) subscribe() (chan []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	ch := make(chan []byte, 2)
	m.viewers[ch] = struct{}{}
	return ch, true
}

func (m *MJPEG) unsubscribe(ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewers[ch]; ok {
		delete(m.viewers, ch)
		close(ch)
	}
}

// 获取mjpeg视频流
func (m *MJPEG) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, ok := m.subscribe()
	if !ok {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer m.unsubscribe(ch)

	w.Header().Add("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if _, err := io.WriteString(w, boundary); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				log.Printf("mjpeg viewer %s: %v\n", r.RemoteAddr, err)
				return
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Close 结束所有观看连接
func (m *MJPEG) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for ch := range m.viewers {
		delete(m.viewers, ch)
		close(ch)
	}
}

// Tee 把同一个事件发给多个 Notifier，返回第一个错误
type Tee []scanner.Notifier

func (t Tee) Emit(event, payload string) error {
	var first error
	for _, n := range t {
		if err := n.Emit(event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
