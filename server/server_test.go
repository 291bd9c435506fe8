package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/myafeier/qrcam/camera"
	"github.com/myafeier/qrcam/scanner"
	"github.com/prometheus/client_golang/prometheus"
)

func blankFrame(t *testing.T) camera.Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return camera.Frame{Format: camera.FormatEncoded, Data: buf.Bytes()}
}

type fixture struct {
	srv     *httptest.Server
	session *scanner.Session
	hub     *Hub
}

func newFixture(t *testing.T, backend camera.Backend) *fixture {
	t.Helper()
	hub := NewHub()
	opts := scanner.DefaultOptions()
	opts.InterFrameDelay = 5 * time.Millisecond
	opts.PreviewEveryNth = 1
	session := scanner.NewSession(backend, hub, opts)
	reg := prometheus.NewRegistry()
	session.Instrument(scanner.NewMetrics(reg))

	registry := NewRegistry()
	(&CameraCommands{Session: session, Notifier: hub}).Register(registry)

	s := &Server{Registry: registry, Hub: hub, Backend: backend, Gatherer: reg}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		session.Stop()
		hub.Close()
		srv.Close()
	})
	return &fixture{srv: srv, session: session, hub: hub}
}

func (f *fixture) invoke(t *testing.T, cmd string) (int, invokeResponse) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/invoke/"+cmd, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestStartStopCommands(t *testing.T) {
	src := camera.NewReplay(blankFrame(t))
	src.Loop = true
	f := newFixture(t, src)

	code, resp := f.invoke(t, "start_camera")
	if code != http.StatusOK || !resp.Ok || !strings.Contains(resp.Message, "camera started") {
		t.Fatalf("start: %d %+v", code, resp)
	}
	code, resp = f.invoke(t, "start_camera")
	if code != http.StatusConflict || resp.Ok {
		t.Fatalf("second start: %d %+v", code, resp)
	}
	code, resp = f.invoke(t, "stop_camera")
	if code != http.StatusOK || !resp.Ok {
		t.Fatalf("stop: %d %+v", code, resp)
	}
	code, _ = f.invoke(t, "stop_camera")
	if code != http.StatusConflict {
		t.Fatalf("second stop: %d", code)
	}
	code, _ = f.invoke(t, "reboot")
	if code != http.StatusNotFound {
		t.Fatalf("unknown command: %d", code)
	}
}

func TestPreviewEventsReachClient(t *testing.T) {
	src := camera.NewReplay(blankFrame(t))
	src.Loop = true
	f := newFixture(t, src)
	conn := f.dial(t)

	if code, resp := f.invoke(t, "start_camera"); code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, resp)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != scanner.EventCameraFrame || msg.Payload == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestLoopErrorReportedAsEvent(t *testing.T) {
	src := camera.NewReplay(camera.Frame{Format: camera.FormatMJPEG, Data: []byte("junk")})
	f := newFixture(t, src)
	conn := f.dial(t)

	if code, resp := f.invoke(t, "start_camera"); code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, resp)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Event == scanner.EventCameraError {
			if !strings.Contains(msg.Payload, "image decode") {
				t.Fatalf("unexpected error payload %q", msg.Payload)
			}
			break
		}
	}
	if f.session.State() != scanner.Idle {
		t.Fatalf("state = %s", f.session.State())
	}
}

func TestNoBackend(t *testing.T) {
	f := newFixture(t, nil)
	code, resp := f.invoke(t, "start_camera")
	if code != http.StatusServiceUnavailable || resp.Error == "" {
		t.Fatalf("start: %d %+v", code, resp)
	}
	res, err := http.Get(f.srv.URL + "/devices")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("devices: %d", res.StatusCode)
	}
}

func TestDevicesAndMetrics(t *testing.T) {
	f := newFixture(t, camera.NewReplay(blankFrame(t)))

	res, err := http.Get(f.srv.URL + "/devices")
	if err != nil {
		t.Fatal(err)
	}
	var list []camera.Device
	json.NewDecoder(res.Body).Decode(&list)
	res.Body.Close()
	if len(list) != 1 || list[0].Driver != "replay" {
		t.Fatalf("devices = %+v", list)
	}

	res, err = http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(res.Body)
	res.Body.Close()
	if !strings.Contains(buf.String(), "qrcam_capturing") {
		t.Fatalf("metrics missing gauge:\n%s", buf.String())
	}
}

func TestHubEmit(t *testing.T) {
	h := NewHub()
	if err := h.Emit("camera-frame", "x"); err != nil {
		t.Fatalf("emit without clients: %v", err)
	}
	h.Close()
	if err := h.Emit("camera-frame", "x"); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("ping", func(ctx context.Context) (string, error) { return "pong", nil })
	if msg, err := r.Invoke(context.Background(), "ping"); err != nil || msg != "pong" {
		t.Fatalf("invoke = %q, %v", msg, err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "ping" {
		t.Fatalf("names = %v", names)
	}
}
