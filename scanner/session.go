package scanner

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/myafeier/qrcam/camera"
	"github.com/pkg/errors"
)

type State uint8

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "idle"
}

// Session 管理唯一的一个采集会话。
// 当前运行的 Run 保存在原子指针里，nil 即空闲；所有状态切换都用 CAS，
// 所以并发的 Start 只有一个能成功。
type Session struct {
	backend  camera.Backend
	notifier Notifier
	opts     Options
	metrics  *Metrics

	newDecoder func() decoder
	encode     func(img image.Image, quality, maxWidth int) (string, error)

	current atomic.Pointer[Run]

	mu   sync.Mutex
	last *Run // 最近一次启动的 Run，新会话要等它释放设备
}

func NewSession(backend camera.Backend, notifier Notifier, opts Options) *Session {
	return &Session{
		backend:    backend,
		notifier:   notifier,
		opts:       opts.normalized(),
		newDecoder: func() decoder { return newQRDecoder() },
		encode:     encodePreview,
	}
}

// Instrument 挂上 prometheus 指标，需在启动会话前调用
func (s *Session) Instrument(m *Metrics) {
	s.metrics = m
}

func (s *Session) State() State {
	if s.current.Load() != nil {
		return Capturing
	}
	return Idle
}

// Run 一次会话从启动到结束
type Run struct {
	ID     string
	Device camera.Device

	cancel context.CancelFunc
	done   chan struct{}
	msg    string
	err    error
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait 阻塞到循环结束，返回结束确认或者导致结束的错误
func (r *Run) Wait() (string, error) {
	<-r.done
	return r.msg, r.err
}

// Start 启动会话并阻塞到会话结束。ctx 取消等同于 Stop。
func (s *Session) Start(ctx context.Context) (string, error) {
	run, err := s.Launch(ctx)
	if err != nil {
		return "", err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		s.release(run)
	}
	return run.Wait()
}

// Launch 占用会话、打开第一个设备并在后台启动采集循环。
// 设备相关的错误同步返回，会话回到空闲状态。
func (s *Session) Launch(ctx context.Context) (run *Run, err error) {
	runCtx, cancel := context.WithCancel(context.Background())
	run = &Run{ID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	if !s.current.CompareAndSwap(nil, run) {
		cancel()
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err != nil {
			s.release(run)
			run.err = err
			close(run.done)
			run = nil
		}
	}()

	s.mu.Lock()
	prev := s.last
	s.last = run
	s.mu.Unlock()

	// Stop 或者调用方取消都会中断打开设备
	openCtx, cancelOpen := context.WithCancel(runCtx)
	defer cancelOpen()
	stopWatch := context.AfterFunc(ctx, cancelOpen)
	defer stopWatch()

	if prev != nil {
		select {
		case <-prev.done:
		case <-openCtx.Done():
			err = errors.WithStack(openCtx.Err())
			return
		}
	}

	if s.backend == nil {
		err = stageErr(StageDevice, ErrNoBackend)
		return
	}
	devices, err := s.backend.Devices()
	if err != nil {
		err = stageErr(StageDevice, err)
		return
	}
	if len(devices) == 0 {
		err = stageErr(StageDevice, ErrNoCamera)
		return
	}
	run.Device = devices[0]

	stream, err := s.backend.Open(openCtx, run.Device, s.opts.Resolution)
	if err != nil {
		err = stageErr(StageOpen, err)
		return
	}

	log.Printf("session %s: capturing from %s\n", run.ID, run.Device.Path)
	s.metrics.started()
	go s.loop(runCtx, run, stream)
	return
}

// Stop 通知循环退出，不等待设备关闭
func (s *Session) Stop() (string, error) {
	run := s.current.Load()
	if run == nil || !s.release(run) {
		return "", ErrNotRunning
	}
	return "camera stopped", nil
}

// Drain 等待最近一次启动的循环退出并关闭设备
func (s *Session) Drain(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return nil
	}
	select {
	case <-last.done:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// release 把会话从 run 切回空闲并取消它的 ctx，只有当前持有者能成功
func (s *Session) release(run *Run) bool {
	ok := s.current.CompareAndSwap(run, nil)
	run.cancel()
	return ok
}

func (s *Session) running(run *Run) bool {
	return s.current.Load() == run
}

func (s *Session) loop(ctx context.Context, run *Run, stream camera.Stream) {
	err := s.capture(ctx, run, stream)
	s.release(run)

	if e := stream.Close(); e != nil {
		log.Printf("session %s: close stream: %v\n", run.ID, e)
	}
	s.metrics.ended(err)
	if err != nil {
		log.Printf("session %s: terminated: %v\n", run.ID, err)
		run.err = err
	} else {
		log.Printf("session %s: ended\n", run.ID)
		run.msg = "camera session ended"
	}
	close(run.done)
}

func (s *Session) capture(ctx context.Context, run *Run, stream camera.Stream) error {
	decoder := s.newDecoder()
	for i := 0; s.running(run); i++ {
		frame, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || !s.running(run) {
				return nil
			}
			return stageErr(StageRead, err)
		}

		img, err := frame.Decode()
		if err != nil {
			return stageErr(StageDecode, err)
		}
		if s.opts.GrayscaleNormalize {
			img = grayscaleNormalize(img)
		}
		s.metrics.frame()

		text, found, err := decoder.decode(img)
		if err != nil {
			return stageErr(StageQR, err)
		}
		if found {
			if err = s.notifier.Emit(EventQRDetected, text); err != nil {
				if !s.running(run) {
					return nil
				}
				return stageErr(StageEmit, err)
			}
			s.metrics.detected()
			log.Printf("session %s: qr detected (%d bytes)\n", run.ID, len(text))
			s.current.CompareAndSwap(run, nil)
		}

		if s.opts.previewDue(i) {
			payload, err := s.encode(img, s.opts.JPEGQuality, s.opts.PreviewMaxWidth)
			if err != nil {
				return stageErr(StageEncode, err)
			}
			if err = s.notifier.Emit(EventCameraFrame, payload); err != nil {
				// 已经停止时前端可能先关闭了，不算错误
				if !s.running(run) {
					return nil
				}
				return stageErr(StageEmit, err)
			}
			s.metrics.preview()
		}

		if !s.running(run) {
			return nil
		}
		sleep(ctx, s.opts.InterFrameDelay)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
