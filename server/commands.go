package server

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/myafeier/qrcam/scanner"
	"github.com/pkg/errors"
)

var ErrUnknownCommand = errors.New("unknown command")

// CommandFunc 前端可调用的命令，返回给前端的是一段文本
type CommandFunc func(ctx context.Context) (string, error)

// Registry 命令注册表
type Registry struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]CommandFunc)}
}

func (r *Registry) Register(name string, fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = fn
}

func (r *Registry) Invoke(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	fn, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return "", errors.Wrap(ErrUnknownCommand, name)
	}
	return fn(ctx)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CameraCommands 把会话暴露成 start_camera / stop_camera 两个命令
type CameraCommands struct {
	Session  *scanner.Session
	Notifier scanner.Notifier // 循环出错时推送 camera-error
}

func (c *CameraCommands) Register(r *Registry) {
	r.Register("start_camera", c.StartCamera)
	r.Register("stop_camera", c.StopCamera)
}

func (c *CameraCommands) StartCamera(ctx context.Context) (string, error) {
	run, err := c.Session.Launch(ctx)
	if err != nil {
		return "", err
	}
	go c.watch(run)
	return fmt.Sprintf("camera started (session %s)", run.ID), nil
}

func (c *CameraCommands) StopCamera(ctx context.Context) (string, error) {
	return c.Session.Stop()
}

// 前端调用 start_camera 时已经拿到了成功的返回，循环之后的错误只能用事件通知
func (c *CameraCommands) watch(run *scanner.Run) {
	_, err := run.Wait()
	if err == nil || c.Notifier == nil {
		return
	}
	if e := c.Notifier.Emit(scanner.EventCameraError, err.Error()); e != nil {
		log.Printf("session %s: report error: %v\n", run.ID, e)
	}
}
