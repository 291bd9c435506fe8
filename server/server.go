package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/myafeier/qrcam/camera"
	"github.com/myafeier/qrcam/scanner"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 代替桌面壳：命令走 HTTP，事件走 websocket
type Server struct {
	Registry  *Registry
	Hub       *Hub
	Stream    *MJPEG
	Backend   camera.Backend
	Gatherer  prometheus.Gatherer
	StaticDir string
}

type invokeResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/invoke/{command}", s.invoke).Methods(http.MethodPost)
	r.HandleFunc("/devices", s.devices).Methods(http.MethodGet)
	if s.Hub != nil {
		r.Handle("/events", s.Hub).Methods(http.MethodGet)
	}
	if s.Stream != nil {
		r.Handle("/stream", s.Stream).Methods(http.MethodGet)
	}
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}
	return r
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["command"]
	msg, err := s.Registry.Invoke(r.Context(), name)
	if err != nil {
		log.Printf("invoke %s: %v\n", name, err)
		writeJSON(w, statusOf(err), invokeResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Ok: true, Message: msg})
}

func (s *Server) devices(w http.ResponseWriter, r *http.Request) {
	if s.Backend == nil {
		writeJSON(w, http.StatusServiceUnavailable, invokeResponse{Error: camera.ErrNoBackend.Error()})
		return
	}
	list, err := s.Backend.Devices()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, invokeResponse{Error: err.Error()})
		return
	}
	if list == nil {
		list = []camera.Device{}
	}
	writeJSON(w, http.StatusOK, list)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrAlreadyRunning), errors.Is(err, scanner.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, scanner.ErrNoBackend), errors.Is(err, scanner.ErrNoCamera):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v\n", err)
	}
}
