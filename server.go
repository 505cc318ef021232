package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ===============================
// HTTP 服务
// ===============================

// Server 通过 HTTP 触发测试并提供最新报告
type Server struct {
	session *Session
	logger  *Logger
	ctx     context.Context
}

// NewServer 创建服务，ctx 结束后新触发的探测也会随之取消
func NewServer(ctx context.Context, session *Session, logger *Logger) *Server {
	return &Server{session: session, logger: logger, ctx: ctx}
}

// Routes 注册路由
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/benchmarks", s.handleStart)
		r.Get("/report", s.handleReport)
		r.Get("/report/html", s.handleReportHTML)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	gen, err := s.session.Start(s.ctx, req.Filename)
	if err != nil {
		if errors.Is(err, ErrInvalidFilename) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("开启批次失败: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]Generation{"generation": gen})
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	report := s.session.Latest()
	if report == nil {
		writeError(w, http.StatusNotFound, "no report yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, _ *http.Request) {
	report := s.session.Latest()
	if report == nil {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderHTML(w, report); err != nil {
		s.logger.Error("%v", err)
	}
}
