package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/franckalain/labelverdict/internal/ml"
	"github.com/franckalain/labelverdict/internal/models"
)

const (
	messageMissingInput = "Image and age are required"
	messageFailed       = "Failed to analyze product. Please try again."
)

// Analyzer performs one analysis. ml.Gateway implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error)
}

// Options tune the HTTP surface
type Options struct {
	StaticDir      string
	Debug          bool
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// Persona applies to requests that do not choose one
	Persona models.Persona
	// AllowedOrigins enables CORS when the frontend is served from another origin
	AllowedOrigins []string
}

type Server struct {
	analyzer Analyzer
	opts     Options
	log      *slog.Logger
	router   *chi.Mux
	sockets  *socketRegistry
}

func New(analyzer Analyzer, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 20 << 20
	}
	s := &Server{
		analyzer: analyzer,
		opts:     opts,
		log:      log,
		sockets:  newSocketRegistry(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.opts.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	// WebSocket connections outlive the request timeout.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Post("/api/analyze", s.handleAnalyze)
	})

	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on port until SIGINT or SIGTERM, then drains open requests
func (s *Server) Start(port string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx, ":"+port)
}

// Run serves on addr until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("Starting server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("Shutting down server...")
		s.sockets.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// analyzeBody is the wire form of an analysis request
type analyzeBody struct {
	Image              string                     `json:"image"`
	Text               string                     `json:"text"`
	Age                json.RawMessage            `json:"age"`
	Goals              []models.NutritionGoal     `json:"goals"`
	DietaryPreferences []models.DietaryPreference `json:"dietaryPreferences"`
	Persona            models.Persona             `json:"persona"`
}

// toRequest converts the wire body. The age may arrive as a number or a
// numeric string.
func (b *analyzeBody) toRequest(persona models.Persona) (*models.AnalysisRequest, error) {
	age, ok := parseAge(b.Age)
	if !ok || (strings.TrimSpace(b.Image) == "" && strings.TrimSpace(b.Text) == "") {
		return nil, models.NewValidationError(messageMissingInput)
	}

	req := &models.AnalysisRequest{
		Text:               b.Text,
		Age:                age,
		Goals:              b.Goals,
		DietaryPreferences: b.DietaryPreferences,
		Persona:            b.Persona,
	}
	if req.Persona == "" {
		req.Persona = persona
	}
	if strings.TrimSpace(b.Image) != "" {
		data, mime, err := ml.DecodeImage(b.Image)
		if err != nil {
			return nil, err
		}
		req.Image = data
		req.ImageMIME = mime
	}
	return req, nil
}

func parseAge(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n), n > 0 && n == float64(int(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || age <= 0 {
		return 0, false
	}
	return age, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var body analyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Image is too large", models.CodeValidation)
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request body", models.CodeValidation)
		return
	}

	req, err := body.toRequest(s.opts.Persona)
	if err == nil {
		var result *models.AnalysisResult
		result, err = s.analyzer.Analyze(r.Context(), req)
		if err == nil {
			respondJSON(w, http.StatusOK, result)
			return
		}
	}

	status, message, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Error analyzing product", "error", err, "code", code, "request_id", middleware.GetReqID(r.Context()))
	}
	respondError(w, status, message, code)
}

// classify maps an analysis error to its HTTP status, user message and code
func classify(err error) (int, string, string) {
	code := models.ErrorCode(err)
	if code == models.CodeValidation {
		message := strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": ")
		return http.StatusBadRequest, message, code
	}
	return http.StatusInternalServerError, messageFailed, code
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
