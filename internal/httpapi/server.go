package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adred-codev/topichub/internal/broker"
)

// Server is the HTTP control plane: topic management plus the health and
// stats read endpoints.
type Server struct {
	broker *broker.Broker
	logger zerolog.Logger
}

func NewServer(b *broker.Broker, logger zerolog.Logger) *Server {
	return &Server{
		broker: b,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}
}

// Register mounts the control plane on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/topics", s.handleTopics)
	mux.HandleFunc("/topics/", s.handleTopicByName)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]any{"topics": s.broker.ListTopics()})
	case http.MethodPost:
		s.createTopic(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.Name == "" {
		s.writeError(w, http.StatusBadRequest, "Topic name is required")
		return
	}

	if err := s.broker.CreateTopic(body.Name); err != nil {
		if errors.Is(err, broker.ErrTopicExists) {
			s.writeError(w, http.StatusConflict, "Topic already exists")
			return
		}
		s.logger.Error().Err(err).Str("topic", body.Name).Msg("Topic create failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Str("topic", body.Name).Msg("Topic created")
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "topic": body.Name})
}

func (s *Server) handleTopicByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/topics/")
	if name == "" || strings.Contains(name, "/") {
		s.writeError(w, http.StatusNotFound, "Topic not found")
		return
	}

	if err := s.broker.DeleteTopic(name); err != nil {
		if errors.Is(err, broker.ErrTopicNotFound) {
			s.writeError(w, http.StatusNotFound, "Topic not found")
			return
		}
		s.logger.Error().Err(err).Str("topic", name).Msg("Topic delete failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Str("topic", name).Msg("Topic deleted")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "topic": name})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.broker.Health())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"topics": s.broker.Stats()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
