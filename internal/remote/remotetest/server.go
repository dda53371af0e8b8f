// Package remotetest provides an in-process stand-in for the GitHub contents API.
package remotetest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// Server serves one file under /repos/{owner}/{repo}/contents/{path} with sha preconditions.
type Server struct {
	*httptest.Server

	Token string

	mu          sync.Mutex
	content     string
	sha         string
	exists      bool
	revision    int
	getStatus   []int
	putStatus   []int
	gets        int
	puts        int
	lastPutSHA  string
	lastMessage string
	lastQuery   string
	lastHeaders http.Header
}

// NewServer starts a server that accepts token as the only valid bearer token.
func NewServer(token string) *Server {
	server := &Server{Token: token}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	return server
}

// Seed stores base64 content as the current file and returns its sha.
func (s *Server) Seed(content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(content)
}

// Content returns the current base64 content and sha.
func (s *Server) Content() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content, s.sha, s.exists
}

// FailNextGet makes the next GETs answer with the given statuses, in order.
func (s *Server) FailNextGet(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getStatus = append(s.getStatus, statuses...)
}

// FailNextPut makes the next PUTs answer with the given statuses, in order.
func (s *Server) FailNextPut(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putStatus = append(s.putStatus, statuses...)
}

// Counts returns the number of GET and PUT requests served.
func (s *Server) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts
}

// LastPut returns the sha precondition and message of the latest PUT.
func (s *Server) LastPut() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPutSHA, s.lastMessage
}

// LastRequest returns the raw query and headers of the latest request.
func (s *Server) LastRequest() (string, http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery, s.lastHeaders
}

func (s *Server) storeLocked(content string) string {
	s.revision++
	s.content = content
	s.sha = fmt.Sprintf("sha-%d", s.revision)
	s.exists = true
	return s.sha
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastQuery = r.URL.RawQuery
	s.lastHeaders = r.Header.Clone()

	if !strings.Contains(r.URL.Path, "/contents/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.gets++
		if len(s.getStatus) > 0 {
			status := s.getStatus[0]
			s.getStatus = s.getStatus[1:]
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		if !s.exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"sha":      s.sha,
			"content":  wrap(s.content),
			"encoding": "base64",
		})
	case http.MethodPut:
		s.puts++
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
			return
		}
		s.lastPutSHA = body.SHA
		s.lastMessage = body.Message
		if len(s.putStatus) > 0 {
			status := s.putStatus[0]
			s.putStatus = s.putStatus[1:]
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		if s.exists && body.SHA == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
			return
		}
		if s.exists && body.SHA != s.sha {
			writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("is at %s but expected %s", s.sha, body.SHA)})
			return
		}
		if !s.exists && body.SHA != "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		status := http.StatusOK
		if !s.exists {
			status = http.StatusCreated
		}
		sha := s.storeLocked(body.Content)
		writeJSON(w, status, map[string]any{"content": map[string]string{"sha": sha}})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
	}
}

// wrap breaks base64 content into 60-column lines the way GitHub returns it.
func wrap(content string) string {
	var builder strings.Builder
	for index := 0; index < len(content); index += 60 {
		end := index + 60
		if end > len(content) {
			end = len(content)
		}
		builder.WriteString(content[index:end])
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
