package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
)

// Server serves the interactive referral graph and its chain API.
type Server struct {
	graph      *graph.Graph
	title      string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a graph viewer for a finished simulation.
func NewServer(g *graph.Graph, title string) *Server {
	return &Server{
		graph: g,
		title: title,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the viewer's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/chains", s.handleChains)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiBaseURL := ""
	if addr := s.Addr(); addr != "" {
		apiBaseURL = "http://" + addr
	}
	html, err := RenderHTMLForServer(s.graph, s.title, apiBaseURL)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RenderJSON(s.graph))
}

// handleChains returns every referral chain passing through root, each
// starting at root.
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	if root == "" {
		http.Error(w, "missing 'root' query parameter", http.StatusBadRequest)
		return
	}
	if !s.graph.Has(root) {
		http.Error(w, "user not found: "+root, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChainsFrom(s.graph, root))
}

// ChainsFrom returns the suffixes of g's referral chains that start at id.
// A user with no referrals yields the single chain [id].
func ChainsFrom(g *graph.Graph, id string) [][]string {
	chains := [][]string{}
	for _, chain := range g.ReferralChains() {
		for i, member := range chain {
			if member == id {
				chains = append(chains, append([]string(nil), chain[i:]...))
				break
			}
		}
	}
	return chains
}
