package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
	"github.com/patrickjm/orderwatch/internal/monitor"
	"github.com/patrickjm/orderwatch/internal/portal"
	"github.com/patrickjm/orderwatch/internal/store"
)

// Server exposes the monitoring session and the order store over a local
// unix socket. The session is the process-wide singleton; the server only
// routes control calls to it.
type Server struct {
	session *monitor.Session
	store   *store.Store
	engine  browser.Engine
	cfg     config.Config
	log     *slog.Logger

	mu       sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

func NewServer(session *monitor.Session, st *store.Store, engine browser.Engine, cfg config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		session: session,
		store:   st,
		engine:  engine,
		cfg:     cfg,
		log:     log,
		stop:    make(chan struct{}),
	}
}

func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handleRequest(req)
		_ = enc.Encode(resp)
		if req.Method == "Stop" {
			return
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	result, err := s.dispatch(req)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	if result == nil {
		return Response{ID: req.ID}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: b}
}

// dispatch serializes session lifecycle calls under s.mu; everything else
// runs concurrently so a slow Start or Scrape never stalls Status.
func (s *Server) dispatch(req Request) (any, error) {
	switch req.Method {
	case "Status":
		return s.status()
	case "StartMonitoring":
		var params StartParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		creds := portal.Credentials{Email: params.Email, Password: params.Password}
		s.mu.Lock()
		result := s.session.Start(creds, s.store.Sink())
		s.mu.Unlock()
		return result, nil
	case "StopMonitoring":
		s.mu.Lock()
		s.session.Stop()
		s.mu.Unlock()
		return nil, nil
	case "Orders":
		var params OrdersParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, err
			}
		}
		records, err := s.store.ListOrders(params.Undelivered)
		if err != nil {
			return nil, err
		}
		return OrdersResult{Orders: records}, nil
	case "MarkDelivered":
		var params DeliverParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, s.store.MarkDelivered(params.OrderID)
	case "Scrape":
		var params ScrapeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		creds := portal.Credentials{Email: params.Email, Password: params.Password}
		orders, err := monitor.Scrape(s.engine, s.cfg, creds, s.log)
		if err != nil {
			return nil, err
		}
		result := ScrapeResult{Orders: orders}
		if params.Save {
			if err := s.store.UpsertOrders(orders); err != nil {
				return nil, err
			}
			result.Saved = true
		}
		return result, nil
	case "Stop":
		s.mu.Lock()
		s.session.Stop()
		s.mu.Unlock()
		s.stopOnce.Do(func() { close(s.stop) })
		return nil, nil
	default:
		return nil, errors.New("unknown method")
	}
}

func (s *Server) status() (StatusResult, error) {
	count, err := s.store.Count()
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		Monitoring: s.session.Status(),
		Reason:     string(s.session.Reason()),
		Seen:       s.session.SeenCount(),
		Orders:     count,
	}, nil
}

// ServeDaemon binds the socket and serves until Stop. The caller owns the
// session and store lifecycles.
func ServeDaemon(socketPath string, server *Server) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return err
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer l.Close()
	go func() {
		<-server.stop
		_ = l.Close()
	}()
	return server.Serve(l)
}

func WriteInfo(path string, info Info) error {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
