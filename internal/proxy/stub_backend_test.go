package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/schatten/schatten/internal/backend"
)

type recordedRequest struct {
	Method string
	URI    string
	Host   string
	Header http.Header
	Body   []byte
	// Arrived 是请求到达 stub 的时间，Finished 是响应写完、handler 返回前的时间。
	Arrived  time.Time
	Finished time.Time
}

// stubBackend 记录收到的请求并返回固定响应。
type stubBackend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest

	status int
	header http.Header
	body   string
	delay  time.Duration
}

func newStubBackend(t *testing.T, status int, body string, header http.Header) *stubBackend {
	t.Helper()
	return newDelayedStubBackend(t, 0, status, body, header)
}

// newDelayedStubBackend 在写响应前等待 delay，用来制造慢 backend。
func newDelayedStubBackend(t *testing.T, delay time.Duration, status int, body string, header http.Header) *stubBackend {
	t.Helper()
	stub := &stubBackend{status: status, body: body, header: header, delay: delay}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.Close)
	return stub
}

func (s *stubBackend) serve(w http.ResponseWriter, r *http.Request) {
	arrived := time.Now()
	payload, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	index := len(s.requests)
	s.requests = append(s.requests, recordedRequest{
		Method:  r.Method,
		URI:     r.RequestURI,
		Host:    r.Host,
		Header:  r.Header.Clone(),
		Body:    payload,
		Arrived: arrived,
	})
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	for key, values := range s.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(s.status)
	_, _ = io.WriteString(w, s.body)

	s.mu.Lock()
	s.requests[index].Finished = time.Now()
	s.mu.Unlock()
}

func (s *stubBackend) Requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *stubBackend) Backend(t *testing.T, name string) backend.Backend {
	t.Helper()
	return backendFromAddr(t, name, s.Listener.Addr().String())
}

// downBackend 返回一个已关闭端口上的 Backend，连接会被拒绝。
func downBackend(t *testing.T, name string) backend.Backend {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return backendFromAddr(t, name, addr)
}

func backendFromAddr(t *testing.T, name, addr string) backend.Backend {
	t.Helper()
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatalf("port %s: %v", portText, err)
	}
	return backend.New(name, host, port)
}
