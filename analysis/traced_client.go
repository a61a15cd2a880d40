package analysis

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"coach/log"
)

// NetworkMetrics are per-request timings gathered through httptrace.
type NetworkMetrics struct {
	DNS        time.Duration
	TCP        time.Duration
	TLS        time.Duration
	TTFB       time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *NetworkMetrics) logFields(uploadBytes int) log.NetworkMetrics {
	return log.NetworkMetrics{
		DNSMs:      float64(m.DNS.Milliseconds()),
		TLSMs:      float64(m.TLS.Milliseconds()),
		TTFBMs:     float64(m.TTFB.Milliseconds()),
		TotalMs:    float64(m.Total.Milliseconds()),
		UploadKB:   float64(uploadBytes) / 1024,
		ConnReused: m.ConnReused,
	}
}

// maxResponseBytes bounds how much of a response body is read into memory.
const maxResponseBytes = 4 << 20

type tracedClient struct {
	client *http.Client
}

func newTracedClient() *tracedClient {
	return &tracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type tracedResponse struct {
	Body       []byte
	StatusCode int
	Metrics    *NetworkMetrics
}

// requestTrace collects httptrace timestamps. The transport fires the hooks
// from its read and write goroutines, so every field is guarded by mu.
type requestTrace struct {
	mu                                  sync.Mutex
	m                                   NetworkMetrics
	dnsStart, tcpStart, tlsStart, wrote time.Time
}

func (t *requestTrace) do(fn func()) {
	t.mu.Lock()
	fn()
	t.mu.Unlock()
}

func (t *requestTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			t.do(func() { t.m.ConnReused = info.Reused })
		},
		DNSStart: func(httptrace.DNSStartInfo) { t.do(func() { t.dnsStart = time.Now() }) },
		DNSDone: func(httptrace.DNSDoneInfo) {
			t.do(func() { t.m.DNS = time.Since(t.dnsStart) })
		},
		ConnectStart: func(_, _ string) { t.do(func() { t.tcpStart = time.Now() }) },
		ConnectDone: func(_, _ string, _ error) {
			t.do(func() { t.m.TCP = time.Since(t.tcpStart) })
		},
		TLSHandshakeStart: func() { t.do(func() { t.tlsStart = time.Now() }) },
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			t.do(func() { t.m.TLS = time.Since(t.tlsStart) })
		},
		WroteRequest: func(httptrace.WroteRequestInfo) { t.do(func() { t.wrote = time.Now() }) },
		GotFirstResponseByte: func() {
			t.do(func() {
				if !t.wrote.IsZero() {
					t.m.TTFB = time.Since(t.wrote)
				}
			})
		},
	}
}

func (t *requestTrace) metrics(total time.Duration) *NetworkMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.m
	m.Total = total
	return &m
}

// Do sends req and reads the whole (bounded) body. A non-nil error means no
// usable response was received.
func (c *tracedClient) Do(req *http.Request) (*tracedResponse, error) {
	rt := &requestTrace{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), rt.clientTrace()))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &tracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Metrics:    rt.metrics(time.Since(reqStart)),
	}, nil
}
