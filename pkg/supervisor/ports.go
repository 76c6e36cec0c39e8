package supervisor

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

const healthProbeTimeout = 500 * time.Millisecond

// portAllocator hands out ports starting at start, serialized through a
// single chain so two concurrent spawns never race each other onto the
// same port (§4.9: "a serial chain: each allocation awaits the previous").
type portAllocator struct {
	mu     sync.Mutex
	host   string
	next   int
	client *http.Client
}

func newPortAllocator(host string, start int) *portAllocator {
	return &portAllocator{
		host:   host,
		next:   start,
		client: &http.Client{Timeout: healthProbeTimeout},
	}
}

// observe raises the allocator's floor so it never hands out a port at or
// below one already recorded on disk.
func (p *portAllocator) observe(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port >= p.next {
		p.next = port + 1
	}
}

// allocate returns the next port for which a health probe fails, i.e. one
// nothing is listening on (or nothing answering /health successfully).
func (p *portAllocator) allocate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		candidate := p.next
		p.next++
		if !p.isHealthy(candidate) {
			return candidate
		}
	}
}

func (p *portAllocator) isHealthy(port int) bool {
	url := fmt.Sprintf("http://%s:%d/health", p.host, port)
	resp, err := p.client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
