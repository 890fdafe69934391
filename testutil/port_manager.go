package testutil

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	minContainerPort = 15000
	maxContainerPort = 25000
	maxPortAttempts  = 50
)

var (
	portManagerInstance *portManager
	portManagerOnce     sync.Once
)

// portManager hands out host ports for containers so parallel suites do not collide.
type portManager struct {
	mu        sync.Mutex
	usedPorts map[int]bool
	rng       *rand.Rand
}

func getPortManager() *portManager {
	portManagerOnce.Do(func() {
		portManagerInstance = &portManager{
			usedPorts: make(map[int]bool),
			rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		}
	})
	return portManagerInstance
}

func (pm *portManager) reservePort() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for range maxPortAttempts {
		port := minContainerPort + pm.rng.Intn(maxContainerPort-minContainerPort+1)
		if pm.usedPorts[port] || !portIsFree(port) {
			continue
		}
		pm.usedPorts[port] = true
		return port, nil
	}

	return 0, fmt.Errorf("failed to find available port after %d attempts", maxPortAttempts)
}

func (pm *portManager) releasePort(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	delete(pm.usedPorts, port)
}

func portIsFree(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
