package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	mb "github.com/goburrow/modbus"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// ErrGatewayUnreachable is returned when TCP connect exhausts its retries.
var ErrGatewayUnreachable = errors.New("gateway unreachable")

// Client is the per-gateway Modbus client surface the sensor reader uses.
// SetSlave mutates connection state, so all calls on one client must be
// serialized by the caller; the per-gateway sequential reader guarantees this.
type Client interface {
	SetSlave(id byte)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

type gatewayClient struct {
	handler *mb.TCPClientHandler
	client  mb.Client
}

func (c *gatewayClient) SetSlave(id byte) {
	c.handler.SlaveId = id
}

func (c *gatewayClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadHoldingRegisters(address, quantity)
}

// PoolConfig configures the gateway connection pool.
type PoolConfig struct {
	RequestTimeout  time.Duration // per Modbus request (default 5s)
	ConnectAttempts int           // TCP connect attempts before giving up (default 5)
	ConnectDelay    time.Duration // pause between connect attempts (default 2s)
	Logger          logging.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 5
	}
	if c.ConnectDelay == 0 {
		c.ConnectDelay = 2 * time.Second
	}
	return c
}

// Pool keeps at most one live Modbus TCP client per gateway endpoint,
// keyed by ip:port. Faulted entries are reconnected on the next Acquire.
//
// p.mu guards only the key -> entry map; dialing happens under the entry's
// own lock, so one gateway's retry window never stalls another gateway.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*poolEntry
	config  PoolConfig
	logger  logging.Logger
	retry   retrypolicy.RetryPolicy[any]
}

type poolEntry struct {
	mu           sync.Mutex
	client       *gatewayClient
	disconnected bool
}

// NewPool creates a gateway connection pool.
func NewPool(config PoolConfig) *Pool {
	config = config.withDefaults()
	return &Pool{
		clients: make(map[string]*poolEntry),
		config:  config,
		logger:  config.Logger,
		retry: retrypolicy.NewBuilder[any]().
			WithDelay(config.ConnectDelay).
			WithMaxRetries(config.ConnectAttempts - 1).
			Build(),
	}
}

// Acquire returns the connected client for the endpoint, dialing a new
// connection if none exists or the cached one is marked disconnected.
func (p *Pool) Acquire(endpoint models.GatewayEndpoint) (Client, error) {
	entry := p.entryFor(endpoint.Key())

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.client != nil && !entry.disconnected {
		return entry.client, nil
	}
	if entry.client != nil {
		_ = entry.client.handler.Close()
		entry.client = nil
	}

	key := endpoint.Key()
	handler := mb.NewTCPClientHandler(key)
	handler.Timeout = p.config.RequestTimeout

	err := failsafe.With(p.retry).Run(func() error {
		return handler.Connect()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnreachable, key, err)
	}

	entry.client = &gatewayClient{
		handler: handler,
		client:  mb.NewClient(handler),
	}
	entry.disconnected = false

	p.logger.WithField("gateway", key).Info("Gateway pool: connected")

	return entry.client, nil
}

// entryFor returns the endpoint's pool entry, creating it under the map lock.
// Only the map mutation is guarded here; no dialing happens under p.mu.
func (p *Pool) entryFor(key string) *poolEntry {
	p.mu.RLock()
	entry, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return entry
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.clients[key]; ok {
		return entry
	}
	entry = &poolEntry{}
	p.clients[key] = entry
	return entry
}

// MarkDisconnected records a fault on the endpoint; the next Acquire
// will reconnect.
func (p *Pool) MarkDisconnected(endpoint models.GatewayEndpoint) {
	key := endpoint.Key()

	p.mu.RLock()
	entry, ok := p.clients[key]
	p.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.client != nil && !entry.disconnected {
		entry.disconnected = true
		_ = entry.client.handler.Close()
		p.logger.WithField("gateway", key).Warn("Gateway pool: marked disconnected")
	}
}

// CloseAll tears down every pooled connection.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, entry := range p.clients {
		entry.mu.Lock()
		if entry.client != nil {
			_ = entry.client.handler.Close()
		}
		entry.mu.Unlock()
		delete(p.clients, key)
	}

	p.logger.Info("Gateway pool: closed all connections")
}
