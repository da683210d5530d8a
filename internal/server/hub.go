package server

import (
	"context"
	"log/slog"
	"sync"
)

// Hub owns the set of live WebSocket clients. It starts their pumps on
// registration, runs the removal callback exactly once per client, and
// closes every connection on shutdown.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger

	onRegister func(*Client)
	onRemove   func(*Client)
}

// NewHub creates a hub. onRemove runs after a client has been taken out of
// the hub, on the goroutine that removed it.
func NewHub(logger *slog.Logger, onRegister, onRemove func(*Client)) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if onRegister == nil {
		onRegister = func(*Client) {}
	}
	if onRemove == nil {
		onRemove = func(*Client) {}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
		onRegister: onRegister,
		onRemove:   onRemove,
	}
}

// Register hands a client to the hub. It returns false if the hub has
// already stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. After shutdown the removal happens inline.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.remove(c)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's event loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	h.onRegister(client)
	h.log.Info("client registered", "conn", client.id, "addr", client.addr, "clients", count)

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}
	h.onRemove(client)
	client.closeSend()
	h.log.Info("client unregistered", "conn", client.id, "addr", client.addr, "clients", count)
}

// shutdownClients closes all client connections. The read pumps then
// unregister their clients inline.
func (h *Hub) shutdownClients() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			h.remove(client)
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("close client connection", "conn", client.id, "err", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to finish or
// for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn("hub shutdown deadline reached, some goroutines may still be running")
		return ctx.Err()
	}
}
