// Package realtime is the room-addressed pub/sub layer over live
// connections. Server-side callers publish through the Emit helpers;
// clients only join, leave, and (for drivers) publish location updates.
//
// Delivery is best-effort: a connection whose send buffer is full drops
// the event, and dropped connections are never retried. Events to the same
// room from the same producer are delivered in producer order.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

// sendBuffer is each connection's outbound queue. Overflow drops events.
const sendBuffer = 64

// VehicleDirectory resolves a vehicle to its owning company so vehicle
// room joins can be permission-checked.
type VehicleDirectory interface {
	VehicleCompany(ctx context.Context, vehicleID string) (string, error)
}

// Hooks carries connection gauge callbacks.
type Hooks struct {
	OnConnect    func()
	OnDisconnect func()
}

// Event is the wire envelope every room delivery uses.
type Event struct {
	Room    string    `json:"room"`
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// connection is one arena slot. Rooms reference connections by slot
// index, never by pointer.
type connection struct {
	principal *Principal
	send      chan []byte
	rooms     map[string]struct{}
	active    bool
}

// Hub owns the connection arena and the room index.
type Hub struct {
	mu     sync.Mutex
	conns  []*connection
	free   []int
	rooms  map[string]map[int]struct{}
	fleet  VehicleDirectory
	cache  store.Cache
	logger *zap.Logger
	hooks  Hooks
}

// NewHub creates a hub. fleet and cache may be nil: vehicle room joins are
// then refused for non-admins and location updates skip the position cache.
func NewHub(fleet VehicleDirectory, cache store.Cache, logger *zap.Logger, hooks Hooks) *Hub {
	if hooks.OnConnect == nil {
		hooks.OnConnect = func() {}
	}
	if hooks.OnDisconnect == nil {
		hooks.OnDisconnect = func() {}
	}
	return &Hub{
		rooms:  make(map[string]map[int]struct{}),
		fleet:  fleet,
		cache:  cache,
		logger: logger.With(zap.String("component", "realtime_hub")),
		hooks:  hooks,
	}
}

// Client is the caller-facing handle for one connection.
type Client struct {
	hub  *Hub
	slot int
}

// Register attaches a connection. principal may be nil (anonymous).
func (h *Hub) Register(principal *Principal) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn := &connection{
		principal: principal,
		send:      make(chan []byte, sendBuffer),
		rooms:     make(map[string]struct{}),
		active:    true,
	}

	var slot int
	if n := len(h.free); n > 0 {
		slot = h.free[n-1]
		h.free = h.free[:n-1]
		h.conns[slot] = conn
	} else {
		h.conns = append(h.conns, conn)
		slot = len(h.conns) - 1
	}

	h.hooks.OnConnect()
	return &Client{hub: h, slot: slot}
}

// Close detaches the connection and removes it from every room.
// Membership never outlives the connection.
func (c *Client) Close() {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	conn := h.conns[c.slot]
	if conn == nil || !conn.active {
		return
	}
	for key := range conn.rooms {
		h.removeFromRoom(key, c.slot)
	}
	conn.active = false
	close(conn.send)
	h.conns[c.slot] = nil
	h.free = append(h.free, c.slot)
	h.hooks.OnDisconnect()
}

// Receive exposes the connection's outbound event stream.
func (c *Client) Receive() <-chan []byte {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	conn := c.hub.conns[c.slot]
	if conn == nil {
		ch := make(chan []byte)
		close(ch)
		return ch
	}
	return conn.send
}

// sendDirect queues an event for this connection only, bypassing rooms.
// The write pump is the connection's single writer, so read-side replies
// must go through the send channel too. Full buffers drop, same as room
// delivery.
func (c *Client) sendDirect(eventType string, payload any) {
	env := Event{Room: "*", Type: eventType, Payload: payload, SentAt: time.Now().UTC()}
	b, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conns[c.slot]
	if conn == nil || !conn.active {
		return
	}
	select {
	case conn.send <- b:
	default:
		h.logger.Debug("dropping direct event for slow connection", zap.Int("slot", c.slot))
	}
}

// Join validates authorization and adds the connection to the room.
func (c *Client) Join(ctx context.Context, r Room) error {
	h := c.hub

	h.mu.Lock()
	conn := h.conns[c.slot]
	if conn == nil || !conn.active {
		h.mu.Unlock()
		return domain.ErrNotFound
	}
	principal := conn.principal
	h.mu.Unlock()

	if !canJoin(principal, r) {
		return domain.ErrRoomUnauthorized
	}
	if r.Scope == ScopeVehicle {
		if err := h.authorizeVehicle(ctx, principal, r.ID); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conn = h.conns[c.slot]
	if conn == nil || !conn.active {
		return domain.ErrNotFound
	}
	key := r.Key()
	conn.rooms[key] = struct{}{}
	members, ok := h.rooms[key]
	if !ok {
		members = make(map[int]struct{})
		h.rooms[key] = members
	}
	members[c.slot] = struct{}{}
	return nil
}

// Leave is idempotent.
func (c *Client) Leave(r Room) {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conns[c.slot]
	if conn == nil {
		return
	}
	key := r.Key()
	delete(conn.rooms, key)
	h.removeFromRoom(key, c.slot)
}

// authorizeVehicle requires an authenticated principal from the vehicle's
// owning company.
func (h *Hub) authorizeVehicle(ctx context.Context, p *Principal, vehicleID string) error {
	if p == nil {
		return domain.ErrRoomUnauthorized
	}
	if h.fleet == nil {
		return domain.ErrRoomUnauthorized
	}
	company, err := h.fleet.VehicleCompany(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("resolve vehicle owner: %w", err)
	}
	if company != p.CompanyID {
		return domain.ErrRoomUnauthorized
	}
	return nil
}

func (h *Hub) removeFromRoom(key string, slot int) {
	members, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(members, slot)
	if len(members) == 0 {
		delete(h.rooms, key)
	}
}

// emit delivers the event to every member of the room. Full buffers drop.
func (h *Hub) emit(r Room, eventType string, payload any) {
	env := Event{Room: r.Key(), Type: eventType, Payload: payload, SentAt: time.Now().UTC()}
	b, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("room", env.Room), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for slot := range h.rooms[r.Key()] {
		conn := h.conns[slot]
		if conn == nil || !conn.active {
			continue
		}
		select {
		case conn.send <- b:
		default:
			h.logger.Debug("dropping event for slow connection",
				zap.String("room", env.Room), zap.Int("slot", slot))
		}
	}
}

// Server-side broadcast helpers.

func (h *Hub) EmitToUser(userID, event string, payload any) {
	h.emit(Room{Scope: ScopeUser, ID: userID}, event, payload)
}

func (h *Hub) EmitToNotifications(userID, event string, payload any) {
	h.emit(Room{Scope: ScopeNotifications, ID: userID}, event, payload)
}

func (h *Hub) EmitToCompany(companyID, event string, payload any) {
	h.emit(Room{Scope: ScopeCompany, ID: companyID}, event, payload)
}

func (h *Hub) EmitToTracking(trackingID, event string, payload any) {
	h.emit(Room{Scope: ScopeTracking, ID: trackingID}, event, payload)
}

func (h *Hub) EmitToVehicle(vehicleID, event string, payload any) {
	h.emit(Room{Scope: ScopeVehicle, ID: vehicleID}, event, payload)
}

func (h *Hub) EmitToShipment(shipmentID, event string, payload any) {
	h.emit(Room{Scope: ScopeShipment, ID: shipmentID}, event, payload)
}

func (h *Hub) EmitToDashboard(companyID, event string, payload any) {
	h.emit(Room{Scope: ScopeDashboard, ID: companyID}, event, payload)
}

func (h *Hub) EmitToAlerts(companyID, event string, payload any) {
	h.emit(Room{Scope: ScopeAlerts, ID: companyID}, event, payload)
}

// BroadcastAlerts delivers to every joined alerts room, whichever company.
// Used by the health monitor for platform-wide incidents.
func (h *Hub) BroadcastAlerts(event string, payload any) {
	h.mu.Lock()
	var keys []string
	prefix := string(ScopeAlerts) + ":"
	for key := range h.rooms {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	h.mu.Unlock()

	for _, key := range keys {
		r, err := ParseRoom(key)
		if err != nil {
			continue
		}
		h.emit(r, event, payload)
	}
}

// Broadcast delivers to every live connection regardless of rooms.
func (h *Hub) Broadcast(event string, payload any) {
	env := Event{Room: "*", Type: event, Payload: payload, SentAt: time.Now().UTC()}
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		if conn == nil || !conn.active {
			continue
		}
		select {
		case conn.send <- b:
		default:
		}
	}
}

// LocationUpdate is the payload drivers publish and the server
// re-broadcasts to vehicle and tracking subscribers.
type LocationUpdate struct {
	VehicleID string    `json:"vehicle_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	At        time.Time `json:"at"`
}

// PublishLocation is the only client-originated publish path. The driver
// role is checked; the update is re-broadcast server-side and the last
// position is cached under tracking:vehicle:{id} for five minutes.
func (c *Client) PublishLocation(ctx context.Context, upd LocationUpdate) error {
	h := c.hub

	h.mu.Lock()
	conn := h.conns[c.slot]
	if conn == nil || !conn.active {
		h.mu.Unlock()
		return domain.ErrNotFound
	}
	principal := conn.principal
	h.mu.Unlock()

	if principal == nil || principal.Role != domain.RoleDriver {
		return domain.ErrNotDriver
	}
	if upd.At.IsZero() {
		upd.At = time.Now().UTC()
	}

	h.EmitToVehicle(upd.VehicleID, "location", upd)
	h.EmitToTracking(upd.VehicleID, "location", upd)

	if h.cache != nil {
		if b, err := json.Marshal(upd); err == nil {
			if err := h.cache.Set(ctx, store.VehiclePositionKey(upd.VehicleID), b, 5*time.Minute); err != nil {
				h.logger.Warn("failed to cache vehicle position",
					zap.String("vehicle_id", upd.VehicleID), zap.Error(err))
			}
		}
	}
	return nil
}

// ConnectionCount reports live connections for the metrics gauge.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, conn := range h.conns {
		if conn != nil && conn.active {
			n++
		}
	}
	return n
}
