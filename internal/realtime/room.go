package realtime

import (
	"strings"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// Scope is the namespace half of a room key.
type Scope string

const (
	ScopeUser             Scope = "user"
	ScopeCompany          Scope = "company"
	ScopeTracking         Scope = "tracking"
	ScopeVehicle          Scope = "vehicle"
	ScopeDashboard        Scope = "dashboard"
	ScopeAlerts           Scope = "alerts"
	ScopeNotifications    Scope = "notifications"
	ScopeShipment         Scope = "shipment"
	ScopeCompanyShipments Scope = "shipments:company"
	ScopeDriverShipments  Scope = "shipments:driver"
)

// Room is an addressable multicast group. Membership is per live
// connection and dies with it.
type Room struct {
	Scope Scope
	ID    string
}

func (r Room) Key() string {
	return string(r.Scope) + ":" + r.ID
}

// scopes ordered longest-prefix first so shipments:company parses before
// a hypothetical "shipments" scope would.
var knownScopes = []Scope{
	ScopeCompanyShipments, ScopeDriverShipments,
	ScopeUser, ScopeCompany, ScopeTracking, ScopeVehicle,
	ScopeDashboard, ScopeAlerts, ScopeNotifications, ScopeShipment,
}

// ParseRoom turns a wire key like "shipments:company:abc" back into a Room.
func ParseRoom(key string) (Room, error) {
	for _, s := range knownScopes {
		prefix := string(s) + ":"
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return Room{Scope: s, ID: key[len(prefix):]}, nil
		}
	}
	return Room{}, domain.ErrRoomInvalid
}

// Principal is the authenticated identity bound to a connection.
// A nil principal is an anonymous connection.
type Principal struct {
	UserID    string
	CompanyID string
	Role      string
}

// canJoin enforces room authorization. Anonymous connections may join
// public tracking rooms only; privileged scopes additionally require the
// scope id to match the principal.
func canJoin(p *Principal, r Room) bool {
	if p == nil {
		return r.Scope == ScopeTracking
	}
	switch r.Scope {
	case ScopeTracking, ScopeShipment:
		return true
	case ScopeUser, ScopeNotifications:
		return r.ID == p.UserID
	case ScopeCompany, ScopeDashboard, ScopeAlerts, ScopeCompanyShipments:
		return r.ID == p.CompanyID
	case ScopeDriverShipments:
		return p.Role == domain.RoleDriver && r.ID == p.UserID
	case ScopeVehicle:
		// Ownership of the vehicle is checked by the hub against the
		// fleet directory; here we only require authentication.
		return true
	}
	return false
}
