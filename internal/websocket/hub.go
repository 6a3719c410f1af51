// Package websocket pushes settlement activity to connected admin dashboards
// so transaction tables refresh without polling.
package websocket

import (
	"encoding/json"
	"sync"
)

type SettlementUpdate struct {
	Event         string `json:"event"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	PartnerID     string `json:"partner_id"`
	Status        string `json:"status,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Commission    string `json:"commission,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

func (h *Hub) BroadcastSettlement(update SettlementUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
		}
	}
}
