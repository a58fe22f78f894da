// internal/socket/broadcaster.go
package socket

import "time"

// Broadcaster translates domain events into socket messages so services do
// not build Message payloads by hand.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// ClusterLinked tells the affected citizens their accounts now share a cluster.
func (b *Broadcaster) ClusterLinked(clusterID int64, citizenIDs ...int64) {
	for _, citizenID := range citizenIDs {
		b.hub.SendToCitizen(citizenID, Message{
			Type: MessageClusterLinked,
			Payload: map[string]interface{}{
				"cluster_id": clusterID,
			},
			Timestamp: time.Now(),
		})
	}
}

// ClusterLeft tells a citizen their membership was removed.
func (b *Broadcaster) ClusterLeft(clusterID, citizenID int64) {
	b.hub.SendToCitizen(citizenID, Message{
		Type: MessageClusterLeft,
		Payload: map[string]interface{}{
			"cluster_id": clusterID,
		},
		Timestamp: time.Now(),
	})
}
