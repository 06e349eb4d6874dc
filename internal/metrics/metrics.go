// Package metrics provides Prometheus metrics collection for the marketchat application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketchat_websocket_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// EventsReceived tracks the total number of events received from clients by event name
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketchat_events_received_total",
		Help: "Total number of events received from clients",
	}, []string{"event"})

	// EventsSent tracks the total number of event frames written to clients
	EventsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_events_sent_total",
		Help: "Total number of event frames sent to clients",
	})

	// EventErrors tracks the total number of event processing errors
	EventErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_event_errors_total",
		Help: "Total number of event processing errors",
	})

	// RoomJoins tracks the total number of successful conversation joins
	RoomJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_room_joins_total",
		Help: "Total number of successful conversation room joins",
	})

	// AdminEscalations tracks the total number of lazy admin assignments
	AdminEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_admin_escalations_total",
		Help: "Total number of conversations assigned an admin on first qualifying join",
	})

	// MessagesPersisted tracks the total number of messages created in persist mode
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_messages_persisted_total",
		Help: "Total number of chat messages persisted by the socket layer",
	})

	// MessagesRelayed tracks the total number of messages rebroadcast in relay mode
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_messages_relayed_total",
		Help: "Total number of REST-persisted messages relayed to rooms",
	})

	// DeliveryAcks tracks the total number of delivery acknowledgements applied
	DeliveryAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_delivery_acks_total",
		Help: "Total number of messages advanced to delivered",
	})

	// SeenAcks tracks the total number of messages advanced by seen acknowledgements
	SeenAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_seen_acks_total",
		Help: "Total number of messages advanced to seen",
	})

	// PresenceBroadcasts tracks the total number of presence events broadcast
	PresenceBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketchat_presence_broadcasts_total",
		Help: "Total number of presence events broadcast to rooms",
	}, []string{"kind"})

	// MongoDBOperationDuration tracks the duration of MongoDB operations
	MongoDBOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketchat_mongodb_operation_duration_seconds",
		Help:    "Duration of MongoDB operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketchat_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)
