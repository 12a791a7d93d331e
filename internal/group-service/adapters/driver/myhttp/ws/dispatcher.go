package ws

import (
	"net/http"

	"group-ride/internal/config"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/group-service/metric"
	"group-ride/internal/mylogger"

	"github.com/gorilla/websocket"
)

type Dispatcher struct {
	upgrader websocket.Upgrader
	cfg      *config.WebSocketconfig
	svc      ports.IGroupService
	mylog    mylogger.Logger
	metrics  *metric.Metrics
}

func NewDispatcher(cfg *config.WebSocketconfig, svc ports.IGroupService, mylog mylogger.Logger, metrics *metric.Metrics) *Dispatcher {
	return &Dispatcher{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile clients send no Origin, tokens gate access
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:     cfg,
		svc:     svc,
		mylog:   mylog,
		metrics: metrics,
	}
}

// WsHandler upgrades GET /ws/groups. The first frame must be join_group.
func (d *Dispatcher) WsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.mylog.Action("ws_upgrade").Error("cannot upgrade", err)
			return
		}

		d.metrics.Connections.Inc()
		defer d.metrics.Connections.Dec()

		client := NewClient(conn, d.cfg, d.svc, d.mylog, d.metrics)
		go client.WriteMessages()
		client.ReadMessages(r.Context())
	}
}
