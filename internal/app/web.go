// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/learner"
	"github.com/relabs-tech/motion_trainer/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// webStatus is the state snapshot served over /api/status and pushed
// to websocket clients on every change.
type webStatus struct {
	Magnitude   float64 `json:"magnitude"`
	Stage       string  `json:"stage"`
	Calibrating bool    `json:"calibrating"`
	Label       string  `json:"label"`
	DSID        string  `json:"dsid"`
}

// webState caches the latest pipeline state from MQTT and fans it out
// to connected websocket clients.
type webState struct {
	mu       sync.RWMutex
	status   webStatus
	haveData bool

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	log *zap.Logger
}

func newWebState(log *zap.Logger) *webState {
	return &webState{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

// update mutates the cached status under lock, then broadcasts it.
func (ws *webState) update(fn func(*webStatus)) {
	ws.mu.Lock()
	fn(&ws.status)
	ws.haveData = true
	snapshot := ws.status
	ws.mu.Unlock()

	ws.broadcast(snapshot)
}

func (ws *webState) broadcast(s webStatus) {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	for conn := range ws.clients {
		if err := conn.WriteJSON(s); err != nil {
			ws.log.Warn("[web] websocket write error", zap.Error(err))
			conn.Close()
			delete(ws.clients, conn)
		}
	}
}

// handleWS upgrades the connection and keeps it registered until the
// peer goes away.
func (ws *webState) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("[web] websocket upgrade error", zap.Error(err))
		return
	}

	ws.mu.RLock()
	snapshot, have := ws.status, ws.haveData
	ws.mu.RUnlock()
	if have {
		if err := conn.WriteJSON(snapshot); err != nil {
			conn.Close()
			return
		}
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	ws.clientsMu.Unlock()

	// Drain reads to notice disconnects.
	go func() {
		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			ws.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// RunWeb serves the browser UI: live state over a websocket, a JSON
// API for the archive, and control endpoints that publish to the
// trainer's control topic.
func RunWeb() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := config.Get()
	state := newWebState(log)

	// 1) Connect to MQTT broker
	client, err := learner.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	log.Info("[web] connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	// 2) Subscribe to state topics and update the cache on each message
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{cfg.TopicMagnitude, func(_ mqtt.Client, msg mqtt.Message) {
			var m learner.MagnitudePayload
			if err := json.Unmarshal(msg.Payload(), &m); err != nil {
				log.Warn("[web] magnitude unmarshal error", zap.Error(err))
				return
			}
			state.update(func(s *webStatus) { s.Magnitude = m.Value })
		}},
		{cfg.TopicStage, func(_ mqtt.Client, msg mqtt.Message) {
			var p learner.StagePayload
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				log.Warn("[web] stage unmarshal error", zap.Error(err))
				return
			}
			state.update(func(s *webStatus) {
				s.Stage = p.Stage
				s.Calibrating = p.Calibrating
			})
		}},
		{cfg.TopicLabel, func(_ mqtt.Client, msg mqtt.Message) {
			var p learner.LabelPayload
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				log.Warn("[web] label unmarshal error", zap.Error(err))
				return
			}
			state.update(func(s *webStatus) { s.Label = p.Label })
		}},
		{cfg.TopicSession + "/current", func(_ mqtt.Client, msg mqtt.Message) {
			var p learner.SessionPayload
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				log.Warn("[web] session unmarshal error", zap.Error(err))
				return
			}
			state.update(func(s *webStatus) { s.DSID = p.DSID })
		}},
	}
	for _, sub := range subs {
		token := client.Subscribe(sub.topic, 0, sub.handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Info("[web] subscribed", zap.String("topic", sub.topic))
	}

	// 3) JSON API endpoint: latest state
	http.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		if !state.haveData {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state.status); err != nil {
			log.Warn("[web] json encode error", zap.Error(err))
		}
	})

	// 4) Archived events, newest first
	if cfg.ArchiveDBPath != "" {
		st, err := store.Open(cfg.ArchiveDBPath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer st.Close()

		http.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
			events, err := st.RecentEvents(50)
			if err != nil {
				log.Warn("[web] events query error", zap.Error(err))
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(events); err != nil {
				log.Warn("[web] json encode error", zap.Error(err))
			}
		})
	}

	// 5) Control endpoints: republish as control messages
	publishControl := func(w http.ResponseWriter, p learner.ControlPayload) {
		payload, err := json.Marshal(p)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		if token := client.Publish(cfg.TopicControl, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Warn("[web] control publish error", zap.Error(token.Error()))
			http.Error(w, "publish failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}

	http.HandleFunc("/api/calibration/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		publishControl(w, learner.ControlPayload{Action: learner.ActionStartCalibration})
	})

	http.HandleFunc("/api/calibration/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		publishControl(w, learner.ControlPayload{Action: learner.ActionStopCalibration})
	})

	http.HandleFunc("/api/threshold", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Threshold float64 `json:"threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Threshold <= 0 {
			http.Error(w, "threshold must be a positive number", http.StatusBadRequest)
			return
		}
		publishControl(w, learner.ControlPayload{
			Action:    learner.ActionSetThreshold,
			Threshold: &body.Threshold,
		})
	})

	// 6) Live state feed
	http.HandleFunc("/ws", state.handleWS)

	// 7) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Info("[web] listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, nil)
}
