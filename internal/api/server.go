// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the controller over HTTP. Every response is wrapped
// in the {state, message, data} envelope; state 0 means success and the
// non-zero codes mirror the controller's error kinds.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/internal/controller"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// envelope is the uniform response body.
type envelope struct {
	State   int32       `json:"state"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server routes the device API onto a controller.
type Server struct {
	controller *controller.Controller
	router     *mux.Router
	upgrader   websocket.Upgrader
}

func NewServer(c *controller.Controller) *Server {
	s := &Server{
		controller: c,
		router:     mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc(common.APIPingRoute, s.ping).Methods(http.MethodGet)
	s.router.HandleFunc(common.APIEventsRoute, s.events).Methods(http.MethodGet)

	d := s.router.PathPrefix(common.APIDevicePrefix).Subrouter()
	d.HandleFunc("/write", s.write).Methods(http.MethodPost)
	d.HandleFunc("/writeMany", s.writeMany).Methods(http.MethodPost)
	d.HandleFunc("/read", s.read).Methods(http.MethodPost)
	d.HandleFunc("/readMany", s.readMany).Methods(http.MethodPost)

	d.HandleFunc("/scene", s.scene).Methods(http.MethodPost)
	d.HandleFunc("/sceneStatus", s.sceneStatus).Methods(http.MethodGet)
	d.HandleFunc("/scenes", s.scenes).Methods(http.MethodGet)

	d.HandleFunc("/executeCommand", s.executeCommand).Methods(http.MethodPost)
	d.HandleFunc("/callMethod", s.callMethod).Methods(http.MethodPost)
	d.HandleFunc("/getMethods", s.getMethods).Methods(http.MethodPost)
	d.HandleFunc("/getAllStatus", s.getAllStatus).Methods(http.MethodPost)

	d.HandleFunc("/getNodeState", s.getNodeState).Methods(http.MethodPost)
	d.HandleFunc("/getAllNodeStates", s.getAllNodeStates).Methods(http.MethodPost)
	d.HandleFunc("/getTasks", s.getTasks).Methods(http.MethodGet)
}

// Router returns the handler for mounting or testing.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe binds the configured address and serves until the
// listener fails.
func (s *Server) ListenAndServe(cfg common.WebServerInfo) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	common.LoggingClient.Info(fmt.Sprintf("http server listening on %s", addr))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

func respond(w http.ResponseWriter, err error, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	_ = enc.Encode(envelope{
		State:   common.CodeFor(err),
		Message: common.MessageFor(err),
		Data:    data,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		respond(w, common.WrapError(common.KindSerialization, err, "decoding request body"), nil)
		return false
	}
	return true
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	respond(w, nil, map[string]interface{}{
		"status":  "pong",
		"version": common.ServiceVersion,
	})
}

type writeRequest struct {
	GlobalID uint32 `json:"global_id"`
	Value    int32  `json:"value"`
}

func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respond(w, s.controller.WriteNode(req.GlobalID, req.Value), nil)
}

type writeManyRequest struct {
	Items []writeItem `json:"items"`
}

type writeItem struct {
	ID    uint32 `json:"id"`
	Value int32  `json:"value"`
}

type writeManyResult struct {
	ID      uint32 `json:"id"`
	State   int32  `json:"state"`
	Message string `json:"message"`
}

// writeMany attempts every item independently; each row carries its own
// state and message so one bad node does not mask the rest.
func (s *Server) writeMany(w http.ResponseWriter, r *http.Request) {
	var req writeManyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results := make([]writeManyResult, 0, len(req.Items))
	for _, item := range req.Items {
		err := s.controller.WriteNode(item.ID, item.Value)
		results = append(results, writeManyResult{
			ID:      item.ID,
			State:   common.CodeFor(err),
			Message: common.MessageFor(err),
		})
	}
	respond(w, nil, results)
}

type readRequest struct {
	GlobalID uint32 `json:"global_id"`
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := s.controller.ReadNode(req.GlobalID)
	if err != nil {
		respond(w, err, nil)
		return
	}
	respond(w, nil, map[string]interface{}{"global_id": req.GlobalID, "value": value})
}

type readManyRequest struct {
	IDs []uint32 `json:"ids"`
}

type readManyResult struct {
	ID      uint32  `json:"id"`
	State   int32   `json:"state"`
	Message string  `json:"message"`
	Value   float64 `json:"value,omitempty"`
}

// readMany reads every node independently; per-node failures land in the
// result rows instead of failing the request.
func (s *Server) readMany(w http.ResponseWriter, r *http.Request) {
	var req readManyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results := make([]readManyResult, 0, len(req.IDs))
	for _, id := range req.IDs {
		value, err := s.controller.ReadNode(id)
		row := readManyResult{ID: id, State: common.CodeFor(err), Message: common.MessageFor(err)}
		if err == nil {
			row.Value = value
		}
		results = append(results, row)
	}
	respond(w, nil, results)
}

type sceneRequest struct {
	Name string `json:"name"`
}

func (s *Server) scene(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respond(w, s.controller.ExecuteScene(req.Name), nil)
}

func (s *Server) sceneStatus(w http.ResponseWriter, _ *http.Request) {
	executing, name := s.controller.SceneStatus()
	data := map[string]interface{}{"is_executing": executing}
	if name != "" {
		data["current_scene"] = name
	}
	respond(w, nil, data)
}

func (s *Server) scenes(w http.ResponseWriter, _ *http.Request) {
	respond(w, nil, s.controller.ListScenes())
}

type commandRequest struct {
	ChannelID uint32                 `json:"channel_id"`
	Command   string                 `json:"command"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) executeCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.controller.ExecuteChannelCommand(req.ChannelID, req.Command, req.Params)
	respond(w, err, result)
}

type methodRequest struct {
	ChannelID uint32                 `json:"channel_id"`
	Name      string                 `json:"method_name"`
	Args      map[string]interface{} `json:"arguments,omitempty"`
}

func (s *Server) callMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.controller.CallChannelMethod(req.ChannelID, req.Name, req.Args)
	respond(w, err, result)
}

type channelRequest struct {
	ChannelID uint32 `json:"channel_id"`
}

func (s *Server) getMethods(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	methods, err := s.controller.GetChannelMethods(req.ChannelID)
	respond(w, err, methods)
}

func (s *Server) getAllStatus(w http.ResponseWriter, _ *http.Request) {
	respond(w, nil, s.controller.GetAllChannelStatus())
}

func (s *Server) getNodeState(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := s.controller.GetNodeState(req.GlobalID)
	if err != nil {
		respond(w, err, nil)
		return
	}
	respond(w, nil, state)
}

func (s *Server) getAllNodeStates(w http.ResponseWriter, _ *http.Request) {
	respond(w, nil, s.controller.GetAllNodeStates())
}

func (s *Server) getTasks(w http.ResponseWriter, _ *http.Request) {
	respond(w, nil, s.controller.PendingTasks())
}

// events upgrades to a websocket and streams bus events as JSON until the
// client goes away. Each connection gets its own bus subscription.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		common.LoggingClient.Warn(fmt.Sprintf("websocket upgrade failed: %v", err))
		return
	}

	ch, cancel := s.controller.SubscribeEvents()
	defer cancel()
	defer conn.Close()

	// Drain client frames so close/ping handling works; writes happen
	// only from this goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, evt); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, evt models.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(evt)
}
