package node

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/kv"
)

// Response is the envelope returned by /query, /add and /delete.
type Response struct {
	Code    int               `json:"code"`
	Data    map[string]string `json:"data"`
	Message string            `json:"message"`
}

type addRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type removeRequest struct {
	Key string `json:"key"`
}

func writeJSON(w http.ResponseWriter, code int, data map[string]string, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Code: code, Data: data, Message: msg})
}

// Healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes the process ID, node name, current time, item count and the
// membership view.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		PID     int             `json:"pid"`
		Name    string          `json:"name"`
		Now     time.Time       `json:"now"`
		Items   int             `json:"items"`
		Members []gossip.Member `json:"members"`
	}
	var members []gossip.Member
	if n.members != nil {
		members = n.members.Members()
	}
	data, _ := json.Marshal(resp{PID: os.Getpid(), Name: n.name, Now: time.Now(), Items: n.kv.Len(), Members: members})
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Query handles GET /query?key=k.
func (n *Node) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("key") {
		writeJSON(w, http.StatusBadRequest, nil, "Missing 'key' parameter")
		return
	}
	key := q.Get("key")

	val, err := n.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			n.logger.Error("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, nil, "Failed to retrieve value from cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: val}, "ok")
}

// Add handles POST /add {"key":..,"value":..}. An absent key field is the
// empty key, which is stored and replicated like any other.
func (n *Node) Add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil, "invalid json body")
		return
	}

	if err := n.Insert(r.Context(), req.Key, req.Value); err != nil {
		n.logger.Error("failed to send insert message", zap.String("key", req.Key), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, nil, "Failed to process add request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{req.Key: req.Value}, "ok")
}

// Delete handles DELETE /delete {"key":..}.
func (n *Node) Delete(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil, "invalid json body")
		return
	}

	if err := n.Remove(r.Context(), req.Key); err != nil {
		n.logger.Error("failed to send remove message", zap.String("key", req.Key), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, nil, "Failed to process remove request")
		return
	}
	writeJSON(w, http.StatusOK, nil, "ok")
}
