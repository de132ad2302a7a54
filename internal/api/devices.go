package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-melcloud/internal/device"
)

// CharacteristicValue is the body of characteristic responses.
// Available is false, and Value absent, when no snapshot could be obtained.
type CharacteristicValue struct {
	DeviceID       int      `json:"device_id"`
	Characteristic string   `json:"characteristic"`
	Writable       bool     `json:"writable"`
	Available      bool     `json:"available"`
	Value          *float64 `json:"value,omitempty"`
}

// SetCharacteristicRequest is the body of PUT .../characteristics/{kind}.
type SetCharacteristicRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	accessories := s.registry.ListAccessories()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": accessories,
		"count":   len(accessories),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	accessory, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, accessory)
}

// handleListCharacteristics reads every characteristic concurrently. The
// coordinator serves them all from a single fetch.
func (s *Server) handleListCharacteristics(w http.ResponseWriter, r *http.Request) {
	accessory, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}

	values := make([]CharacteristicValue, len(characteristic.AllKinds))
	g, ctx := errgroup.WithContext(r.Context())
	for i, kind := range characteristic.AllKinds {
		i, kind := i, kind
		g.Go(func() error {
			res, err := s.coord.Read(ctx, accessory.Target(), kind)
			if err != nil {
				return fmt.Errorf("reading %s: %w", kind, err)
			}
			values[i] = newCharacteristicValue(accessory.ID, kind, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":       accessory.ID,
		"characteristics": values,
	})
}

func (s *Server) handleGetCharacteristic(w http.ResponseWriter, r *http.Request) {
	accessory, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	kind, ok := lookupKind(w, r)
	if !ok {
		return
	}

	res, err := s.coord.Read(r.Context(), accessory.Target(), kind)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}
	writeCharacteristic(w, newCharacteristicValue(accessory.ID, kind, res))
}

func (s *Server) handleSetCharacteristic(w http.ResponseWriter, r *http.Request) {
	accessory, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	kind, ok := lookupKind(w, r)
	if !ok {
		return
	}
	if !kind.Writable() {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeValidation,
			fmt.Sprintf("characteristic %q is read-only", kind))
		return
	}

	var body SetCharacteristicRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "value is required")
		return
	}

	s.logger.Info("characteristic write",
		"device_id", accessory.ID,
		"characteristic", kind,
		"value", *body.Value,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	res, err := s.coord.Write(r.Context(), accessory.Target(), kind, *body.Value)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}
	writeCharacteristic(w, newCharacteristicValue(accessory.ID, kind, res))
}

func (s *Server) lookupAccessory(w http.ResponseWriter, r *http.Request) (device.Accessory, bool) {
	id, err := device.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return device.Accessory{}, false
	}
	accessory, err := s.registry.GetAccessory(id)
	if err != nil {
		writeNotFound(w, fmt.Sprintf("device %d not found", id))
		return device.Accessory{}, false
	}
	return accessory, true
}

func lookupKind(w http.ResponseWriter, r *http.Request) (characteristic.Kind, bool) {
	raw := chi.URLParam(r, "kind")
	kind := characteristic.ParseKind(raw)
	if !kind.Known() {
		writeNotFound(w, fmt.Sprintf("unknown characteristic %q", raw))
		return "", false
	}
	return kind, true
}

func newCharacteristicValue(deviceID int, kind characteristic.Kind, res coordinator.Result) CharacteristicValue {
	v := CharacteristicValue{
		DeviceID:       deviceID,
		Characteristic: string(kind),
		Writable:       kind.Writable(),
		Available:      res.OK,
	}
	if res.OK {
		value := res.Value
		v.Value = &value
	}
	return v
}

// writeCharacteristic answers 503 when the value is unavailable so that
// clients can retry, keeping the same body shape.
func writeCharacteristic(w http.ResponseWriter, v CharacteristicValue) {
	status := http.StatusOK
	if !v.Available {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, v)
}

func writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	}
}
