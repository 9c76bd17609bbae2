package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"colorum/internal/geo"
	"colorum/internal/gpx"
	"colorum/internal/model"
	"colorum/internal/northbound"
)

// DeviceBatchHandler handles POST /list_of_gps_devices: a northbound device
// telemetry batch. Per-record failures are reported, not fatal to the batch.
func (s *Server) DeviceBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.allowIngest(w, r) {
		return
	}
	var reports []model.DeviceReport
	if err := json.NewDecoder(r.Body).Decode(&reports); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	rep := s.Devices.ProcessBatch(r.Context(), reports)
	writeJSON(w, http.StatusOK, rep)
}

// RouteListHandler handles POST /list_of_routes: the full authoritative
// route id set.
func (s *Server) RouteListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.allowIngest(w, r) {
		return
	}
	var refs []model.RouteRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	created, deleted, err := s.Routes.Apply(r.Context(), refs)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Reconcile failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "created": len(created), "deleted": len(deleted)})
}

// ColorumVehiclesHandler handles GET /get_colorum_vehicles: all colorum
// devices within search_distance kilometers (great-circle) of the given
// point. This metric is intentionally different from the planar cross-track
// distance used for the colorum verdict itself.
func (s *Server) ColorumVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	distKm, errDist := strconv.ParseFloat(q.Get("search_distance"), 64)
	if errLat != nil || errLon != nil || errDist != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid arguments", "latitude, longitude and search_distance are required", r.URL.Path)
		return
	}
	devices, err := s.Store.ListColorumDevices(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Query failed", err.Error(), r.URL.Path)
		return
	}
	center := model.GeoPoint{Lat: lat, Lon: lon}
	out := []map[string]any{}
	for _, d := range devices {
		if geo.GreatCircleKm(center, d.LastLocation) <= distKm {
			out = append(out, map[string]any{
				"gps_device_id":       d.ID,
				"last_location":       [2]float64{d.LastLocation.Lat, d.LastLocation.Lon},
				"associated_route":    d.AssociatedRoute,
				"distance_from_route": d.DistanceToRoute,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// NorthboundCredentialsHandler handles PUT /set_northbound_credentials:
// rotates the northbound session onto new credentials. The body carries
// base64("username:password") as upstream does.
func (s *Server) NorthboundCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	if s.Session == nil {
		writeProblem(w, http.StatusServiceUnavailable, "No northbound session", "service started without northbound support", r.URL.Path)
		return
	}
	var body struct {
		Credentials string `json:"northbound_credentials"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	creds, err := decodeBasicCredentials(body.Credentials)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid credentials", err.Error(), r.URL.Path)
		return
	}
	if err := s.Session.Rotate(r.Context(), creds); err != nil {
		// Login rejection and teardown failures surface to the operator;
		// no automatic retry here.
		writeProblem(w, http.StatusBadGateway, "Rotation failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "northbound credentials updated"})
}

func decodeBasicCredentials(encoded string) (northbound.Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return northbound.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok || username == "" {
		return northbound.Credentials{}, errors.New("credentials must be base64(username:password)")
	}
	return northbound.Credentials{Username: username, Password: password}, nil
}

// RoutesHandler handles GET /get_routes: the local route registry with the
// state of each GPX file association.
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	routes, err := s.Store.ListRoutes(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	out := []map[string]any{}
	for _, rt := range routes {
		var associated any
		if rt.GPXFilename != "" {
			// Only report the association when the file is still on disk.
			if _, err := os.Stat(filepath.Join(s.GPXDir, rt.GPXFilename)); err == nil {
				associated = rt.GPXFilename
			}
		}
		out = append(out, map[string]any{"route_id": rt.ID, "gpx_file_associated": associated})
	}
	writeJSON(w, http.StatusOK, out)
}

// AssociateFileHandler handles POST /associate_file_to_route: a multipart
// upload binding a GPX file to a route. Invalid GPX is rejected before
// anything is stored; the file lands in the GPX directory under a generated
// name and the route record is created or updated in place.
func (s *Server) AssociateFileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid multipart form", err.Error(), r.URL.Path)
		return
	}
	problems := []string{}
	var routeID string
	var meta struct {
		RouteID string `json:"route_id"`
	}
	if err := json.Unmarshal([]byte(r.FormValue("body")), &meta); err != nil || meta.RouteID == "" {
		problems = append(problems, "no route ID specified")
	} else {
		routeID = meta.RouteID
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		problems = append(problems, "no GPX file found in the request")
	} else {
		defer func() { _ = file.Close() }()
		if hdr.Filename == "" || !strings.EqualFold(filepath.Ext(hdr.Filename), ".gpx") {
			problems = append(problems, "file has wrong extension")
		}
	}
	if len(problems) > 0 {
		s.logger.Error().Strs("problems", problems).Msg("file association rejected")
		writeJSON(w, http.StatusBadRequest, problems)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Read upload failed", err.Error(), r.URL.Path)
		return
	}
	if _, err := gpx.Parse(hdr.Filename, data); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid GPX", err.Error(), r.URL.Path)
		return
	}

	filename := uuid.New().String() + ".gpx"
	if err := os.WriteFile(filepath.Join(s.GPXDir, filename), data, 0o644); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store GPX failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SetRouteFile(r.Context(), routeID, filename); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Associate failed", err.Error(), r.URL.Path)
		return
	}
	s.logger.Info().Str("route", routeID).Str("file", filename).Msg("GPX file associated to route")
	writeJSON(w, http.StatusOK, map[string]string{"status": "successfully associated GPX file with route"})
}

// NukeHandler handles DELETE /nuke: removes every stored GPX file and every
// route record.
func (s *Server) NukeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	entries, err := os.ReadDir(s.GPXDir)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Nuke failed", err.Error(), r.URL.Path)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			_ = os.Remove(filepath.Join(s.GPXDir, e.Name()))
		}
	}
	if err := s.Store.DeleteAllRoutes(r.Context()); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Nuke failed", err.Error(), r.URL.Path)
		return
	}
	s.logger.Info().Msg("all GPX files and route records deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "successfully deleted all GPX files"})
}

// ColorumStreamHandler handles GET /colorum/stream: an SSE feed of colorum
// alerts, optionally filtered to one route via ?route=.
func (s *Server) ColorumStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	topic := TopicColorum
	if rid := r.URL.Query().Get("route"); rid != "" {
		topic = "route:" + rid
	}
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			payload, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		}
	}
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.Session != nil {
		status["northbound"] = s.Session.State().String()
	}
	writeJSON(w, http.StatusOK, status)
}
