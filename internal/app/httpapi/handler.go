// Package httpapi exposes the REST interface of the jar service.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/metrics"
	jarsvc "github.com/zcy-charity/jar-service/internal/app/services/jars"
	syncsvc "github.com/zcy-charity/jar-service/internal/app/services/sync"
	"github.com/zcy-charity/jar-service/internal/app/services/volunteers"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

const maxUploadBytes = 32 << 20

// Config holds HTTP-level settings.
type Config struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"HTTP_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST"`
	// OperatorToken authorises account moderation. Activation stays
	// disabled while it is empty.
	OperatorToken string `yaml:"operator_token" env:"AUTH_OPERATOR_TOKEN"`
}

// Handler routes REST requests to the services.
type Handler struct {
	jars          *jarsvc.Service
	volunteers    *volunteers.Service
	scheduler     *syncsvc.Scheduler
	metrics       *metrics.Metrics
	operatorToken string
	log           *logger.Logger
	router        *mux.Router
}

// New wires the routes. The metrics argument may be nil to disable
// instrumentation.
func New(jars *jarsvc.Service, vols *volunteers.Service, scheduler *syncsvc.Scheduler, m *metrics.Metrics, cfg Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &Handler{
		jars:          jars,
		volunteers:    vols,
		scheduler:     scheduler,
		metrics:       m,
		operatorToken: cfg.OperatorToken,
		log:           log,
	}

	r := mux.NewRouter()
	r.Use(logRequests(log))
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		r.Use(newRateLimiter(cfg.RateLimitRPS, burst).middleware)
	}
	if m != nil {
		r.Use(m.InstrumentHandler)
	}
	r.Use(h.authenticate)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/jars", h.handleListJars).Methods(http.MethodGet)
	r.HandleFunc("/jars", h.requireActor(h.handleCreateJar)).Methods(http.MethodPost)
	r.HandleFunc("/jars/{id}", h.handleGetJar).Methods(http.MethodGet)
	r.HandleFunc("/jars/{id}", h.requireActor(h.handleUpdateJar)).Methods(http.MethodPatch)
	r.HandleFunc("/jars/{id}", h.requireActor(h.handleDeleteJar)).Methods(http.MethodDelete)
	r.HandleFunc("/jars/{id}/samples", h.handleListSamples).Methods(http.MethodGet)
	r.HandleFunc("/jars/{id}/album", h.handleListAlbum).Methods(http.MethodGet)
	r.HandleFunc("/jars/{id}/album", h.requireActor(h.handleAddAlbumImage)).Methods(http.MethodPost)
	r.HandleFunc("/banner", h.handleBanner).Methods(http.MethodGet)

	r.HandleFunc("/tags", h.handleListTags).Methods(http.MethodGet)
	r.HandleFunc("/tags", h.requireActor(h.handleCreateTag)).Methods(http.MethodPost)
	r.HandleFunc("/tags/{id}", h.requireActor(h.handleDeleteTag)).Methods(http.MethodDelete)

	r.HandleFunc("/volunteers", h.handleCreateVolunteer).Methods(http.MethodPost)
	r.HandleFunc("/volunteers", h.handleListVolunteers).Methods(http.MethodGet)
	r.HandleFunc("/volunteers/{id}", h.handleGetVolunteer).Methods(http.MethodGet)
	r.HandleFunc("/volunteers/{id}", h.requireActor(h.handleUpdateVolunteer)).Methods(http.MethodPatch)
	r.HandleFunc("/volunteers/{id}", h.requireActor(h.handleDeleteVolunteer)).Methods(http.MethodDelete)
	r.HandleFunc("/volunteers/{id}/active", h.requireOperator(h.handleSetVolunteerActive)).Methods(http.MethodPut)

	r.HandleFunc("/sync/run", h.requireActor(h.handleRunSync)).Methods(http.MethodPost)

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- health and auth ---------------------------------------------------------

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, v, err := h.volunteers.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Volunteer: h.toVolunteerResponse(v)})
}

// --- jars --------------------------------------------------------------------

func (h *Handler) handleListJars(w http.ResponseWriter, r *http.Request) {
	ordering, err := jar.ParseOrdering(r.URL.Query().Get("ordering"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := jar.Filter{
		Search:   r.URL.Query().Get("search"),
		Tag:      r.URL.Query().Get("tag"),
		Ordering: ordering,
	}
	list, err := h.jars.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toSummaryResponses(list))
}

func (h *Handler) handleCreateJar(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeCreateJar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.jars.Create(r.Context(), actorID(r), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toJarResponse(created))
}

// decodeCreateJar accepts either a JSON body or a multipart form carrying
// the images alongside the fields.
func (h *Handler) decodeCreateJar(r *http.Request) (jarsvc.CreateInput, error) {
	if !isMultipart(r) {
		var req createJarRequest
		if err := decodeJSON(r, &req); err != nil {
			return jarsvc.CreateInput{}, err
		}
		return jarsvc.CreateInput{
			ExternalID:   req.ExternalID,
			Title:        req.Title,
			Description:  req.Description,
			Goal:         req.Goal,
			ImgAlt:       req.ImgAlt,
			DisplayOrder: req.DisplayOrder,
			Tags:         req.Tags,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return jarsvc.CreateInput{}, fmt.Errorf("parse form: %w", err)
	}
	in := jarsvc.CreateInput{
		ExternalID:  r.FormValue("external_id"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		ImgAlt:      r.FormValue("img_alt"),
		Tags:        splitTags(r.FormValue("tags")),
	}
	if raw := r.FormValue("goal"); raw != "" {
		goal, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return jarsvc.CreateInput{}, fmt.Errorf("invalid goal: %w", err)
		}
		in.Goal = &goal
	}
	if raw := r.FormValue("display_order"); raw != "" {
		order, err := strconv.Atoi(raw)
		if err != nil {
			return jarsvc.CreateInput{}, fmt.Errorf("invalid display_order: %w", err)
		}
		in.DisplayOrder = order
	}

	if file, header, err := r.FormFile("title_image"); err == nil {
		in.TitleImage = &jarsvc.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
			Alt:         in.ImgAlt,
		}
	}
	if r.MultipartForm != nil {
		alts := r.MultipartForm.Value["album_alt"]
		for i, header := range r.MultipartForm.File["album"] {
			file, err := header.Open()
			if err != nil {
				return jarsvc.CreateInput{}, fmt.Errorf("open album file: %w", err)
			}
			up := jarsvc.Upload{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
			if i < len(alts) {
				up.Alt = alts[i]
			}
			in.Album = append(in.Album, up)
		}
	}
	return in, nil
}

func (h *Handler) handleGetJar(w http.ResponseWriter, r *http.Request) {
	sum, err := h.jars.GetSummary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toSummaryResponse(sum))
}

func (h *Handler) handleUpdateJar(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeUpdateJar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.jars.Update(r.Context(), actorID(r), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toJarResponse(updated))
}

func (h *Handler) decodeUpdateJar(r *http.Request) (jarsvc.UpdateInput, error) {
	if !isMultipart(r) {
		var req updateJarRequest
		if err := decodeJSON(r, &req); err != nil {
			return jarsvc.UpdateInput{}, err
		}
		return jarsvc.UpdateInput{
			Title:        req.Title,
			Description:  req.Description,
			Goal:         req.Goal,
			ImgAlt:       req.ImgAlt,
			DisplayOrder: req.DisplayOrder,
			Tags:         req.Tags,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return jarsvc.UpdateInput{}, fmt.Errorf("parse form: %w", err)
	}
	var in jarsvc.UpdateInput
	if _, ok := r.MultipartForm.Value["title"]; ok {
		v := r.FormValue("title")
		in.Title = &v
	}
	if _, ok := r.MultipartForm.Value["description"]; ok {
		v := r.FormValue("description")
		in.Description = &v
	}
	if raw := r.FormValue("goal"); raw != "" {
		goal, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return jarsvc.UpdateInput{}, fmt.Errorf("invalid goal: %w", err)
		}
		in.Goal = &goal
	}
	if _, ok := r.MultipartForm.Value["img_alt"]; ok {
		v := r.FormValue("img_alt")
		in.ImgAlt = &v
	}
	if raw := r.FormValue("display_order"); raw != "" {
		order, err := strconv.Atoi(raw)
		if err != nil {
			return jarsvc.UpdateInput{}, fmt.Errorf("invalid display_order: %w", err)
		}
		in.DisplayOrder = &order
	}
	if _, ok := r.MultipartForm.Value["tags"]; ok {
		in.Tags = splitTags(r.FormValue("tags"))
	}
	if file, header, err := r.FormFile("title_image"); err == nil {
		in.TitleImage = &jarsvc.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		}
	}
	return in, nil
}

func (h *Handler) handleDeleteJar(w http.ResponseWriter, r *http.Request) {
	if err := h.jars.Delete(r.Context(), actorID(r), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.jars.Samples(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSampleResponses(samples))
}

func (h *Handler) handleListAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := h.jars.Album(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAlbumResponses(album))
}

func (h *Handler) handleAddAlbumImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form expected")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file required")
		return
	}
	up := jarsvc.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Alt:         r.FormValue("img_alt"),
	}
	img, err := h.jars.AddAlbumImage(r.Context(), actorID(r), mux.Vars(r)["id"], up)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toAlbumResponses([]jar.AlbumImage{img})[0])
}

func (h *Handler) handleBanner(w http.ResponseWriter, r *http.Request) {
	list, err := h.jars.Banner(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toSummaryResponses(list))
}

// --- tags --------------------------------------------------------------------

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.jars.ListTags(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponses(tags))
}

func (h *Handler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.jars.CreateTag(r.Context(), actorID(r), req.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tagResponse{ID: t.ID, Name: t.Name})
}

func (h *Handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.jars.DeleteTag(r.Context(), actorID(r), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- volunteers --------------------------------------------------------------

func (h *Handler) handleCreateVolunteer(w http.ResponseWriter, r *http.Request) {
	var req createVolunteerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.volunteers.Create(r.Context(), volunteers.CreateInput{
		Email:          req.Email,
		Password:       req.Password,
		PublicName:     req.PublicName,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toVolunteerResponse(v))
}

func (h *Handler) handleListVolunteers(w http.ResponseWriter, r *http.Request) {
	list, err := h.volunteers.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toVolunteerResponses(list))
}

func (h *Handler) handleGetVolunteer(w http.ResponseWriter, r *http.Request) {
	v, err := h.volunteers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toVolunteerResponse(v))
}

func (h *Handler) handleUpdateVolunteer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if actorID(r) != id {
		writeError(w, http.StatusForbidden, "volunteers may only update their own profile")
		return
	}
	var req updateVolunteerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.volunteers.Update(r.Context(), id, volunteers.UpdateInput{
		PublicName:     req.PublicName,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toVolunteerResponse(v))
}

func (h *Handler) handleDeleteVolunteer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if actorID(r) != id {
		writeError(w, http.StatusForbidden, "volunteers may only delete their own account")
		return
	}
	if err := h.volunteers.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetVolunteerActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.volunteers.SetActive(r.Context(), mux.Vars(r)["id"], req.Active)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toVolunteerResponse(v))
}

// --- sync --------------------------------------------------------------------

func (h *Handler) handleRunSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.Trigger(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncReportResponse{
		Total:      report.Total,
		Synced:     report.Synced,
		Failed:     report.Failed,
		Closed:     report.Closed,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	})
}

// --- helpers -----------------------------------------------------------------

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *jarsvc.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Reason, "field": vErr.Field})
	case errors.Is(err, jarsvc.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "active volunteer account required")
	case errors.Is(err, volunteers.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, syncsvc.ErrCycleRunning):
		writeError(w, http.StatusConflict, "sync cycle already running")
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
