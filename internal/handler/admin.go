package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/executor"
	"github.com/awsl-project/gproxy/internal/repository"
)

// AdminHandler is the CRUD surface over providers, credentials, users,
// keys and global config. Mutations rebuild the runtimes from a fresh
// storage snapshot.
type AdminHandler struct {
	Store    repository.Store
	Runtimes *executor.Runtimes
	Auth     *AdminAuth
	KeyAuth  *KeyAuthenticator

	// BindChanged publishes new bind addresses for the graceful reboot.
	BindChanged chan<- string

	mux *http.ServeMux
}

func NewAdminHandler(store repository.Store, runtimes *executor.Runtimes, auth *AdminAuth, keyAuth *KeyAuthenticator, bindChanged chan<- string) *AdminHandler {
	h := &AdminHandler{
		Store:       store,
		Runtimes:    runtimes,
		Auth:        auth,
		KeyAuth:     keyAuth,
		BindChanged: bindChanged,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", h.login)
	mux.HandleFunc("GET /admin/providers", h.listProviders)
	mux.HandleFunc("PUT /admin/providers/{name}", h.upsertProvider)
	mux.HandleFunc("DELETE /admin/providers/{id}", h.deleteProvider)
	mux.HandleFunc("GET /admin/credentials", h.listCredentials)
	mux.HandleFunc("POST /admin/credentials", h.insertCredential)
	mux.HandleFunc("PUT /admin/credentials/{id}", h.updateCredential)
	mux.HandleFunc("DELETE /admin/credentials/{id}", h.deleteCredential)
	mux.HandleFunc("POST /admin/credentials/{id}/enabled", h.setCredentialEnabled)
	mux.HandleFunc("GET /admin/users", h.listUsers)
	mux.HandleFunc("POST /admin/users", h.createUser)
	mux.HandleFunc("DELETE /admin/users/{id}", h.deleteUser)
	mux.HandleFunc("GET /admin/keys", h.listKeys)
	mux.HandleFunc("POST /admin/keys", h.createKey)
	mux.HandleFunc("DELETE /admin/keys/{id}", h.deleteKey)
	mux.HandleFunc("GET /admin/config", h.getConfig)
	mux.HandleFunc("PUT /admin/config", h.putConfig)
	mux.HandleFunc("GET /admin/usage", h.usage)
	h.mux = mux
	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/admin/login" && !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}
	h.mux.ServeHTTP(w, r)
}

// authorized accepts the raw admin key or a session token minted by
// /admin/login.
func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.Auth.Check(r) {
		return true
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(h.Auth.key), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}

func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request) {
	if !h.Auth.Check(r) {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.Auth.key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *AdminHandler) rebuild(w http.ResponseWriter) bool {
	snapshot, err := h.Store.LoadSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if err := h.Runtimes.Rebuild(snapshot); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	h.KeyAuth.Reload(snapshot.UserKeys)
	return true
}

func (h *AdminHandler) listProviders(w http.ResponseWriter, _ *http.Request) {
	providers, err := h.Store.ListProviders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *AdminHandler) upsertProvider(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var payload struct {
		Enabled bool                   `json:"enabled"`
		Config  *domain.ProviderConfig `json:"config"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.Config == nil {
		writeError(w, http.StatusBadRequest, "missing config")
		return
	}
	id, err := h.Store.UpsertProvider(name, payload.Config, payload.Enabled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *AdminHandler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// Provider deletion cascades over its credentials.
	if err := h.Store.DeleteProvider(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) listCredentials(w http.ResponseWriter, r *http.Request) {
	providerID, _ := strconv.ParseInt(r.URL.Query().Get("provider_id"), 10, 64)
	rows, err := h.Store.ListCredentials(providerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *AdminHandler) insertCredential(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProviderID int64             `json:"provider_id"`
		Weight     uint32            `json:"weight"`
		Value      domain.Credential `json:"value"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := payload.Value.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Weight == 0 {
		payload.Weight = 1
	}
	id, err := h.Store.InsertCredential(payload.ProviderID, payload.Weight, payload.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *AdminHandler) updateCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Weight uint32            `json:"weight"`
		Value  domain.Credential `json:"value"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := payload.Value.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.UpdateCredential(id, payload.Weight, payload.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *AdminHandler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteCredential(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) setCredentialEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := h.Store.SetCredentialEnabled(id, payload.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := h.Store.ListUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	user := domain.User{Name: payload.Name, Enabled: true}
	if err := h.Store.CreateUser(&user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteUser(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) listKeys(w http.ResponseWriter, _ *http.Request) {
	keys, err := h.Store.ListUserKeys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// createKey mints a key, stores only its hash and returns the plaintext
// exactly once.
func (h *AdminHandler) createKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID int64  `json:"user_id"`
		Name   string `json:"name"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	plaintext := "gp-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.UserKey{
		UserID:  payload.UserID,
		Name:    payload.Name,
		KeyHash: HashKey(plaintext),
		Enabled: true,
	}
	if err := h.Store.CreateUserKey(&key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": key.ID, "key": plaintext})
}

func (h *AdminHandler) deleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteUserKey(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !h.rebuild(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) getConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := h.Store.LoadGlobalConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *AdminHandler) putConfig(w http.ResponseWriter, r *http.Request) {
	previous, err := h.Store.LoadGlobalConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var cfg domain.GlobalConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := h.Store.UpsertGlobalConfig(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	newBind := bindOf(&cfg)
	if h.BindChanged != nil && newBind != bindOf(previous) && newBind != "" {
		log.WithField("bind", newBind).Info("bind address changed, scheduling listener reboot")
		select {
		case h.BindChanged <- newBind:
		default:
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *AdminHandler) usage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.UsageFilter{
		Provider: query.Get("provider"),
		Model:    query.Get("model"),
	}
	filter.UserID, _ = strconv.ParseInt(query.Get("user_id"), 10, 64)
	if since := query.Get("since"); since != "" {
		if at, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = at
		}
	}
	if until := query.Get("until"); until != "" {
		if at, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = at
		}
	}
	aggregate, err := h.Store.AggregateUsageTokens(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, aggregate)
}

func bindOf(cfg *domain.GlobalConfig) string {
	if cfg == nil || cfg.BindPort == 0 {
		return ""
	}
	host := cfg.BindHost
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(cfg.BindPort)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
