package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/classify"
	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/provider"
)

// oauthStart kicks off interactive credential issuance for providers that
// support it.
func (e *Executor) oauthStart(ctx context.Context, w http.ResponseWriter, runtime *Runtime, req *classify.Request, meta *Meta) {
	dance, ok := runtime.Adapter.(provider.OAuthProvider)
	if !ok {
		e.writeError(w, meta, domain.NotFound("provider does not support oauth"))
		return
	}
	redirectURI := req.Query.Get("redirect_uri")
	if redirectURI == "" {
		e.writeError(w, meta, domain.BadRequest("missing redirect_uri"))
		return
	}
	result, err := dance.OAuthStart(ctx, e.Env, runtime.Provider.Config, redirectURI)
	if err != nil {
		e.writeError(w, meta, domain.Internal("oauth start failed", err))
		return
	}
	e.writeJSON(w, meta, http.StatusOK, result)
}

// oauthCallback exchanges the code, stores the new credential bound to
// the provider and rebuilds the runtimes.
func (e *Executor) oauthCallback(ctx context.Context, w http.ResponseWriter, runtime *Runtime, req *classify.Request, meta *Meta) {
	dance, ok := runtime.Adapter.(provider.OAuthProvider)
	if !ok {
		e.writeError(w, meta, domain.NotFound("provider does not support oauth"))
		return
	}
	query := req.Query
	if callbackURL := query.Get("callback_url"); callbackURL != "" {
		if parsed, err := url.Parse(callbackURL); err == nil {
			query = parsed.Query()
		}
	}
	cred, err := dance.OAuthCallback(ctx, e.Env, runtime.Provider.Config, query)
	if err != nil {
		e.writeError(w, meta, domain.BadRequest("oauth callback failed: %v", err))
		return
	}

	if e.Store != nil {
		if _, err := e.Store.InsertCredential(runtime.Provider.ID, 1, *cred); err != nil {
			e.writeError(w, meta, domain.Internal("credential store failed", err))
			return
		}
		snapshot, err := e.Store.LoadSnapshot()
		if err == nil {
			if err := e.Runtimes.Rebuild(snapshot); err != nil {
				log.WithError(err).Warn("runtime rebuild after oauth failed")
			}
		}
	}

	if strings.Contains(meta.Headers["Accept"], "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set(RequestIDHeader, meta.TraceID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h3>Credential stored. You can close this window.</h3></body></html>"))
		return
	}
	e.writeJSON(w, meta, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": runtime.Provider.Name,
		"kind":     cred.Kind,
	})
}

// usage serves the adapter-private usage inspection call, pinned to one
// credential when ?credential_id= names one.
func (e *Executor) usage(ctx context.Context, w http.ResponseWriter, runtime *Runtime, req *classify.Request, meta *Meta) {
	builder, ok := runtime.Adapter.(provider.UsageBuilder)
	if !ok {
		e.writeError(w, meta, domain.NotFound("provider does not support usage"))
		return
	}

	scope := domain.ScopeAllModels()
	attempt := func(ctx context.Context, entry domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		cred := entry.Value
		upstreamReq, err := builder.BuildUsage(ctx, e.Env, runtime.Provider.Config, &cred)
		if err != nil {
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(http.StatusInternalServerError, err.Error()),
			}
		}
		response, terr := e.Env.HTTP.Send(ctx, upstreamReq)
		if terr != nil {
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(http.StatusBadGateway, terr.Error()),
			}
		}
		if response.Status >= 400 {
			return nil, &domain.AttemptFailure{
				Passthrough: &domain.UpstreamPassthroughError{
					Status:  response.Status,
					Headers: response.Headers,
					Body:    drainStream(response),
				},
			}
		}
		return response, nil
	}

	var response *domain.UpstreamHTTPResponse
	var passErr *domain.UpstreamPassthroughError
	if id := req.Query.Get("credential_id"); id != "" {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			e.writeError(w, meta, domain.BadRequest("invalid credential_id"))
			return
		}
		response, passErr = runtime.Pool.ExecuteForID(ctx, id, scope, attempt)
	} else {
		response, passErr = runtime.Pool.Execute(ctx, scope, attempt)
	}
	if passErr != nil {
		e.relayPassthrough(w, meta, passErr)
		return
	}

	copyHeaders(w.Header(), response.Headers, false)
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(response.Status)
	_, _ = w.Write(response.Body)
	e.emitDownstream(meta, response.Status, w.Header(), response.Body)
}

func (e *Executor) writeJSON(w http.ResponseWriter, meta *Meta, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		e.writeError(w, meta, domain.Internal("encode failed", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(status)
	_, _ = w.Write(body)
	e.emitDownstream(meta, status, w.Header(), body)
}
