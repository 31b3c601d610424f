// Package executor dispatches classified requests: it resolves the
// provider runtime, applies the dispatch rule (native / transform /
// unsupported), drives credential selection, sends upstream, re-shapes
// the response for the downstream protocol and emits traffic events.
package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/classify"
	"github.com/awsl-project/gproxy/internal/converter"
	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/event"
	"github.com/awsl-project/gproxy/internal/pool"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
	"github.com/awsl-project/gproxy/internal/provider"
	"github.com/awsl-project/gproxy/internal/repository"
	"github.com/awsl-project/gproxy/internal/wire"
)

// RequestIDHeader carries the trace id on every response.
const RequestIDHeader = "x-gproxy-request-id"

// Meta is the downstream request metadata recorded on traffic events.
type Meta struct {
	TraceID   string
	UserID    int64
	UserKeyID int64
	Method    string
	Path      string
	Query     string
	Headers   map[string]string
	Body      []byte
}

// Executor wires the runtimes, transforms, pool and event hub together.
type Executor struct {
	Runtimes *Runtimes
	Env      *provider.Env
	Registry *converter.Registry
	Hub      *event.Hub
	Store    repository.Store
}

func New(runtimes *Runtimes, env *provider.Env, registry *converter.Registry, hub *event.Hub, store repository.Store) *Executor {
	return &Executor{Runtimes: runtimes, Env: env, Registry: registry, Hub: hub, Store: store}
}

// Execute serves one classified request against a named provider.
func (e *Executor) Execute(ctx context.Context, w http.ResponseWriter, providerName string, req *classify.Request, meta *Meta) {
	if meta.TraceID == "" {
		meta.TraceID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, meta.TraceID)

	runtime, ok := e.Runtimes.Get(providerName)
	if !ok {
		e.writeError(w, meta, domain.NotFound("provider not found"))
		return
	}

	switch req.Kind {
	case domain.OpOAuthStart:
		e.oauthStart(ctx, w, runtime, req, meta)
		return
	case domain.OpOAuthCallback:
		e.oauthCallback(ctx, w, runtime, req, meta)
		return
	case domain.OpUsage:
		e.usage(ctx, w, runtime, req, meta)
		return
	}

	rule := runtime.Adapter.DispatchTable(runtime.Provider.Config).Rule(req.Kind)
	if rule.Kind == domain.DispatchUnsupported {
		e.writeError(w, meta, domain.NewProxyError(http.StatusNotFound, "operation not supported by provider"))
		return
	}

	op, err := e.buildOperation(req, rule)
	if err != nil {
		e.writeError(w, meta, domain.BadRequest("transform failed: %v", err))
		return
	}

	scope := domain.ScopeAllModels()
	if req.Model != "" {
		scope = domain.ScopeModel(req.Model)
	}

	attemptNo := 0
	lastCredentialID := ""
	response, passErr := runtime.Pool.Execute(ctx, scope, func(ctx context.Context, entry domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		attemptNo++
		lastCredentialID = entry.ID
		return e.attempt(ctx, runtime, entry, op, meta, attemptNo, scope)
	})
	if passErr != nil {
		e.relayPassthrough(w, meta, passErr)
		return
	}

	targetProto := op.Kind.Proto()
	op.CredentialID = lastCredentialID
	if req.Stream && !response.Buffered() {
		e.streamResponse(ctx, w, runtime, response, req, op, meta, attemptNo)
		return
	}
	if !req.Stream && !response.Buffered() {
		// Upstream only streams; fold into the non-stream record.
		folded, err := e.foldStream(response, op)
		if err != nil {
			e.writeError(w, meta, domain.Internal("stream fold failed", err))
			return
		}
		response = folded
	}

	body := response.Body
	if rule.Kind == domain.DispatchTransform && response.Status < 400 {
		reshaped, err := e.reshapeResponse(req, targetProto, body)
		if err != nil {
			e.writeError(w, meta, domain.Internal("response transform failed", err))
			return
		}
		body = reshaped
	}

	copyHeaders(w.Header(), response.Headers, rule.Kind == domain.DispatchTransform)
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(response.Status)
	_, _ = w.Write(body)

	e.emitDownstream(meta, response.Status, w.Header(), body)
}

// buildOperation applies the dispatch rule to the classified request and
// serializes the (possibly transformed) body for the adapter.
func (e *Executor) buildOperation(req *classify.Request, rule domain.DispatchRule) (provider.Operation, error) {
	op := provider.Operation{
		Kind:          req.Kind,
		Model:         req.Model,
		Stream:        req.Stream,
		Body:          req.Body,
		Query:         req.Query,
		ClaudeHeaders: req.ClaudeHeaders,
	}
	if rule.Kind != domain.DispatchTransform {
		return op, nil
	}

	switch req.Kind.Op() {
	case domain.OpGenerateContent, domain.OpStreamGenerateContent:
		carrier, err := e.generateCarrier(req)
		if err != nil {
			return op, err
		}
		converted, err := e.Registry.TransformGenerateRequest(carrier, rule.Target, req.Stream)
		if err != nil {
			return op, err
		}
		body, err := marshalCarrier(converted)
		if err != nil {
			return op, err
		}
		kind, ok := domain.GenerateKind(rule.Target, req.Stream)
		if !ok {
			return op, domain.ErrFormatConversion
		}
		op.Kind = kind
		op.Body = body
		op.Model = converted.Model
	case domain.OpCountTokens:
		count := converter.CountRequest{
			Proto:  req.Proto,
			Model:  req.Model,
			Claude: req.ClaudeCount,
			OpenAI: req.OpenAICount,
			Gemini: req.GeminiCount,
		}
		converted, err := converter.ConvertCountRequest(count, rule.Target)
		if err != nil {
			return op, err
		}
		body, kind, err := marshalCount(converted)
		if err != nil {
			return op, err
		}
		op.Kind = kind
		op.Body = body
	case domain.OpModelList:
		op.Kind = modelListKind(rule.Target)
		op.Body = nil
	case domain.OpModelGet:
		op.Kind = modelGetKind(rule.Target)
		op.Body = nil
	}
	return op, nil
}

func (e *Executor) generateCarrier(req *classify.Request) (converter.GenerateRequest, error) {
	carrier := converter.GenerateRequest{
		Proto:     req.Proto,
		Model:     req.Model,
		Stream:    req.Stream,
		Claude:    req.ClaudeGenerate,
		Chat:      req.ChatGenerate,
		Responses: req.RespGenerate,
		Gemini:    req.GeminiGenerate,
	}
	switch req.Proto {
	case domain.ProtoClaude:
		if carrier.Claude == nil {
			return carrier, domain.ErrFormatConversion
		}
	case domain.ProtoOpenAIChat:
		if carrier.Chat == nil {
			return carrier, domain.ErrFormatConversion
		}
	case domain.ProtoOpenAIResponse:
		if carrier.Responses == nil {
			return carrier, domain.ErrFormatConversion
		}
	case domain.ProtoGemini:
		if carrier.Gemini == nil {
			return carrier, domain.ErrFormatConversion
		}
	}
	return carrier, nil
}

// attempt runs one upstream try under a credential: local responses,
// request build, send, auth-failure refresh with a single retry, and
// failure classification into disallow marks.
func (e *Executor) attempt(ctx context.Context, runtime *Runtime, entry domain.CredentialEntry, op provider.Operation, meta *Meta, attemptNo int, scope domain.DisallowScope) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
	op.CredentialID = entry.ID
	cfg := runtime.Provider.Config
	cred := entry.Value

	if responder, ok := runtime.Adapter.(provider.LocalResponder); ok {
		local, handled, err := responder.LocalResponse(ctx, e.Env, cfg, &cred, op)
		if err != nil {
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(http.StatusInternalServerError, err.Error()),
			}
		}
		if handled {
			e.emitUpstream(meta, runtime, entry.ID, op, attemptNo, local, nil, true)
			return local, nil
		}
	}

	send := func(cred *domain.Credential) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		upstreamReq, err := runtime.Adapter.Build(ctx, e.Env, cfg, cred, op)
		if err != nil {
			if mark := provider.RefreshMark(err); mark != nil {
				return nil, &domain.AttemptFailure{
					Passthrough: domain.PassthroughFromStatus(http.StatusUnauthorized, err.Error()),
					Mark:        mark,
				}
			}
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(http.StatusInternalServerError, err.Error()),
			}
		}
		response, terr := e.Env.HTTP.Send(ctx, upstreamReq)
		if terr != nil {
			e.emitUpstreamError(meta, runtime, entry.ID, op, attemptNo, upstreamReq, terr)
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(http.StatusBadGateway, terr.Error()),
				Mark:        pool.MarkForTransport(domain.ScopeAllModels()),
			}
		}
		return response, nil
	}

	response, failure := send(&cred)
	if failure != nil {
		return nil, failure
	}

	// Auth failures get one refresh-and-retry when the adapter can.
	if response.Status == http.StatusUnauthorized || response.Status == http.StatusForbidden {
		if refresher, ok := runtime.Adapter.(provider.AuthRefresher); ok {
			e.emitUpstream(meta, runtime, entry.ID, op, attemptNo, response, nil, false)
			drainStream(response)
			updated, err := refresher.OnAuthFailure(ctx, e.Env, cfg, &cred, entry.ID, response.Status)
			switch {
			case err == nil && updated != nil:
				e.persistCredential(runtime.Provider.Name, entry.ID, *updated)
				cred = *updated
				attemptNo++
				retryResponse, retryFailure := send(&cred)
				if retryFailure != nil {
					return nil, retryFailure
				}
				response = retryResponse
			case err != nil:
				if mark := provider.RefreshMark(err); mark != nil {
					return nil, &domain.AttemptFailure{
						Passthrough: domain.PassthroughFromStatus(http.StatusUnauthorized, err.Error()),
						Mark:        mark,
					}
				}
			}
		}
	}

	if response.Status >= 400 {
		body := drainStream(response)
		e.emitUpstream(meta, runtime, entry.ID, op, attemptNo, response, nil, false)
		return nil, &domain.AttemptFailure{
			Passthrough: &domain.UpstreamPassthroughError{
				Status:  response.Status,
				Headers: response.Headers,
				Body:    body,
			},
			Mark: pool.MarkForStatus(response.Status, response.Headers, domain.ScopeAllModels()),
		}
	}

	if response.Buffered() {
		usage := usageSummaryFromBody(op.Kind.Proto(), response.Body)
		e.emitUpstream(meta, runtime, entry.ID, op, attemptNo, response, usage, false)
	}
	// Streaming attempts emit their event when the splice finishes and
	// the folded usage is known.
	return response, nil
}

// persistCredential stores a refreshed credential and swaps it into the
// live pool snapshot.
func (e *Executor) persistCredential(providerName, credentialID string, cred domain.Credential) {
	e.Runtimes.ReplaceCredential(providerName, credentialID, cred)
	if e.Store == nil {
		return
	}
	id, err := strconv.ParseInt(credentialID, 10, 64)
	if err != nil {
		return
	}
	rows, err := e.Store.ListCredentials(0)
	if err != nil {
		log.WithError(err).Warn("credential reload failed")
		return
	}
	for _, row := range rows {
		if row.ID == id {
			if err := e.Store.UpdateCredential(id, row.Weight, cred); err != nil {
				log.WithError(err).Warn("credential persist failed")
			}
			return
		}
	}
}

// reshapeResponse converts a buffered upstream body from the target
// protocol back into the downstream protocol.
func (e *Executor) reshapeResponse(req *classify.Request, targetProto domain.Proto, body []byte) ([]byte, error) {
	switch req.Kind.Op() {
	case domain.OpGenerateContent, domain.OpStreamGenerateContent:
		carrier, err := parseResponseCarrier(targetProto, body)
		if err != nil {
			return nil, err
		}
		converted, err := e.Registry.TransformGenerateResponse(carrier, req.Proto)
		if err != nil {
			return nil, err
		}
		return marshalResponseCarrier(converted)
	case domain.OpCountTokens:
		result, err := parseCountResult(targetProto, body)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converter.ConvertCountResponse(result, req.Proto))
	case domain.OpModelList:
		catalog, err := parseCatalog(targetProto, body)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converter.ConvertModelList(catalog, req.Proto))
	case domain.OpModelGet:
		entry, err := parseCatalogEntry(targetProto, body)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converter.ConvertModel(entry, req.Proto))
	}
	return body, nil
}

// foldStream coalesces an unexpected upstream stream into the non-stream
// response record of the target protocol.
func (e *Executor) foldStream(response *domain.UpstreamHTTPResponse, op provider.Operation) (*domain.UpstreamHTTPResponse, error) {
	defer response.Stream.Close()
	folder, err := converter.NewFolder(op.Kind.Proto())
	if err != nil {
		return nil, err
	}
	decoder := &wire.Decoder{}
	buf := make([]byte, 32*1024)
	for {
		n, readErr := response.Stream.Read(buf)
		if n > 0 {
			for _, payload := range decoder.Push(buf[:n]) {
				if isSentinel(payload) {
					continue
				}
				if err := folder.Push([]byte(payload)); err != nil {
					log.WithError(err).Debug("fold skipped payload")
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	for _, payload := range decoder.Finish() {
		if isSentinel(payload) {
			continue
		}
		_ = folder.Push([]byte(payload))
	}
	folded, err := folder.Finish(op.Model)
	if err != nil {
		return nil, err
	}
	body, err := marshalResponseCarrier(folded)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &domain.UpstreamHTTPResponse{Status: response.Status, Headers: headers, Body: body}, nil
}

func (e *Executor) writeError(w http.ResponseWriter, meta *Meta, err *domain.ProxyError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(err.Status)
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"message": err.Message, "type": "proxy_error"},
	})
	_, _ = w.Write(body)
	e.emitDownstream(meta, err.Status, w.Header(), body)
}

// relayPassthrough surfaces an upstream error verbatim: original status,
// content type and body.
func (e *Executor) relayPassthrough(w http.ResponseWriter, meta *Meta, passErr *domain.UpstreamPassthroughError) {
	copyHeaders(w.Header(), passErr.Headers, false)
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(passErr.Status)
	_, _ = w.Write(passErr.Body)
	e.emitDownstream(meta, passErr.Status, w.Header(), passErr.Body)
}

func (e *Executor) emitDownstream(meta *Meta, status int, headers http.Header, body []byte) {
	if e.Hub == nil {
		return
	}
	e.Hub.Downstream(domain.DownstreamEvent{
		TraceID:         meta.TraceID,
		At:              time.Now(),
		UserID:          meta.UserID,
		UserKeyID:       meta.UserKeyID,
		RequestMethod:   meta.Method,
		RequestHeaders:  meta.Headers,
		RequestPath:     meta.Path,
		RequestQuery:    meta.Query,
		RequestBody:     meta.Body,
		ResponseStatus:  status,
		ResponseHeaders: flattenHeaders(headers),
		ResponseBody:    body,
	})
}

func (e *Executor) emitUpstream(meta *Meta, runtime *Runtime, credentialID string, op provider.Operation, attemptNo int, response *domain.UpstreamHTTPResponse, usage *domain.UsageSummary, internal bool) {
	if e.Hub == nil {
		return
	}
	evt := domain.UpstreamEvent{
		TraceID:       meta.TraceID,
		At:            time.Now(),
		UserID:        meta.UserID,
		UserKeyID:     meta.UserKeyID,
		Provider:      runtime.Provider.Name,
		CredentialID:  credentialID,
		Internal:      internal,
		AttemptNo:     attemptNo,
		Operation:     op.Kind.String(),
		Model:         op.Model,
		RequestMethod: http.MethodPost,
		RequestPath:   op.Kind.String(),
		RequestBody:   op.Body,
		Usage:         usage,
	}
	if response != nil {
		evt.ResponseStatus = response.Status
		evt.ResponseHeaders = flattenHeaders(response.Headers)
		if response.Buffered() {
			evt.ResponseBody = response.Body
		}
	}
	e.Hub.Upstream(evt)
}

func (e *Executor) emitUpstreamError(meta *Meta, runtime *Runtime, credentialID string, op provider.Operation, attemptNo int, upstreamReq *domain.UpstreamHTTPRequest, terr *domain.TransportError) {
	if e.Hub == nil {
		return
	}
	e.Hub.Upstream(domain.UpstreamEvent{
		TraceID:       meta.TraceID,
		At:            time.Now(),
		UserID:        meta.UserID,
		UserKeyID:     meta.UserKeyID,
		Provider:      runtime.Provider.Name,
		CredentialID:  credentialID,
		AttemptNo:     attemptNo,
		Operation:     op.Kind.String(),
		Model:         op.Model,
		RequestMethod: upstreamReq.Method,
		RequestPath:   upstreamReq.URL,
		RequestBody:   upstreamReq.Body,
		ErrorKind:     "transport",
		ErrorMessage:  terr.Message,
		TransportKind: terr.Kind,
	})
}

// drainStream buffers a streamed error body so it can be relayed.
func drainStream(response *domain.UpstreamHTTPResponse) []byte {
	if response.Buffered() {
		return response.Body
	}
	defer response.Stream.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := response.Stream.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil || len(buf) > 1<<20 {
			break
		}
	}
	response.Body = buf
	response.Stream = nil
	return buf
}

func copyHeaders(dst http.Header, src http.Header, transformed bool) {
	for name, values := range src {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		case "Content-Type":
			if transformed {
				// A transformed body is freshly encoded JSON.
				dst.Set("Content-Type", "application/json")
				continue
			}
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/json")
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func modelListKind(target domain.Proto) domain.OperationKind {
	switch target {
	case domain.ProtoClaude:
		return domain.OpClaudeModelsList
	case domain.ProtoGemini:
		return domain.OpGeminiModelsList
	default:
		return domain.OpOpenAIModelsList
	}
}

func modelGetKind(target domain.Proto) domain.OperationKind {
	switch target {
	case domain.ProtoClaude:
		return domain.OpClaudeModelsGet
	case domain.ProtoGemini:
		return domain.OpGeminiModelsGet
	default:
		return domain.OpOpenAIModelsGet
	}
}

func marshalCarrier(carrier converter.GenerateRequest) ([]byte, error) {
	switch carrier.Proto {
	case domain.ProtoClaude:
		return json.Marshal(carrier.Claude)
	case domain.ProtoOpenAIChat:
		return json.Marshal(carrier.Chat)
	case domain.ProtoOpenAIResponse:
		return json.Marshal(carrier.Responses)
	case domain.ProtoGemini:
		return json.Marshal(carrier.Gemini)
	}
	return nil, domain.ErrFormatConversion
}

func marshalResponseCarrier(carrier converter.GenerateResponse) ([]byte, error) {
	switch carrier.Proto {
	case domain.ProtoClaude:
		return json.Marshal(carrier.Claude)
	case domain.ProtoOpenAIChat:
		return json.Marshal(carrier.Chat)
	case domain.ProtoOpenAIResponse:
		return json.Marshal(carrier.Responses)
	case domain.ProtoGemini:
		return json.Marshal(carrier.Gemini)
	}
	return nil, domain.ErrFormatConversion
}

func marshalCount(count converter.CountRequest) ([]byte, domain.OperationKind, error) {
	switch count.Proto {
	case domain.ProtoClaude:
		body, err := json.Marshal(count.Claude)
		return body, domain.OpClaudeCountTokens, err
	case domain.ProtoGemini:
		body, err := json.Marshal(count.Gemini)
		return body, domain.OpGeminiCountTokens, err
	default:
		body, err := json.Marshal(count.OpenAI)
		return body, domain.OpOpenAIInputTokens, err
	}
}

func parseResponseCarrier(proto domain.Proto, body []byte) (converter.GenerateResponse, error) {
	out := converter.GenerateResponse{Proto: proto}
	switch proto {
	case domain.ProtoClaude:
		out.Claude = &claude.MessageResponse{}
		return out, json.Unmarshal(body, out.Claude)
	case domain.ProtoOpenAIChat:
		out.Chat = &openai.ChatCompletionResponse{}
		return out, json.Unmarshal(body, out.Chat)
	case domain.ProtoOpenAIResponse:
		out.Responses = &openai.Response{}
		return out, json.Unmarshal(body, out.Responses)
	case domain.ProtoGemini:
		out.Gemini = &gemini.GenerateContentResponse{}
		return out, json.Unmarshal(body, out.Gemini)
	}
	return out, domain.ErrFormatConversion
}

func parseCountResult(proto domain.Proto, body []byte) (converter.CountResult, error) {
	switch proto {
	case domain.ProtoClaude:
		var parsed claude.CountTokensResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CountResult{}, err
		}
		return converter.CountResult{InputTokens: parsed.InputTokens}, nil
	case domain.ProtoGemini:
		var parsed gemini.CountTokensResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CountResult{}, err
		}
		return converter.CountResult{InputTokens: parsed.TotalTokens}, nil
	default:
		var parsed openai.InputTokenCountResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CountResult{}, err
		}
		return converter.CountResult{InputTokens: parsed.InputTokens}, nil
	}
}

func parseCatalog(proto domain.Proto, body []byte) (converter.ModelCatalog, error) {
	switch proto {
	case domain.ProtoClaude:
		var parsed claude.ListModelsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.ModelCatalog{}, err
		}
		return converter.CatalogFromClaude(&parsed), nil
	case domain.ProtoGemini:
		var parsed gemini.ListModelsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.ModelCatalog{}, err
		}
		return converter.CatalogFromGemini(&parsed), nil
	default:
		var parsed openai.ModelList
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.ModelCatalog{}, err
		}
		return converter.CatalogFromOpenAI(&parsed), nil
	}
}

func parseCatalogEntry(proto domain.Proto, body []byte) (converter.CatalogEntry, error) {
	switch proto {
	case domain.ProtoClaude:
		var parsed claude.ModelInfo
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CatalogEntry{}, err
		}
		return converter.CatalogEntry{ID: parsed.ID, DisplayName: parsed.DisplayName, Created: parsed.CreatedAt.Unix()}, nil
	case domain.ProtoGemini:
		var parsed gemini.ModelInfo
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CatalogEntry{}, err
		}
		return converter.CatalogEntry{ID: gemini.NormalizeModel(parsed.Name), DisplayName: parsed.DisplayName}, nil
	default:
		var parsed openai.Model
		if err := json.Unmarshal(body, &parsed); err != nil {
			return converter.CatalogEntry{}, err
		}
		return converter.CatalogEntry{ID: parsed.ID, Created: parsed.Created}, nil
	}
}

// usageSummaryFromBody extracts the protocol-specific token counters from
// a buffered generate response.
func usageSummaryFromBody(proto domain.Proto, body []byte) *domain.UsageSummary {
	switch proto {
	case domain.ProtoClaude:
		var parsed claude.MessageResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil
		}
		return summaryOf(converter.UsageFromClaude(&parsed.Usage))
	case domain.ProtoOpenAIChat:
		var parsed openai.ChatCompletionResponse
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.Usage == nil {
			return nil
		}
		return summaryOf(converter.UsageFromChat(parsed.Usage))
	case domain.ProtoOpenAIResponse:
		var parsed openai.Response
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.Usage == nil {
			return nil
		}
		return summaryOf(converter.UsageFromResponse(parsed.Usage))
	case domain.ProtoGemini:
		var parsed gemini.GenerateContentResponse
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.UsageMetadata == nil {
			return nil
		}
		return summaryOf(converter.UsageFromGemini(parsed.UsageMetadata))
	}
	return nil
}

func summaryOf(usage converter.Usage) *domain.UsageSummary {
	if usage.IsZero() {
		return nil
	}
	return &domain.UsageSummary{
		InputTokens:      int64(usage.InputTokens),
		OutputTokens:     int64(usage.OutputTokens),
		CacheReadTokens:  int64(usage.CacheReadTokens),
		CacheWriteTokens: int64(usage.CacheWriteTokens),
		ThoughtsTokens:   int64(usage.ThoughtsTokens),
		TotalTokens:      int64(usage.Total()),
	}
}

func isSentinel(payload string) bool {
	return payload == "" || payload == "[DONE]"
}
