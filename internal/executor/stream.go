package executor

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/awsl-project/gproxy/internal/classify"
	"github.com/awsl-project/gproxy/internal/converter"
	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/provider"
	"github.com/awsl-project/gproxy/internal/wire"
)

// streamChannelDepth bounds the frames in flight between the upstream
// reader and the downstream writer; a full channel makes the reader
// await, propagating slowness to the source.
const streamChannelDepth = 64

// streamResponse splices the upstream byte stream to the downstream
// connection: decode frames, run the stream transformer, re-encode per
// the downstream protocol. Chunk order is preserved end to end.
func (e *Executor) streamResponse(ctx context.Context, w http.ResponseWriter, runtime *Runtime, response *domain.UpstreamHTTPResponse, req *classify.Request, op provider.Operation, meta *Meta, attemptNo int) {
	targetProto := op.Kind.Proto()

	transformer, err := e.Registry.NewStreamTransformer(targetProto, req.Proto, req.Model)
	if err != nil {
		response.Stream.Close()
		e.writeError(w, meta, domain.Internal("stream transform failed", err))
		return
	}
	// The folder shadows the stream to recover usage for the upstream
	// traffic event.
	folder, err := converter.NewFolder(targetProto)
	if err != nil {
		response.Stream.Close()
		e.writeError(w, meta, domain.Internal("stream fold failed", err))
		return
	}

	w.Header().Set("Content-Type", wire.ContentTypeForStream(req.Proto))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(RequestIDHeader, meta.TraceID)
	w.WriteHeader(response.Status)
	flusher, _ := w.(http.Flusher)

	frames := make(chan []byte, streamChannelDepth)
	group, ctx := errgroup.WithContext(ctx)

	// Upstream reader: decode, transform, enqueue.
	group.Go(func() error {
		defer close(frames)
		defer response.Stream.Close()
		decoder := &wire.Decoder{}
		buf := make([]byte, 32*1024)

		emit := func(payloads [][]byte) error {
			for _, payload := range payloads {
				framed := wire.EncodeEvent(req.Proto, payload)
				if framed == nil {
					continue
				}
				select {
				case frames <- framed:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}

		handle := func(payloads []string) error {
			for _, payload := range payloads {
				if isSentinel(payload) {
					continue
				}
				raw := []byte(payload)
				if err := folder.Push(raw); err != nil {
					log.WithError(err).Debug("stream fold skipped payload")
				}
				out, err := transformer.Next(raw)
				if err != nil {
					log.WithError(err).Debug("stream transform skipped payload")
					continue
				}
				if err := emit(out); err != nil {
					return err
				}
			}
			return nil
		}

		for {
			n, readErr := response.Stream.Read(buf)
			if n > 0 {
				if err := handle(decoder.Push(buf[:n])); err != nil {
					return err
				}
			}
			if readErr != nil {
				break
			}
		}
		if err := handle(decoder.Finish()); err != nil {
			return err
		}
		tail, err := transformer.Finish()
		if err != nil {
			return err
		}
		if err := emit(tail); err != nil {
			return err
		}
		if req.Proto == domain.ProtoOpenAIChat {
			select {
			case frames <- wire.FormatDone():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Downstream writer.
	group.Go(func() error {
		for frame := range frames {
			if _, err := w.Write(frame); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		// The client observes EOF; nothing more can be sent after the
		// headers are out.
		log.WithError(err).Debug("stream terminated early")
	}

	usage := folder.Usage()
	e.emitUpstream(meta, runtime, op.CredentialID, op, attemptNo, &domain.UpstreamHTTPResponse{
		Status:  response.Status,
		Headers: response.Headers,
	}, summaryOf(usage), false)
	e.emitDownstream(meta, response.Status, w.Header(), nil)
}
