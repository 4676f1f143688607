// Package interceptors provides gRPC server interceptors backed by a
// simplecache.Cache.
package interceptors

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/Keksclan/simplecache"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// Request is the key source of a cached unary call: the full method name and
// the request message rendered as protojson with proto field names.
type Request struct {
	Method  string          `json:"method"`
	Message json.RawMessage `json:"message"`
}

// ResponseCache is the cache type used by CacheUnary. Values are responses
// encoded as protojson google.protobuf.Any.
type ResponseCache = simplecache.Cache[Request, json.RawMessage]

// CacheConfig selects which calls are cached and how their keys are built.
type CacheConfig struct {
	// Methods lists the full method names to cache, e.g.
	// "/pkg.Service/Method". When empty every unary method is cached.
	Methods []string

	// ExcludeFields names request fields, by proto name, that do not take
	// part in the key. They are removed at every nesting level.
	ExcludeFields []string

	// TTL is the lifetime of cached responses. Zero keeps them until they
	// are deleted or flushed.
	TTL time.Duration
}

var errLoaderUnavailable = status.Error(codes.Unavailable, "response cache: loader unavailable")

var marshalRequest = protojson.MarshalOptions{UseProtoNames: true}

// CacheUnary returns a unary server interceptor that memoizes handler
// responses in c. Only calls whose request and response are proto messages
// are cached; anything else passes straight to the handler. Handler errors
// are returned unchanged and never cached.
func CacheUnary(c *ResponseCache, cfg CacheConfig) grpc.UnaryServerInterceptor {
	exclude := slices.Clone(cfg.ExcludeFields)
	expiry := simplecache.Expiry(cfg.TTL)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if len(cfg.Methods) > 0 && !slices.Contains(cfg.Methods, info.FullMethod) {
			return handler(ctx, req)
		}
		msg, ok := req.(proto.Message)
		if !ok {
			return handler(ctx, req)
		}
		body, err := requestBody(msg, exclude)
		if err != nil {
			return handler(ctx, req)
		}

		// The handler result is captured so the caller gets the original
		// message back without a decode when this call did the loading.
		var (
			ran  bool
			resp any
			herr error
		)
		load := func(ctx context.Context, _ Request) (json.RawMessage, error) {
			ran = true
			resp, herr = handler(ctx, req)
			if herr != nil {
				return nil, herr
			}
			return encodeResponse(resp)
		}

		raw, ok := c.Load(ctx, Request{Method: info.FullMethod, Message: body}, load, expiry)
		switch {
		case ran && herr != nil:
			return nil, herr
		case ran:
			// An unencodable response is still a valid answer.
			return resp, nil
		case !ok && ctx.Err() != nil:
			return nil, status.FromContextError(ctx.Err()).Err()
		case !ok:
			// Another caller's shared load failed or the loader limit refused.
			return nil, errLoaderUnavailable
		}

		out, err := decodeResponse(raw)
		if err != nil {
			// The entry is unusable; answer from the handler instead.
			return handler(ctx, req)
		}
		return out, nil
	}
}

// requestBody renders msg for the key. Excluded fields are stripped from the
// message alone so that a request field called "method" cannot remove
// Request.Method.
func requestBody(msg proto.Message, exclude []string) (json.RawMessage, error) {
	body, err := marshalRequest.Marshal(msg)
	if err != nil || len(exclude) == 0 {
		return body, err
	}
	key, err := simplecache.DeriveKey(json.RawMessage(body), exclude, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(key), nil
}

func encodeResponse(resp any) (json.RawMessage, error) {
	msg, ok := resp.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("response cache: %T is not a proto message", resp)
	}
	wrapped, err := anypb.New(msg)
	if err != nil {
		return nil, fmt.Errorf("response cache: wrap response: %w", err)
	}
	b, err := protojson.Marshal(wrapped)
	if err != nil {
		return nil, fmt.Errorf("response cache: encode response: %w", err)
	}
	return b, nil
}

func decodeResponse(raw json.RawMessage) (proto.Message, error) {
	var wrapped anypb.Any
	if err := protojson.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("response cache: decode response: %w", err)
	}
	return wrapped.UnmarshalNew()
}
