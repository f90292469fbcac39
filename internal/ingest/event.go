package ingest

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"genaiops/internal/dedupe"
)

// Response is the status envelope every pipeline Lambda returns. Body is
// JSON text.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func respond(status int, v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(err.Error())
	}
	return Response{StatusCode: status, Body: string(b)}
}

func ok(v any) Response { return respond(200, v) }

func failed(err error) Response { return respond(500, "Error: "+err.Error()) }

// ObjectRef is one decoded S3 notification record.
type ObjectRef struct {
	Bucket string
	Key    string
	ETag   string
}

// objectKey returns the decoded key. S3 notifications URL-encode keys
// ("+" for spaces).
func objectKey(o events.S3Object) string {
	if o.URLDecodedKey != "" {
		return o.URLDecodedKey
	}
	if k, err := url.QueryUnescape(o.Key); err == nil {
		return k
	}
	return o.Key
}

func refs(ev events.S3Event) []ObjectRef {
	out := make([]ObjectRef, 0, len(ev.Records))
	for _, r := range ev.Records {
		etag := r.S3.Object.ETag
		if etag == "" {
			etag = r.S3.Object.Sequencer
		}
		out = append(out, ObjectRef{Bucket: r.S3.Bucket.Name, Key: objectKey(r.S3.Object), ETag: etag})
	}
	return out
}

type objectFunc func(ctx context.Context, ref ObjectRef) Response

// eachObject runs fn per record. A single record returns fn's response
// as is; several records return the worst status code with every body.
func eachObject(ctx context.Context, ev events.S3Event, claim claimFunc, logger *zap.Logger, fn objectFunc) Response {
	rs := refs(ev)
	if len(rs) == 0 {
		return ok("No records")
	}

	resps := make([]Response, 0, len(rs))
	for _, ref := range rs {
		if claim != nil {
			dup, err := claim(ctx, ref)
			if err != nil {
				// dedupe is best effort
				logger.Warn("dedupe claim failed", zap.String("key", ref.Key), zap.Error(err))
			} else if dup {
				logger.Info("duplicate event skipped", zap.String("bucket", ref.Bucket), zap.String("key", ref.Key))
				resps = append(resps, ok("Already processed"))
				continue
			}
		}
		resps = append(resps, fn(ctx, ref))
	}
	if len(resps) == 1 {
		return resps[0]
	}

	status := 200
	bodies := make([]json.RawMessage, 0, len(resps))
	for _, r := range resps {
		if r.StatusCode > status {
			status = r.StatusCode
		}
		bodies = append(bodies, json.RawMessage(r.Body))
	}
	return respond(status, bodies)
}

type claimFunc func(ctx context.Context, ref ObjectRef) (bool, error)

func dedupeClaim(ddb dedupe.PutItemAPI, table, source string) claimFunc {
	if ddb == nil || table == "" {
		return nil
	}
	return func(ctx context.Context, ref ObjectRef) (bool, error) {
		if ref.ETag == "" {
			return false, nil
		}
		return dedupe.Claim(ctx, ddb, table, dedupe.EventID(ref.Bucket, ref.Key, ref.ETag), source)
	}
}
