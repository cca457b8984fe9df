package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/gatehouse/internal/wire"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads.  The largest request (a pass spec with recurrence) is well under
// 1 KiB in either encoding.
const maxRequestBody = 8192

const contentTypeProtobuf = "application/x-protobuf"

func isProtobufType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == contentTypeProtobuf || mt == "application/protobuf"
}

// isProtobuf returns true if the request body is a protobuf Struct.
func isProtobuf(r *http.Request) bool {
	return isProtobufType(r.Header.Get("Content-Type"))
}

// wantsProtobuf reports whether the response should be a protobuf Struct:
// an explicit Accept wins, else the reply mirrors the request encoding.
func wantsProtobuf(r *http.Request) bool {
	if accept := r.Header.Get("Accept"); accept != "" {
		for _, part := range strings.Split(accept, ",") {
			if isProtobufType(strings.TrimSpace(part)) {
				return true
			}
		}
		return false
	}
	return isProtobuf(r)
}

var errEmptyBody = errors.New("empty request body")

// decodeBody reads a JSON object or protobuf Struct into v.  Unknown fields
// are rejected in both encodings.  An empty body yields errEmptyBody.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBody {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errEmptyBody
	}

	if isProtobuf(r) {
		s := &structpb.Struct{}
		if err := proto.Unmarshal(body, s); err != nil {
			return err
		}
		return wire.FromStruct(s, v)
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptional is decodeBody for endpoints whose body may be omitted.
func decodeOptional(r *http.Request, v any) error {
	if err := decodeBody(r, v); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// respond writes v as JSON or, when the client asked for it, as a protobuf
// Struct.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !wantsProtobuf(r) {
		writeJSON(w, status, v)
		return
	}
	s, err := wire.ToStruct(v)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	writeProto(w, status, s)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
