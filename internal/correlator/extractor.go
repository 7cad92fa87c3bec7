package correlator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/pkg/jsonpath"
)

// DefaultHeader carries the correlation id of the header extractor.
const DefaultHeader = "X-Correlation-ID"

// Header correlates by a header present on both request and response.
// Requests without the header get a random UUID.
type Header struct {
	Name string
}

// NewHeader creates a header extractor. An empty name uses DefaultHeader.
func NewHeader(name string) *Header {
	if name == "" {
		name = DefaultHeader
	}
	return &Header{Name: name}
}

// RequestID implements Extractor.
func (h *Header) RequestID(msg *message.Message, _ message.Attributes) (string, error) {
	if id := msg.Header(h.Name); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	msg.SetHeader(h.Name, id)
	return id, nil
}

// ResponseIDs implements Extractor.
func (h *Header) ResponseIDs(resp *message.Message) []string {
	if id := resp.Header(h.Name); id != "" {
		return []string{id}
	}
	return nil
}

// JSONPath correlates by values inside the JSON payloads. A response may
// answer several requests when its path yields an array.
type JSONPath struct {
	request  *jsonpath.Path
	response *jsonpath.Path
}

// NewJSONPath compiles the request and response paths. An empty response
// path reuses the request path.
func NewJSONPath(requestPath, responsePath string) (*JSONPath, error) {
	req, err := jsonpath.Compile(requestPath)
	if err != nil {
		return nil, err
	}
	resp := req
	if responsePath != "" {
		if resp, err = jsonpath.Compile(responsePath); err != nil {
			return nil, err
		}
	}
	return &JSONPath{request: req, response: resp}, nil
}

// RequestID implements Extractor.
func (j *JSONPath) RequestID(msg *message.Message, _ message.Attributes) (string, error) {
	id, ok := j.request.Lookup(msg.Payload)
	if !ok || id == "" {
		return "", fmt.Errorf("request has no value at %s", j.request)
	}
	return id, nil
}

// ResponseIDs implements Extractor.
func (j *JSONPath) ResponseIDs(resp *message.Message) []string {
	if resp == nil {
		return nil
	}
	return j.response.Values(resp.Payload)
}

// Type identifies an extractor implementation.
type Type string

const (
	TypeHeader   Type = "header"
	TypeJSONPath Type = "jsonpath"
)

// NewExtractor builds an extractor by type.
func NewExtractor(kind Type, header, requestPath, responsePath string) (Extractor, error) {
	switch kind {
	case TypeHeader, "":
		return NewHeader(header), nil
	case TypeJSONPath:
		return NewJSONPath(requestPath, responsePath)
	default:
		return nil, fmt.Errorf("unknown correlator type: %q", kind)
	}
}
