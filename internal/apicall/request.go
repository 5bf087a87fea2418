package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

const (
	// DefaultTimeout bounds each outbound call.
	DefaultTimeout = 20 * time.Second
	// DefaultMaxBodyLength bounds request and response bodies, in bytes.
	DefaultMaxBodyLength = 1_000_000
)

// ResponseConfig bounds an outbound call. Zero fields select the defaults.
type ResponseConfig struct {
	Timeout               time.Duration
	MaxResponseBodyLength int64
	MaxRequestBodyLength  int64
}

func (c ResponseConfig) withDefaults() ResponseConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResponseBodyLength <= 0 {
		c.MaxResponseBodyLength = DefaultMaxBodyLength
	}
	if c.MaxRequestBodyLength <= 0 {
		c.MaxRequestBodyLength = DefaultMaxBodyLength
	}
	return c
}

// RequestConfig is a fully formatted outbound request.
type RequestConfig struct {
	Method  string
	URL     string
	Params  []domain.KeyValue
	Headers http.Header
	// Body is nil when the request carries no body.
	Body []byte

	ResponseConfig
}

// ReduceKeyValue drops pairs with a blank key. A repeated key keeps its first
// position and its last value.
func ReduceKeyValue(values []domain.KeyValue) []domain.KeyValue {
	out := make([]domain.KeyValue, 0, len(values))
	index := make(map[string]int, len(values))
	for _, kv := range values {
		if kv.Key == "" {
			continue
		}
		if i, ok := index[kv.Key]; ok {
			out[i].Val = kv.Val
			continue
		}
		index[kv.Key] = len(out)
		out = append(out, kv)
	}
	return out
}

// EncodeForm encodes pairs as application/x-www-form-urlencoded, keeping their order.
func EncodeForm(pairs []domain.KeyValue) string {
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Val))
	}
	return b.String()
}

// FormatRequestConfig builds the request of an api node. GET requests never carry a body.
func FormatRequestConfig(data domain.APIActionData, cfg ResponseConfig) (*RequestConfig, error) {
	method := strings.ToUpper(string(data.Method))
	if method == "" {
		method = http.MethodGet
	}
	rc := &RequestConfig{
		Method:         method,
		URL:            data.URL,
		Params:         ReduceKeyValue(data.Params),
		Headers:        http.Header{},
		ResponseConfig: cfg.withDefaults(),
	}
	for _, kv := range ReduceKeyValue(data.Headers) {
		rc.Headers.Set(kv.Key, kv.Val)
	}

	if method == http.MethodGet {
		return rc, nil
	}

	body := data.Body
	switch {
	case data.BodyType == domain.BodyRawInput:
		var parsed any
		if err := json.Unmarshal([]byte(data.Content), &parsed); err == nil {
			if s, ok := parsed.(string); ok {
				rc.Body = []byte(s)
			} else {
				rc.Body = []byte(data.Content)
				setDefault(rc.Headers, "Content-Type", "application/json")
			}
		} else {
			raw, err := json.Marshal(data)
			if err != nil {
				return nil, fmt.Errorf("encode raw node configuration: %w", err)
			}
			rc.Body = raw
			setDefault(rc.Headers, "Content-Type", "application/json")
		}
	case data.BodyType == domain.BodyFormData:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, kv := range body.Pairs {
			if kv.Key == "" {
				continue
			}
			if err := w.WriteField(kv.Key, kv.Val); err != nil {
				return nil, fmt.Errorf("write form field %s: %w", kv.Key, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close form data: %w", err)
		}
		rc.Body = buf.Bytes()
		rc.Headers.Set("Content-Type", w.FormDataContentType())
	case data.BodyType == domain.BodyURLEncoded:
		switch {
		case body.Pairs != nil:
			rc.Body = []byte(EncodeForm(ReduceKeyValue(body.Pairs)))
		case body.Object != nil:
			rc.Body = []byte(encodeObject(body.Object))
		case body.Text != nil:
			rc.Body = []byte(*body.Text)
		default:
			rc.Body = []byte{}
		}
		rc.Headers.Set("Content-Type", "application/x-www-form-urlencoded")
	case body.Text != nil:
		rc.Body = []byte(*body.Text)
	case data.BodyType == domain.BodyKeyValue || body.Pairs != nil:
		encoded, err := encodePairsAsObject(ReduceKeyValue(body.Pairs))
		if err != nil {
			return nil, err
		}
		rc.Body = encoded
		setDefault(rc.Headers, "Content-Type", "application/json")
	}
	return rc, nil
}

// NewRequest builds the http.Request described by the config.
func (rc *RequestConfig) NewRequest(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(rc.URL)
	if err != nil {
		return nil, badRequest("url: %s could not be parsed", rc.URL)
	}
	if len(rc.Params) > 0 {
		q := u.Query()
		for _, kv := range rc.Params {
			q.Set(kv.Key, kv.Val)
		}
		u.RawQuery = q.Encode()
	}
	if int64(len(rc.Body)) > rc.MaxRequestBodyLength {
		return nil, fmt.Errorf("request body of %d bytes: %w", len(rc.Body), ErrBodyTooLarge)
	}

	var body io.Reader
	if rc.Body != nil {
		body = bytes.NewReader(rc.Body)
	}
	req, err := http.NewRequestWithContext(ctx, rc.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = rc.Headers.Clone()
	return req, nil
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}

// encodePairsAsObject encodes pairs as a JSON object preserving their order.
func encodePairsAsObject(pairs []domain.KeyValue) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Val)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeObject form-encodes an object with sorted keys. Arrays repeat their key;
// nested objects encode as empty values.
func encodeObject(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]domain.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			for _, item := range v {
				pairs = append(pairs, domain.KeyValue{Key: k, Val: scalarString(item)})
			}
		default:
			pairs = append(pairs, domain.KeyValue{Key: k, Val: scalarString(v)})
		}
	}
	return EncodeForm(pairs)
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil, map[string]any, []any:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
