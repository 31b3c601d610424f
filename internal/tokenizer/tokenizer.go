// Package tokenizer implements local input-token counting for providers
// whose count endpoint is served without an upstream call (NVIDIA,
// DeepSeek, custom tiktoken mode). Tokenizer files are fetched from a
// HuggingFace-compatible URL and cached on disk per model.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkoukk/tiktoken-go"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

const (
	defaultHFURL     = "https://huggingface.co"
	maxRedirects     = 5
	downloadTimeout  = 60 * time.Second
	tokenizerFile    = "tokenizer.json"
	fallbackEncoding = "cl100k_base"
)

// memo caches per-model tokenizer handles; bounded by model cardinality.
var memo = gocache.New(gocache.NoExpiration, 10*time.Minute)

// StableBody strips the model field and serializes the remaining request
// object with sorted keys so equal requests count equally.
func StableBody(body []byte) (string, error) {
	stripped, err := sjson.DeleteBytes(body, "model")
	if err != nil {
		stripped = body
	}
	var decoded any
	if err := json.Unmarshal(stripped, &decoded); err != nil {
		return "", fmt.Errorf("count body is not json: %w", err)
	}
	stable, err := marshalStable(decoded)
	if err != nil {
		return "", err
	}
	return stable, nil
}

// marshalStable renders JSON with object keys sorted.
func marshalStable(value any) (string, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return "", err
			}
			sb.Write(encodedKey)
			sb.WriteByte(':')
			encodedValue, err := marshalStable(v[key])
			if err != nil {
				return "", err
			}
			sb.WriteString(encodedValue)
		}
		sb.WriteByte('}')
		return sb.String(), nil
	case []any:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			encoded, err := marshalStable(item)
			if err != nil {
				return "", err
			}
			sb.WriteString(encoded)
		}
		sb.WriteByte(']')
		return sb.String(), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

// Options configure where tokenizer files come from and live.
type Options struct {
	HFURL   string
	HFToken string
	DataDir string
}

// Count encodes text with the model's tokenizer and returns the token
// count. The tokenizer file is ensured on disk first; encoding falls back
// to tiktoken's cl100k_base when the model has no bundled encoding.
func Count(model, text string, opts Options) (int, error) {
	if err := EnsureTokenizer(model, opts); err != nil {
		log.WithField("model", model).WithError(err).Warn("tokenizer fetch failed, using fallback encoding")
	}
	return CountTiktoken(model, text)
}

// CountTiktoken counts with tiktoken, resolving the model's encoding and
// falling back to cl100k_base for unknown models.
func CountTiktoken(model, text string) (int, error) {
	encoder, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(encoder.Encode(text, nil, nil)), nil
}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	if cached, ok := memo.Get(model); ok {
		return cached.(*tiktoken.Tiktoken), nil
	}
	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	memo.Set(model, encoder, gocache.NoExpiration)
	return encoder, nil
}

// EnsureTokenizer makes sure data_dir/cache/tokenizers/<model>/tokenizer.json
// exists, downloading it when absent. Up to five redirects are followed
// and the optional HF token is sent as a bearer.
func EnsureTokenizer(model string, opts Options) error {
	if opts.DataDir == "" {
		return nil
	}
	dir := filepath.Join(opts.DataDir, "cache", "tokenizers", sanitizeModel(model))
	path := filepath.Join(dir, tokenizerFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	base := opts.HFURL
	if base == "" {
		base = defaultHFURL
	}
	url := fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimSuffix(base, "/"), model, tokenizerFile)
	body, err := fetchWithRedirects(url, opts.HFToken)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fetchWithRedirects(url, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: downloadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokenizer download failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// sanitizeModel makes a model id path-safe.
func sanitizeModel(model string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return replacer.Replace(model)
}
