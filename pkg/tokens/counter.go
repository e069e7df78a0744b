package tokens

import (
	"strings"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = "cl100k_base"

// EncodingForModel picks the tiktoken encoding an OpenAI style model uses.
func EncodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5-turbo"), strings.HasPrefix(model, "text-embedding-ada-002"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci-002"), strings.HasPrefix(model, "text-davinci-003"):
		return "p50k_base"
	default:
		return "r50k_base"
	}
}

// Counter estimates how many tokens a transcript costs the backend.
type Counter struct {
	encoding string
	codec    tokenizer.Codec
}

func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown token encoding %s", encoding)
	}
	return &Counter{encoding: encoding, codec: codec}, nil
}

func (c *Counter) Encoding() string {
	return c.encoding
}

func (c *Counter) Count(s string) (int, error) {
	ids, err := c.Encode(s)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *Counter) Encode(s string) ([]uint, error) {
	if s == "" {
		return nil, nil
	}
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding")
	}
	return ids, nil
}

// CountTranscript counts role and content of every entry the backend would
// receive. Render-only entries are not counted.
func (c *Counter) CountTranscript(entries []conversation.Entry) (int, error) {
	var sb strings.Builder
	for _, e := range conversation.APIEntries(entries) {
		sb.WriteString(string(e.Role))
		sb.WriteString("\n")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return c.Count(sb.String())
}
