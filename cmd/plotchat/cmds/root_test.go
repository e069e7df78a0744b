package cmds

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/plotchat/pkg/config"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		viper.Reset()
	})

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--log-file", "", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func chatBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/query", r.URL.Path)
		var req struct {
			Messages []conversation.Entry `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		reply := append(req.Messages,
			conversation.NewAssistantEntry("Here is the monthly breakdown."),
			conversation.NewChartEntry(`{"data": [{"type": "bar", "y": [3, 1, 2]}], "layout": {"title": "Monthly"}}`),
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootFlagsReachSettings(t *testing.T) {
	_, err := runRoot(t, "", "config", "--lookback", "7", "--endpoint", "http://backend:9000")
	require.NoError(t, err)
	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, 7, s.Lookback)
	assert.Equal(t, "http://backend:9000", s.Transport.Endpoint)
}

func TestWriteSettings(t *testing.T) {
	s := config.Default()
	s.Lookback = 7

	var out bytes.Buffer
	require.NoError(t, writeSettings(&out, &s, "/etc/plotchat/config.yaml"))
	assert.True(t, strings.HasPrefix(out.String(), "# /etc/plotchat/config.yaml\n"))
	assert.Contains(t, out.String(), "lookback: 7")
	assert.Contains(t, out.String(), "query-path: /chat/query")
}

func TestConfigCommandRejectsInvalidSettings(t *testing.T) {
	_, err := runRoot(t, "", "config", "--mode", "gui")
	assert.ErrorContains(t, err, "invalid ui.mode")
}

func TestSendCommandPrintsReply(t *testing.T) {
	srv := chatBackend(t)

	out, err := runRoot(t, "", "send", "--endpoint", srv.URL, "plot", "sales", "by", "month")
	require.NoError(t, err)
	assert.Contains(t, out, "Here is the monthly breakdown.")
	assert.Contains(t, out, "Monthly")
	assert.NotContains(t, out, "plot sales by month")
}

func TestSendCommandReadsStdin(t *testing.T) {
	srv := chatBackend(t)

	out, err := runRoot(t, "plot sales\n", "send", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Here is the monthly breakdown.")
}

func TestSendCommandWithoutMessage(t *testing.T) {
	_, err := runRoot(t, "  \n", "send")
	assert.ErrorContains(t, err, "no message to send")
}

func TestChatLineModeOverStdin(t *testing.T) {
	srv := chatBackend(t)

	out, err := runRoot(t, "first\nsecond\n:q\n", "chat", "--mode", "line", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Here is the monthly breakdown."))
}

func TestResolveMode(t *testing.T) {
	assert.Equal(t, config.ModeTUI, resolveMode(config.ModeTUI))
	assert.Equal(t, config.ModeLine, resolveMode(config.ModeLine))
	assert.Contains(t, []string{config.ModeTUI, config.ModeLine}, resolveMode(config.ModeAuto))
}

func TestTokensCount(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, countTokens(&CountSettings{Input: "hello world"}, &out))
	assert.Contains(t, out.String(), "Encoding: cl100k_base")
	assert.Contains(t, out.String(), "Total tokens: 2")
}

func TestTokensCountTranscript(t *testing.T) {
	var withChart, plain bytes.Buffer
	require.NoError(t, countTokens(&CountSettings{
		Transcript: true,
		Input:      `[{"role": "user", "content": "hi"}, {"role": "chart", "content": "{}"}]`,
	}, &withChart))
	require.NoError(t, countTokens(&CountSettings{
		Transcript: true,
		Input:      `[{"role": "user", "content": "hi"}]`,
	}, &plain))
	assert.Equal(t, plain.String(), withChart.String())

	err := countTokens(&CountSettings{Transcript: true, Input: "not json"}, &plain)
	assert.ErrorContains(t, err, "not a JSON list")
}

func TestTokensEncode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, encodeTokens(&EncodeSettings{Model: "gpt-4", Input: "hello"}, &out))
	assert.Regexp(t, `^\d+\n$`, out.String())
}

func TestTokensUnknownCodec(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, countTokens(&CountSettings{Codec: "nope", Input: "x"}, &out))
}

func TestGlazedCommandsBuild(t *testing.T) {
	root := NewRootCommand()
	t.Cleanup(viper.Reset)
	for _, path := range [][]string{{"config"}, {"tokens", "count"}, {"tokens", "encode"}, {"watch"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	watch, _, err := root.Find([]string{"watch"})
	require.NoError(t, err)
	assert.NotNil(t, watch.Flags().Lookup("redis-addr"))
	assert.NotNil(t, watch.Flags().Lookup("topic"))
}
