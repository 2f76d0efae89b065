package loopserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"loopy/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL + "/", Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", client.base.String())
	assert.Equal(t, 15*time.Minute, client.cfg.Timeout)
	assert.EqualValues(t, 512<<20, client.cfg.MaxResponseBytes)
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "ftp://example.com"}, nil)
	require.Error(t, err)
}

func TestProcessJSONResponse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/upload-and-process", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "song.wav", header.Filename)
		assert.Equal(t, "audio/wav", header.Header.Get("Content-Type"))
		assert.Equal(t, "RIFF....WAVE", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed_url":"/files/abc.mp3","processed_filepath":"abc_raw"}`))
	})
	client := newTestClient(t, mux)

	track, err := client.Process(context.Background(), domain.AudioFile{
		Name:     "song.wav",
		MIMEType: "audio/wav",
		Data:     []byte("RIFF....WAVE"),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc_raw", track.Ref)
	assert.Equal(t, client.base.String()+"/files/abc.mp3", track.URL)
	assert.Nil(t, track.Audio)
}

func TestProcessRawAudioResponse(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))

	track, err := client.Process(context.Background(), domain.AudioFile{Name: "a.mp3", MIMEType: "audio/mpeg", Data: []byte("x")})
	require.NoError(t, err)
	require.NotNil(t, track.Audio)
	assert.Equal(t, "audio/mpeg", track.Audio.MIMEType)
	assert.Equal(t, "ID3audio", string(track.Audio.Data))
	assert.Empty(t, track.Ref)
}

func TestProcessFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"missing url": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"processed_filepath":"abc"}`))
		},
		"bad json": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{`))
		},
	}

	for name, handler := range cases {
		handler := handler
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, handler)
			_, err := client.Process(context.Background(), domain.AudioFile{Name: "a.mp3", MIMEType: "audio/mpeg", Data: []byte("x")})
			require.ErrorIs(t, err, ErrSongProcessingFailed)
		})
	}
}

func TestProcessRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{}, nil)
	require.NoError(t, err)
	_, err = client.Process(context.Background(), domain.AudioFile{Name: "a.mp3"})
	require.ErrorIs(t, err, ErrSongProcessingFailed)
}

func TestProcessNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	server.Close()

	_, err = client.Process(context.Background(), domain.AudioFile{Name: "a.mp3", MIMEType: "audio/mpeg", Data: []byte("x")})
	require.ErrorIs(t, err, ErrSongProcessingFailed)
}

func TestLoopSendsRegionAndDuration(t *testing.T) {
	t.Parallel()

	var got loopRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loop", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("looped-bytes"))
	}))

	payload, err := client.Loop(context.Background(), domain.LoopRequest{
		FileRef:         "abc_raw",
		Region:          domain.Region{Start: 10, End: 40},
		DurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, "looped-bytes", string(payload.Data))
	assert.Equal(t, "audio/mpeg", payload.MIMEType)
	assert.Equal(t, loopRequest{Filepath: "abc_raw", StartTime: 10, EndTime: 40, LoopDuration: 45}, got)
}

func TestLoopFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Loop(context.Background(), domain.LoopRequest{FileRef: "abc", Region: domain.Region{Start: 0, End: 1}, DurationMinutes: 1})
	require.ErrorIs(t, err, ErrSongLoopingFailed)
	assert.Contains(t, err.Error(), "status 502")
}

func TestLoopEmptyPayloadFails(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.Loop(context.Background(), domain.LoopRequest{FileRef: "abc", Region: domain.Region{Start: 0, End: 1}, DurationMinutes: 1})
	require.ErrorIs(t, err, ErrSongLoopingFailed)
}

func TestFetchResolvesRelativeURL(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/abc.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3 processed"))
	}))

	payload, err := client.Fetch(context.Background(), "/files/abc.mp3")
	require.NoError(t, err)
	assert.Equal(t, "ID3 processed", string(payload.Data))
	assert.Equal(t, "audio/mpeg", payload.MIMEType)

	_, err = client.Fetch(context.Background(), "/files/missing.mp3")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestReadBodyEnforcesLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, MaxResponseBytes: 16}, nil)
	require.NoError(t, err)

	_, err = client.Loop(context.Background(), domain.LoopRequest{FileRef: "abc", Region: domain.Region{Start: 0, End: 1}, DurationMinutes: 1})
	require.ErrorIs(t, err, ErrSongLoopingFailed)
}
