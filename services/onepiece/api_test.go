package onepiece

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApi(srv *httptest.Server) *Api {
	return &Api{
		url:        srv.URL + "/v2",
		cl:         srv.Client(),
		timeout:    time.Second,
		retries:    2,
		retryDelay: time.Millisecond,
	}
}

func TestFetchAllEpisodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/episodes/en", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": 1,
				"title": "I'm Luffy! The Man Who Will Become the Pirate King!",
				"description": "Luffy sets sail.",
				"number": "n°1",
				"chapter": "Chap 1",
				"release_date": "1999-10-20",
				"arc": {"id": 1, "title": "Romance Dawn Arc", "description": "...", "saga": {"id": 1, "title": "East Blue Saga"}},
				"saga": {"id": 1, "title": "East Blue Saga"}
			},
			{
				"id": 2,
				"title": "The Great Swordsman Appears!",
				"release_date": "1999-11-17"
			}
		]`))
	}))
	defer srv.Close()

	episodes, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	assert.Equal(t, 1, episodes[0].ID)
	assert.Equal(t, "1999-10-20", episodes[0].ReleaseDate)
	assert.Equal(t, "Romance Dawn Arc", episodes[0].ArcTitle())
	assert.Equal(t, "East Blue Saga", episodes[0].SagaTitle())

	// Missing optional fields never fail the fetch
	assert.Equal(t, 2, episodes[1].ID)
	assert.Equal(t, "", episodes[1].ArcTitle())
	assert.Equal(t, "", episodes[1].SagaTitle())
}

func TestFetchAllEpisodesFlatGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 3, "title": "Morgan vs. Luffy!", "arc": "Romance Dawn Arc", "saga": "East Blue Saga"}]`))
	}))
	defer srv.Close()

	episodes, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "Romance Dawn Arc", episodes[0].ArcTitle())
	assert.Equal(t, "East Blue Saga", episodes[0].SagaTitle())
}

func TestFetchAllEpisodesNullGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 4, "title": null, "release_date": null, "arc": null, "saga": null}]`))
	}))
	defer srv.Close()

	episodes, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "", episodes[0].Title)
	assert.Equal(t, "", episodes[0].ReleaseDate)
	assert.Nil(t, episodes[0].Arc)
	assert.Nil(t, episodes[0].Saga)
}

func TestFetchAllEpisodesRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id": 1, "title": "I'm Luffy!"}]`))
	}))
	defer srv.Close()

	episodes, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.Len(t, episodes, 1)
}

func TestFetchAllEpisodesRetriesExhausted(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestFetchAllEpisodesClientErrorNoRetry(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "status 403")
}

func TestFetchAllEpisodesMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"`))
	}))
	defer srv.Close()

	_, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode episodes response")
}

func TestGroupRefUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 5, "title": "Fear, Mysterious Power!", "arc": 12, "saga": ["odd"]}]`))
	}))
	defer srv.Close()

	episodes, err := newTestApi(srv).FetchAllEpisodes(t.Context())
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "", episodes[0].ArcTitle())
	assert.Equal(t, "", episodes[0].SagaTitle())
}

func TestFetchEpisodeByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/episodes/en/1":
			_, _ = w.Write([]byte(`{"id": 1, "title": "I'm Luffy!"}`))
		case "/v2/episodes/en/2":
			_, _ = w.Write([]byte(`null`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api := newTestApi(srv)

	episode, err := api.FetchEpisodeByID(t.Context(), 1)
	require.NoError(t, err)
	require.NotNil(t, episode)
	assert.Equal(t, "I'm Luffy!", episode.Title)

	episode, err = api.FetchEpisodeByID(t.Context(), 2)
	require.NoError(t, err)
	assert.Nil(t, episode)

	episode, err = api.FetchEpisodeByID(t.Context(), 99999)
	require.NoError(t, err)
	assert.Nil(t, episode)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id": 1}`))
		}))
		defer srv.Close()

		assert.NoError(t, newTestApi(srv).Health(t.Context()))
	})

	t.Run("not found still healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		assert.NoError(t, newTestApi(srv).Health(t.Context()))
	})

	t.Run("server error unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		assert.Error(t, newTestApi(srv).Health(t.Context()))
	})
}
