package onepiece

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	apiHostFlag       = "one-piece-api-host"
	apiPortFlag       = "one-piece-api-port"
	apiSecureFlag     = "one-piece-api-secure"
	apiTimeoutFlag    = "one-piece-api-timeout"
	apiRetriesFlag    = "one-piece-api-retries"
	apiRetryDelayFlag = "one-piece-api-retry-delay"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   apiHostFlag,
			Usage:  "one piece api host",
			EnvVar: "ONE_PIECE_API_HOST",
			Value:  "api.api-onepiece.com",
		},
		cli.IntFlag{
			Name:   apiPortFlag,
			Usage:  "one piece api port",
			EnvVar: "ONE_PIECE_API_PORT",
			Value:  443,
		},
		cli.BoolTFlag{
			Name:   apiSecureFlag,
			Usage:  "one piece api secure (https)",
			EnvVar: "ONE_PIECE_API_SECURE",
		},
		cli.DurationFlag{
			Name:   apiTimeoutFlag,
			Usage:  "one piece api request timeout",
			EnvVar: "ONE_PIECE_API_TIMEOUT",
			Value:  30 * time.Second,
		},
		cli.IntFlag{
			Name:   apiRetriesFlag,
			Usage:  "retries for transient one piece api failures",
			EnvVar: "ONE_PIECE_API_RETRIES",
			Value:  3,
		},
		cli.DurationFlag{
			Name:   apiRetryDelayFlag,
			Usage:  "delay between one piece api retries",
			EnvVar: "ONE_PIECE_API_RETRY_DELAY",
			Value:  2 * time.Second,
		},
	)
}

// GroupRef is an arc or saga reference on an episode. The api usually
// nests a full object here but has been seen returning a bare string,
// so decoding accepts both and anything else counts as unclassified.
type GroupRef struct {
	ID    int
	Title string
}

func (g *GroupRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		g.Title = s
		return nil
	}
	var obj struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		*g = GroupRef{}
		return nil
	}
	g.ID = obj.ID
	g.Title = obj.Title
	return nil
}

type Episode struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Number      string    `json:"number"`
	Chapter     string    `json:"chapter"`
	ReleaseDate string    `json:"release_date"`
	Arc         *GroupRef `json:"arc"`
	Saga        *GroupRef `json:"saga"`
}

func (e *Episode) ArcTitle() string {
	if e.Arc == nil {
		return ""
	}
	return e.Arc.Title
}

func (e *Episode) SagaTitle() string {
	if e.Saga == nil {
		return ""
	}
	return e.Saga.Title
}

var errNotFound = errors.New("not found")

type Api struct {
	url        string
	cl         *http.Client
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

func New(c *cli.Context, cl *http.Client) *Api {
	host := c.String(apiHostFlag)
	port := c.Int(apiPortFlag)
	secure := c.BoolT(apiSecureFlag)
	protocol := "http"
	if secure {
		protocol = "https"
	}
	u := fmt.Sprintf("%v://%v:%v/v2", protocol, host, port)
	log.Infof("one piece api endpoint %v", u)
	return &Api{
		url:        u,
		cl:         cl,
		timeout:    c.Duration(apiTimeoutFlag),
		retries:    c.Int(apiRetriesFlag),
		retryDelay: c.Duration(apiRetryDelayFlag),
	}
}

// FetchAllEpisodes returns the complete upstream episode list. The api
// serves it in a single response, no pagination.
func (api *Api) FetchAllEpisodes(ctx context.Context) ([]Episode, error) {
	body, err := api.get(ctx, fmt.Sprintf("%v/episodes/en", api.url))
	if err != nil {
		return nil, err
	}

	var episodes []Episode
	if err := json.Unmarshal(body, &episodes); err != nil {
		return nil, errors.Wrap(err, "decode episodes response")
	}

	log.Infof("fetched %d episodes from one piece api", len(episodes))
	return episodes, nil
}

func (api *Api) FetchEpisodeByID(ctx context.Context, id int) (*Episode, error) {
	body, err := api.get(ctx, fmt.Sprintf("%v/episodes/en/%v", api.url, id))
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// The api answers some unknown ids with a literal null body
	var episode *Episode
	if err := json.Unmarshal(body, &episode); err != nil {
		return nil, errors.Wrapf(err, "decode episode %v response", id)
	}

	return episode, nil
}

// Health probes the api with a single-episode request. A 404 still
// proves the api is up and answering.
func (api *Api) Health(ctx context.Context) error {
	_, err := api.get(ctx, fmt.Sprintf("%v/episodes/en/1", api.url))
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// get performs a GET with a bounded number of retries on network errors
// and 5xx responses. Other non-success statuses are terminal.
func (api *Api) get(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= api.retries; attempt++ {
		if attempt > 0 {
			log.WithError(lastErr).Warnf("retrying one piece api request (attempt %d of %d)", attempt+1, api.retries+1)
			select {
			case <-time.After(api.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, retryable, err := api.getOnce(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", api.retries+1)
}

func (api *Api) getOnce(ctx context.Context, reqURL string) (body []byte, retryable bool, err error) {
	rctx, cancel := context.WithTimeout(ctx, api.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, "GET", reqURL, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.cl.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, "request failed")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, errNotFound
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, errors.Errorf("one piece api returned status %v", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.Errorf("one piece api returned status %v", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, "read response body")
	}
	return body, false, nil
}
